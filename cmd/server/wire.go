package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/cache"
	"github.com/tbourn/boxquote/internal/config"
	"github.com/tbourn/boxquote/internal/intent"
	"github.com/tbourn/boxquote/internal/notify"
	"github.com/tbourn/boxquote/internal/repo"
)

// openDB opens the configured store, runs migrations and seeds the reference
// pricing when no configuration exists yet.
func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "postgres":
		db, err = repo.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	default:
		db, err = repo.OpenSQLite(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// openCache returns a Redis-backed store when REDIS_URL is set. The cleanup
// function is always non-nil.
func openCache(ctx context.Context, redisURL string) (cache.Store, func(), error) {
	if redisURL == "" {
		return cache.NewMemory(), func() {}, nil
	}
	client, err := cache.Connect(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedis(client, "boxquote:"), func() { _ = client.Close() }, nil
}

// newSender always logs notifications and additionally posts them to the
// webhook and publishes them to Kafka when those are configured. The cleanup
// function is always non-nil.
func newSender(cfg config.NotifyConfig) (notify.MultiSender, func(), error) {
	senders := notify.MultiSender{notify.LogSender{}}
	if cfg.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.WebhookURL))
	}
	if len(cfg.KafkaBrokers) == 0 {
		return senders, func() {}, nil
	}
	ks, err := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	return append(senders, ks), func() { _ = ks.Close() }, nil
}

// newClassifier returns nil when classification is disabled. A missing
// examples file falls back to the built-in phrases.
func newClassifier(cfg config.Config) (intent.Classifier, error) {
	if !cfg.ClassifierEnabled {
		return nil, nil
	}
	if cfg.ClassifierPath == "" {
		return intent.NewSimilarityClassifier(intent.DefaultExamples()), nil
	}
	f, err := os.Open(cfg.ClassifierPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", cfg.ClassifierPath).Msg("classifier examples not found; using built-in set")
		return intent.NewSimilarityClassifier(intent.DefaultExamples()), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return intent.NewSimilarityClassifierFromReader(f)
}
