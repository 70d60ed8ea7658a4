package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/boxquote/docs"
	"github.com/tbourn/boxquote/internal/config"
	"github.com/tbourn/boxquote/internal/domain"
	httpapi "github.com/tbourn/boxquote/internal/http"
	"github.com/tbourn/boxquote/internal/notify"
	"github.com/tbourn/boxquote/internal/observability"
	"github.com/tbourn/boxquote/internal/repo"
	"github.com/tbourn/boxquote/internal/services"
	"github.com/tbourn/boxquote/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// @title           Boxquote API
// @version         1.0
// @description     Corrugated box quoting: public quote API, chat channel webhook and internal staff form.

// @contact.name   Sales Engineering
// @contact.email  ventas@example.com

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey ApiKey
// @in header
// @name X-API-Key
// @description Optional partner credential; raises the per-minute quote quota.

// @securityDefinitions.apikey InternalToken
// @in header
// @name X-Internal-Token
// @description Shared staff token for /internal routes.

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()
	observability.RegisterBuildInfo(version, cfg.DBDriver)

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	if err := observability.InstrumentDB(db); err != nil {
		log.Warn().Err(err).Msg("database tracing disabled")
	}
	if seeded, err := repo.SeedPricing(ctx, db, domain.DefaultPricingConfig()); err != nil {
		return err
	} else if seeded {
		log.Info().Msg("reference pricing seeded")
	}

	store, closeCache, err := openCache(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeCache()

	fallback, err := services.LoadFallbackPricing(cfg.FallbackPricingPath)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}

	sender, closeSender, err := newSender(cfg.Notify)
	if err != nil {
		return err
	}
	defer closeSender()

	dispatcher := notify.NewDispatcher(sender, notify.Options{
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
		PerSecond: cfg.Notify.RPS,
	})

	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:              db,
		Cache:           store,
		Notifier:        dispatcher,
		Classifier:      classifier,
		FallbackPricing: &fallback,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Close(sctx); err != nil {
		log.Error().Err(err).Msg("notification drain")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
