// Package repo – API credentials and public request telemetry.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
)

// FindAPIKeyByHash returns the key with the given SHA-256 hash, or (nil, nil)
// when there is none.
func FindAPIKeyByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.APIKey, error) {
	var k domain.APIKey
	err := db.WithContext(ctx).Where("key_hash = ?", hash).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateAPIKey stores a new credential fingerprint. Returns ErrDuplicate when
// the hash already exists.
func CreateAPIKey(ctx context.Context, db *gorm.DB, k *domain.APIKey) error {
	if err := db.WithContext(ctx).Create(k).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SetAPIKeyActive toggles a key. Returns ErrNotFound when no row matches.
func SetAPIKeyActive(ctx context.Context, db *gorm.DB, hash string, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("key_hash = ?", hash).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateRequestLog inserts one telemetry row.
func CreateRequestLog(ctx context.Context, db *gorm.DB, l *domain.APIRequestLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(l).Error
}

// CallerCount is one row of CountRequestsByCaller.
type CallerCount struct {
	CallerClass domain.CallerClass `json:"caller_class"`
	Outcome     string             `json:"outcome"`
	Total       int64              `json:"total"`
}

// CountRequestsByCaller aggregates request logs created at or after since by
// caller class and outcome.
func CountRequestsByCaller(ctx context.Context, db *gorm.DB, since time.Time) ([]CallerCount, error) {
	var out []CallerCount
	err := db.WithContext(ctx).
		Model(&domain.APIRequestLog{}).
		Select("caller_class, outcome, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("caller_class, outcome").
		Order("caller_class, outcome").
		Scan(&out).Error
	return out, err
}
