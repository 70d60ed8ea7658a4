// Package repo – pricing configuration.
//
// Pricing rows are append-only. Publishing a configuration inserts a new
// version and deactivates the previous one in the same transaction, so
// readers always observe exactly one active row.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
)

// GetActivePricing returns the active configuration, or ErrNotFound when no
// row is active.
func GetActivePricing(ctx context.Context, db *gorm.DB) (*domain.PricingConfig, error) {
	var cfg domain.PricingConfig
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("version desc").
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PublishPricing stores cfg as the next version and makes it the only active
// row. Version, IsActive and CreatedAt are assigned here; a zero ValidFrom
// defaults to now.
func PublishPricing(ctx context.Context, db *gorm.DB, cfg domain.PricingConfig) (*domain.PricingConfig, error) {
	now := time.Now().UTC()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last domain.PricingConfig
		err := tx.Order("version desc").First(&last).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cfg.Version = 1
		case err != nil:
			return err
		default:
			cfg.Version = last.Version + 1
		}

		if err := tx.Model(&domain.PricingConfig{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		cfg.ID = 0
		cfg.IsActive = true
		cfg.Fallback = false
		cfg.CreatedAt = now
		if cfg.ValidFrom.IsZero() {
			cfg.ValidFrom = now
		}
		return tx.Create(&cfg).Error
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SeedPricing publishes cfg only when the table is empty. It reports whether
// a row was written.
func SeedPricing(ctx context.Context, db *gorm.DB, cfg domain.PricingConfig) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.PricingConfig{}).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := PublishPricing(ctx, db, cfg); err != nil {
		return false, err
	}
	return true, nil
}
