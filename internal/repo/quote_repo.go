// Package repo – quotes.
//
// A quote and its lines are written in one transaction; lines are never
// stored or read on their own.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
)

// CreateQuote assigns an ID when missing and inserts q with its lines.
func CreateQuote(ctx context.Context, db *gorm.DB, q *domain.Quote) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	for i := range q.Lines {
		q.Lines[i].QuoteID = q.ID
		q.Lines[i].Position = i
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(q).Error
	})
}

// GetQuote fetches a quote with its lines in position order, or ErrNotFound.
func GetQuote(ctx context.Context, db *gorm.DB, id string) (*domain.Quote, error) {
	var q domain.Quote
	err := db.WithContext(ctx).
		Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		Where("id = ?", id).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateQuoteStatus moves a quote to status. Returns ErrNotFound when no row
// matches.
func UpdateQuoteStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Quote{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
