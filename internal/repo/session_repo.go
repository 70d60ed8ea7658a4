// Package repo – conversation sessions.
//
// Writes are compare-and-swap on the Version column: a save succeeds only if
// the stored version still equals the version the caller read.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
)

// ErrVersionConflict reports that the stored session changed since it was
// read.
var ErrVersionConflict = errors.New("session version conflict")

// GetSession returns the stored session for address, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, address string) (*domain.ConversationSession, error) {
	var s domain.ConversationSession
	if err := db.WithContext(ctx).Where("address = ?", address).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession writes s if the stored version equals expected. A zero
// expected version means the row must not exist yet. On success s.Version is
// expected+1.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.ConversationSession, expected int64) error {
	s.Version = expected + 1
	db = db.WithContext(ctx)

	if expected == 0 {
		if err := db.Create(s).Error; err != nil {
			if isDuplicate(err) {
				return ErrVersionConflict
			}
			return err
		}
		return nil
	}

	res := db.Model(&domain.ConversationSession{}).
		Where("address = ? AND version = ?", s.Address, expected).
		Select("*").
		Omit("created_at").
		Updates(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// DeleteSession removes the session for address. Missing rows are not an
// error.
func DeleteSession(ctx context.Context, db *gorm.DB, address string) error {
	return db.WithContext(ctx).
		Where("address = ?", address).
		Delete(&domain.ConversationSession{}).Error
}
