package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/boxquote/internal/domain"
)

// newTestDB opens a unique in-memory database per test with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestGetIdempotency_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	rec, err := GetIdempotency(context.Background(), db, "/q", "   ", time.Now().UTC())
	if rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID: "expired", Scope: "/q", Key: "k1", Status: 200,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	if rec, err := GetIdempotency(context.Background(), db, "/q", "k1", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	if rec, err := GetIdempotency(context.Background(), db, "/q", "missing", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec, err)
	}
}

func TestCreateIdempotency_SuccessDuplicateAndReuseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	rec, err := CreateIdempotency(ctx, db, "/q", "k1", "quote-1", "", 200, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || rec.Reference != "quote-1" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "/q", "k1", time.Now().UTC())
	if err != nil || got.Reference != "quote-1" {
		t.Fatalf("get: %+v %v", got, err)
	}

	if _, err := CreateIdempotency(ctx, db, "/q", "k1", "quote-2", "", 200, time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Another scope is independent.
	if _, err := CreateIdempotency(ctx, db, "/inbound", "k1", "", `{"reply":"hola"}`, 200, time.Hour); err != nil {
		t.Fatalf("create other scope: %v", err)
	}

	// Expire the first one; the key can then be reused.
	db.Model(&domain.Idempotency{}).Where("scope = ? AND key = ?", "/q", "k1").
		Update("expires_at", time.Now().UTC().Add(-time.Minute))
	if _, err := CreateIdempotency(ctx, db, "/q", "k1", "quote-3", "", 200, time.Hour); err != nil {
		t.Fatalf("reuse after expiry: %v", err)
	}
}
