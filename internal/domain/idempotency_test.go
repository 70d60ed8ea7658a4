package domain

import (
	"testing"
	"time"
)

func TestIdempotency_UniqueScopeKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_scope_key") {
		t.Fatalf("expected unique index ux_scope_key")
	}

	now := time.Now().UTC()
	a := &Idempotency{ID: "a", Scope: "/api/v1/quotes", Key: "k1", Reference: "q1", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("insert a: %v", err)
	}

	// same key under another scope is independent
	b := &Idempotency{ID: "b", Scope: "/api/v1/conversations/inbound", Key: "k1", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("insert b: %v", err)
	}

	dup := &Idempotency{ID: "c", Scope: "/api/v1/quotes", Key: "k1", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (scope, key)")
	}
}
