package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/boxquote/internal/domain"
)

// ---------- pricing ----------
func TestPricing_PublishKeepsExactlyOneActive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := GetActivePricing(ctx, db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store: want ErrNotFound, got %v", err)
	}

	seeded, err := SeedPricing(ctx, db, domain.DefaultPricingConfig())
	if err != nil || !seeded {
		t.Fatalf("seed: %v %v", seeded, err)
	}
	if again, _ := SeedPricing(ctx, db, domain.DefaultPricingConfig()); again {
		t.Fatalf("seed must not run twice")
	}

	next := domain.DefaultPricingConfig()
	next.PricePerAreaStandard = 720
	pub, err := PublishPricing(ctx, db, next)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.Version != 2 || !pub.IsActive {
		t.Fatalf("published = %+v", pub)
	}

	var active int64
	db.Model(&domain.PricingConfig{}).Where("is_active = ?", true).Count(&active)
	if active != 1 {
		t.Fatalf("active rows = %d, want 1", active)
	}
	var total int64
	db.Model(&domain.PricingConfig{}).Count(&total)
	if total != 2 {
		t.Fatalf("rows = %d, want 2 (append-only)", total)
	}

	cur, err := GetActivePricing(ctx, db)
	if err != nil || cur.Version != 2 || cur.PricePerAreaStandard != 720 || cur.Fallback {
		t.Fatalf("active = %+v %v", cur, err)
	}
}

// ---------- quotes ----------
func TestQuote_CreateGetAndStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	q := &domain.Quote{
		Channel: domain.ChannelAPI, Status: domain.QuoteStatusIssued,
		TotalArea: 725, Subtotal: 507500,
		Lines: []domain.QuoteLine{
			{Length: 400, Width: 300, Height: 200, Quantity: 500},
			{Length: 500, Width: 400, Height: 300, Quantity: 100},
		},
	}
	if err := CreateQuote(ctx, db, q); err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.ID == "" {
		t.Fatalf("ID not assigned")
	}

	got, err := GetQuote(ctx, db, q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Lines) != 2 || got.Lines[0].Position != 0 || got.Lines[1].Length != 500 {
		t.Fatalf("lines = %+v", got.Lines)
	}
	if got.Subtotal != 507500 {
		t.Fatalf("subtotal = %v", got.Subtotal)
	}

	if err := UpdateQuoteStatus(ctx, db, q.ID, domain.QuoteStatusConfirmed); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := UpdateQuoteStatus(ctx, db, "missing", domain.QuoteStatusConfirmed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing status update: %v", err)
	}
	if _, err := GetQuote(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing get: %v", err)
	}
}

// ---------- sessions ----------
func TestSession_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now().UTC()

	s := domain.NewSession("addr", now)
	if err := SaveSession(ctx, db, &s, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if s.Version != 1 {
		t.Fatalf("version after insert = %d", s.Version)
	}

	dup := domain.NewSession("addr", now)
	if err := SaveSession(ctx, db, &dup, 0); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("second insert: want conflict, got %v", err)
	}

	s.Step = domain.StepWaitingName
	if err := SaveSession(ctx, db, &s, 1); err != nil {
		t.Fatalf("update v1: %v", err)
	}
	stale := s
	stale.Step = domain.StepQuoted
	if err := SaveSession(ctx, db, &stale, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update: want conflict, got %v", err)
	}

	got, err := GetSession(ctx, db, "addr")
	if err != nil || got.Step != domain.StepWaitingName || got.Version != 2 {
		t.Fatalf("stored = %+v %v", got, err)
	}

	// zero values must be written too (Select("*"))
	got.ClientName = "x"
	_ = SaveSession(ctx, db, got, 2)
	got.ClientName = ""
	if err := SaveSession(ctx, db, got, 3); err != nil {
		t.Fatalf("clear field: %v", err)
	}
	again, _ := GetSession(ctx, db, "addr")
	if again.ClientName != "" {
		t.Fatalf("zero value not persisted: %q", again.ClientName)
	}

	if err := DeleteSession(ctx, db, "addr"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetSession(ctx, db, "addr"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
}

func TestSession_ConcurrentWritersOneWinsPerVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	// serialize connections so sqlite table locks do not mask CAS results
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	base := domain.NewSession("race", time.Now().UTC())
	if err := SaveSession(ctx, db, &base, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			s := base
			s.Quantity = i + 1
			if err := SaveSession(ctx, db, &s, 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

// ---------- api keys + request logs ----------
func TestAPIKeys_FindCreateToggle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if k, err := FindAPIKeyByHash(ctx, db, "nope"); k != nil || err != nil {
		t.Fatalf("missing key = %v %v", k, err)
	}
	k := &domain.APIKey{KeyHash: "h1", Name: "partner", RateLimit: 300, Active: true}
	if err := CreateAPIKey(ctx, db, k); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := CreateAPIKey(ctx, db, &domain.APIKey{KeyHash: "h1", Name: "dup", Active: true}); err != ErrDuplicate {
		t.Fatalf("duplicate: %v", err)
	}
	if err := SetAPIKeyActive(ctx, db, "h1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := FindAPIKeyByHash(ctx, db, "h1")
	if err != nil || got == nil || got.Active {
		t.Fatalf("after deactivate = %+v %v", got, err)
	}
	if err := SetAPIKeyActive(ctx, db, "zz", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("toggle missing: %v", err)
	}
}

func TestRequestLogs_CountByCaller(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	since := time.Now().UTC().Add(-time.Minute)

	for _, l := range []domain.APIRequestLog{
		{CallerClass: domain.CallerAIAgent, Outcome: "ok", Status: 200},
		{CallerClass: domain.CallerAIAgent, Outcome: "ok", Status: 200},
		{CallerClass: domain.CallerAIAgent, Outcome: "rate_limited", Status: 429},
		{CallerClass: domain.CallerBrowser, Outcome: "ok", Status: 200},
	} {
		l := l
		if err := CreateRequestLog(ctx, db, &l); err != nil {
			t.Fatalf("create log: %v", err)
		}
	}
	old := domain.APIRequestLog{CallerClass: domain.CallerBrowser, Outcome: "ok", Status: 200, CreatedAt: since.Add(-time.Hour)}
	_ = CreateRequestLog(ctx, db, &old)

	rows, err := CountRequestsByCaller(ctx, db, since)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	want := map[string]int64{"ai_agent/ok": 2, "ai_agent/rate_limited": 1, "browser/ok": 1}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for _, r := range rows {
		if want[string(r.CallerClass)+"/"+r.Outcome] != r.Total {
			t.Fatalf("unexpected row %+v", r)
		}
	}
}
