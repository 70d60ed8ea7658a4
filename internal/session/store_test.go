package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/repo"
)

// ---------- helpers ----------
func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:sess_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC)}
	s := New(newDB(t), GormRepo{})
	s.Now = clk.Now
	return s, clk
}

// flakyRepo wraps GormRepo and can be switched into failure mode.
type flakyRepo struct {
	GormRepo
	mu   sync.Mutex
	down bool
}

func (f *flakyRepo) setDown(v bool) { f.mu.Lock(); f.down = v; f.mu.Unlock() }
func (f *flakyRepo) isDown() bool   { f.mu.Lock(); defer f.mu.Unlock(); return f.down }

func (f *flakyRepo) GetSession(ctx context.Context, db *gorm.DB, a string) (*domain.ConversationSession, error) {
	if f.isDown() {
		return nil, errors.New("connection refused")
	}
	return f.GormRepo.GetSession(ctx, db, a)
}

func (f *flakyRepo) SaveSession(ctx context.Context, db *gorm.DB, s *domain.ConversationSession, v int64) error {
	if f.isDown() {
		return errors.New("connection refused")
	}
	return f.GormRepo.SaveSession(ctx, db, s, v)
}

func (f *flakyRepo) DeleteSession(ctx context.Context, db *gorm.DB, a string) error {
	if f.isDown() {
		return errors.New("connection refused")
	}
	return f.GormRepo.DeleteSession(ctx, db, a)
}

// ---------- tests ----------
func TestStore_UnknownAddressIsInitial(t *testing.T) {
	s, clk := newStore(t)
	got, err := s.Get(context.Background(), "5491111111111")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Step != domain.StepInitial || got.Address != "5491111111111" || got.Version != 0 {
		t.Fatalf("unexpected fresh session: %+v", got)
	}
	if !got.LastInteractionAt.Equal(clk.Now()) {
		t.Fatalf("fresh session timestamp = %v", got.LastInteractionAt)
	}
}

func TestStore_UpdatePersistsAndRefreshesTimestamp(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)

	_, err := s.Update(ctx, "a", func(cs *domain.ConversationSession) error {
		cs.Step = domain.StepWaitingName
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	clk.Advance(10 * time.Minute)
	next, err := s.Update(ctx, "a", func(cs *domain.ConversationSession) error {
		if cs.Step != domain.StepWaitingName {
			return fmt.Errorf("unexpected step %s", cs.Step)
		}
		cs.ClientName = "Ana"
		cs.Step = domain.StepWaitingDimensions
		return nil
	})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if next.Version != 2 || !next.LastInteractionAt.Equal(clk.Now()) {
		t.Fatalf("version/timestamp = %d %v", next.Version, next.LastInteractionAt)
	}

	got, _ := s.Get(ctx, "a")
	if got.ClientName != "Ana" || got.Step != domain.StepWaitingDimensions {
		t.Fatalf("persisted = %+v", got)
	}
}

func TestStore_FnErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	boom := errors.New("boom")
	if _, err := s.Update(ctx, "a", func(cs *domain.ConversationSession) error {
		cs.Step = domain.StepQuoted
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if got, _ := s.Get(ctx, "a"); got.Step != domain.StepInitial {
		t.Fatalf("state leaked: %+v", got)
	}
}

func TestStore_ExpiryOnReadLeaksNothing(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)

	_, _ = s.Update(ctx, "a", func(cs *domain.ConversationSession) error {
		cs.Step = domain.StepWaitingPrinting
		cs.ClientName, cs.ClientEmail = "Ana", "ana@example.com"
		cs.Length, cs.Width, cs.Height, cs.Quantity = 400, 300, 200, 500
		cs.LastQuoteSubtotal = 1234
		return nil
	})

	clk.Advance(30 * time.Minute)
	if got, _ := s.Get(ctx, "a"); got.Step != domain.StepWaitingPrinting {
		t.Fatalf("exactly at the timeout the session is still live, got %s", got.Step)
	}

	clk.Advance(time.Second)
	got, _ := s.Get(ctx, "a")
	want := domain.NewSession("a", clk.Now())
	want.Version, want.CreatedAt = got.Version, got.CreatedAt
	if got != want {
		t.Fatalf("expired session leaked data:\n got %+v\nwant %+v", got, want)
	}

	// The next write replaces the stale row.
	after, err := s.Update(ctx, "a", func(cs *domain.ConversationSession) error {
		cs.Step = domain.StepWaitingClientType
		return nil
	})
	if err != nil {
		t.Fatalf("Update after expiry: %v", err)
	}
	if after.ClientName != "" || after.Quantity != 0 || after.LastQuoteSubtotal != 0 {
		t.Fatalf("stale data rewritten: %+v", after)
	}
}

func TestStore_ConcurrentTurnsSameAddressSerialize(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	const turns = 20
	var wg sync.WaitGroup
	wg.Add(turns)
	for i := 0; i < turns; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Update(ctx, "same", func(cs *domain.ConversationSession) error {
				cs.Quantity++
				return nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "same")
	if got.Quantity != turns || got.Version != turns {
		t.Fatalf("lost updates: quantity=%d version=%d", got.Quantity, got.Version)
	}
	if n := s.locks.size(); n != 0 {
		t.Fatalf("locks not released: %d", n)
	}
}

func TestStore_ConflictFromOtherWriterIsRetried(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	_, _ = s.Update(ctx, "a", func(cs *domain.ConversationSession) error { return nil })

	calls := 0
	got, err := s.Update(ctx, "a", func(cs *domain.ConversationSession) error {
		calls++
		if calls == 1 {
			// Simulate another replica committing between our read and write.
			other, _ := repo.GetSession(ctx, s.DB, "a")
			other.ClientName = "other"
			if err := repo.SaveSession(ctx, s.DB, other, other.Version); err != nil {
				return err
			}
		}
		cs.Quantity = 7
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 || got.ClientName != "other" || got.Quantity != 7 {
		t.Fatalf("calls=%d got=%+v", calls, got)
	}
}

func TestStore_DurableOutageFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	fr := &flakyRepo{}
	s := New(newDB(t), fr)

	_, _ = s.Update(ctx, "known", func(cs *domain.ConversationSession) error {
		cs.Step = domain.StepWaitingQuantity
		cs.Length = 400
		return nil
	})

	fr.setDown(true)
	got, err := s.Get(ctx, "known")
	if err != nil || got.Step != domain.StepWaitingQuantity || got.Length != 400 {
		t.Fatalf("fallback read = %+v %v", got, err)
	}
	if unknown, _ := s.Get(ctx, "never-seen"); unknown.Step != domain.StepInitial {
		t.Fatalf("unknown address must be initial during outage")
	}

	next, err := s.Update(ctx, "known", func(cs *domain.ConversationSession) error {
		cs.Quantity = 500
		cs.Step = domain.StepWaitingPrinting
		return nil
	})
	if err != nil || next.Quantity != 500 {
		t.Fatalf("degraded update = %+v %v", next, err)
	}
	if got, _ := s.Get(ctx, "known"); got.Step != domain.StepWaitingPrinting {
		t.Fatalf("degraded state not served: %s", got.Step)
	}

	if err := s.Clear(ctx, "known"); err == nil {
		t.Fatalf("Clear should report durable failure")
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	_, _ = s.Update(ctx, "a", func(cs *domain.ConversationSession) error {
		cs.Step = domain.StepQuoted
		return nil
	})
	if err := s.Clear(ctx, "a"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.Get(ctx, "a"); got.Step != domain.StepInitial || got.Version != 0 {
		t.Fatalf("after clear = %+v", got)
	}
}

func TestFingerprint(t *testing.T) {
	a, b := Fingerprint("5491100000000"), Fingerprint("5491100000001")
	if len(a) != 12 || a == b || a != Fingerprint("5491100000000") {
		t.Fatalf("fingerprints %q %q", a, b)
	}
}
