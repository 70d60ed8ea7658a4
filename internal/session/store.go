// Package session stores the per-address state of the conversational
// quoting dialog.
//
// Every read applies the inactivity timeout, so an abandoned dialog is
// presented as a fresh initial session without a background sweeper.
// Read-modify-write cycles for one address are serialized by a per-address
// lock and committed with a version compare-and-swap, which also protects
// against other replicas writing the same row. Turns from different
// addresses never contend.
//
// When the durable store is unavailable the Store keeps serving the last
// state it saw for each address from process memory.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/repo"
)

// DefaultTimeout is the inactivity window after which a session restarts.
const DefaultTimeout = 30 * time.Minute

// maxAttempts bounds compare-and-swap retries for one Update.
const maxAttempts = 3

var tracer = otel.Tracer("session")

var (
	expiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_expired_total",
		Help: "Conversation sessions discarded on read after the inactivity timeout.",
	})
	fallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_store_fallback_total",
		Help: "Session operations served from process memory because the durable store failed.",
	}, []string{"op"})
	conflictTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_version_conflicts_total",
		Help: "Session writes retried after a version conflict.",
	})
)

func init() {
	prometheus.MustRegister(expiredTotal, fallbackTotal, conflictTotal)
}

// ErrConflict is returned by Update when every retry lost the
// compare-and-swap race.
var ErrConflict = errors.New("session update conflict")

// Repo is the durable persistence contract.
type Repo interface {
	GetSession(ctx context.Context, db *gorm.DB, address string) (*domain.ConversationSession, error)
	SaveSession(ctx context.Context, db *gorm.DB, s *domain.ConversationSession, expected int64) error
	DeleteSession(ctx context.Context, db *gorm.DB, address string) error
}

// GormRepo adapts the repo package functions to Repo.
type GormRepo struct{}

func (GormRepo) GetSession(ctx context.Context, db *gorm.DB, address string) (*domain.ConversationSession, error) {
	return repo.GetSession(ctx, db, address)
}

func (GormRepo) SaveSession(ctx context.Context, db *gorm.DB, s *domain.ConversationSession, expected int64) error {
	return repo.SaveSession(ctx, db, s, expected)
}

func (GormRepo) DeleteSession(ctx context.Context, db *gorm.DB, address string) error {
	return repo.DeleteSession(ctx, db, address)
}

// Store is the conversation session store. The zero value is not usable;
// construct with New.
type Store struct {
	DB      *gorm.DB
	Repo    Repo
	Timeout time.Duration
	Now     func() time.Time

	locks keyedMutex

	mu    sync.RWMutex
	local map[string]domain.ConversationSession
}

// New returns a Store with the default timeout and clock.
func New(db *gorm.DB, r Repo) *Store {
	return &Store{
		DB:      db,
		Repo:    r,
		Timeout: DefaultTimeout,
		Now:     time.Now,
		local:   make(map[string]domain.ConversationSession),
	}
}

// Get returns the current session for address. Unknown or expired addresses
// yield an initial-state session; nothing is written.
func (s *Store) Get(ctx context.Context, address string) (domain.ConversationSession, error) {
	ctx, span := tracer.Start(ctx, "session.Get")
	defer span.End()

	sess, _ := s.load(ctx, address)
	return sess, nil
}

// Update applies fn to the current session for address and persists the
// result as one atomic step. fn may be called more than once when another
// writer commits first, so it must not have side effects beyond the session.
// If fn returns an error nothing is written and the error is returned.
//
// Writes always refresh LastInteractionAt. When the durable store fails the
// new state is kept in process memory and returned without error.
func (s *Store) Update(ctx context.Context, address string, fn func(*domain.ConversationSession) error) (domain.ConversationSession, error) {
	ctx, span := tracer.Start(ctx, "session.Update")
	defer span.End()

	unlock := s.locks.Lock(address)
	defer unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cur, durable := s.load(ctx, address)
		next := cur
		if err := fn(&next); err != nil {
			return cur, err
		}
		next.Address = address
		next.LastInteractionAt = s.Now().UTC()

		if !durable {
			next.Version = cur.Version + 1
			s.remember(next)
			return next, nil
		}

		err := s.Repo.SaveSession(ctx, s.DB, &next, cur.Version)
		switch {
		case err == nil:
			s.remember(next)
			return next, nil
		case errors.Is(err, repo.ErrVersionConflict):
			conflictTotal.Inc()
			span.SetAttributes(attribute.Int("session.attempt", attempt))
			continue
		default:
			fallbackTotal.WithLabelValues("save").Inc()
			logger(ctx).Warn().Err(err).Str("addr", Fingerprint(address)).Msg("session save failed; keeping state in memory")
			next.Version = cur.Version + 1
			s.remember(next)
			return next, nil
		}
	}
	return domain.ConversationSession{}, fmt.Errorf("%w: %d attempts", ErrConflict, maxAttempts)
}

// Clear forgets the session for address in both the durable store and
// process memory.
func (s *Store) Clear(ctx context.Context, address string) error {
	unlock := s.locks.Lock(address)
	defer unlock()

	s.mu.Lock()
	delete(s.local, address)
	s.mu.Unlock()

	if err := s.Repo.DeleteSession(ctx, s.DB, address); err != nil {
		fallbackTotal.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// load reads the session, applying the timeout. durable reports whether the
// durable store answered; when false the result came from process memory.
func (s *Store) load(ctx context.Context, address string) (sess domain.ConversationSession, durable bool) {
	now := s.Now().UTC()

	stored, err := s.Repo.GetSession(ctx, s.DB, address)
	switch {
	case err == nil:
		sess, durable = *stored, true
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NewSession(address, now), true
	default:
		fallbackTotal.WithLabelValues("get").Inc()
		logger(ctx).Warn().Err(err).Str("addr", Fingerprint(address)).Msg("session read failed; using in-memory state")
		s.mu.RLock()
		cached, ok := s.local[address]
		s.mu.RUnlock()
		if !ok {
			return domain.NewSession(address, now), false
		}
		sess = cached
	}

	if s.expired(sess, now) {
		expiredTotal.Inc()
		fresh := domain.NewSession(address, now)
		// keep the version so the next write replaces the stale row
		fresh.Version = sess.Version
		fresh.CreatedAt = sess.CreatedAt
		return fresh, durable
	}
	return sess, durable
}

func (s *Store) expired(sess domain.ConversationSession, now time.Time) bool {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return now.Sub(sess.LastInteractionAt) > timeout
}

func (s *Store) remember(sess domain.ConversationSession) {
	s.mu.Lock()
	s.local[sess.Address] = sess
	s.mu.Unlock()
}

// Fingerprint returns a short stable digest of an address for logs, so phone
// numbers are never written in clear.
func Fingerprint(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:6])
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
