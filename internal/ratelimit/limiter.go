// Package ratelimit enforces fixed-window request quotas per caller and
// caches API credential verdicts so the credential store is not hit on every
// request.
//
// Counters and verdicts live in an injected cache.Store, so the same code
// runs against process memory or a shared Redis.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/boxquote/internal/cache"
)

// ErrRateLimited is reported when a caller exceeded its quota for the
// current window.
var ErrRateLimited = errors.New("rate limit exceeded")

// DefaultWindow is the counter window length.
const DefaultWindow = 60 * time.Second

// Decision is the outcome of one Allow call. It is always populated so the
// caller can emit rate-limit metadata even on error paths.
type Decision struct {
	Allowed   bool      `json:"-"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter is the wait until the window rolls over, rounded up to whole
// seconds and never below one.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Truncate(time.Second) + time.Second
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	store  cache.Store
	window time.Duration
	now    func() time.Time
}

// NewLimiter returns a Limiter over store. A non-positive window falls back
// to DefaultWindow.
func NewLimiter(store cache.Store, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, window: window, now: time.Now}
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records one request for key against limit. The first request of a
// window starts it; the (limit+1)th request in the same window is the first
// one rejected.
//
// When the counter store fails the request is allowed and the decision
// reports the full quota; the failure is logged. Callers keep the tier they
// were already assigned, so a store outage never grants a higher limit.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit < 0 {
		limit = 0
	}
	count, resetAt, err := l.store.Incr(ctx, "rl:"+key, l.window)
	if err != nil {
		logger(ctx).Warn().Err(err).Str("key", key).Msg("rate limit counter unavailable; allowing request")
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: l.now().Add(l.window)}, err
	}

	d := Decision{Limit: limit, ResetAt: resetAt}
	if count <= int64(limit) {
		d.Allowed = true
		d.Remaining = limit - int(count)
	}
	return d, nil
}

// Peek reports the state of key's current window without counting a
// request. The decision is always Allowed; an absent counter reads as a
// fresh window. Store failures are logged and report the full quota.
func (l *Limiter) Peek(ctx context.Context, key string, limit int) (Decision, error) {
	if limit < 0 {
		limit = 0
	}
	now := l.now()
	count, resetAt, err := l.store.Count(ctx, "rl:"+key)
	if err != nil {
		logger(ctx).Warn().Err(err).Str("key", key).Msg("rate limit counter unavailable")
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(l.window)}, err
	}
	if count == 0 || resetAt.IsZero() {
		resetAt = now.Add(l.window)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: limit, Remaining: remaining, ResetAt: resetAt}, nil
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
