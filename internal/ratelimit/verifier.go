package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbourn/boxquote/internal/cache"
	"github.com/tbourn/boxquote/internal/domain"
)

// DefaultCredentialTTL bounds how long a cached verdict is trusted.
// Deactivating or expiring a key takes effect within this lag.
const DefaultCredentialTTL = 5 * time.Minute

// KeySource is the source of truth for issued credentials.
type KeySource interface {
	// FindAPIKeyByHash returns the key with the given SHA-256 hex hash, or
	// (nil, nil) when none exists.
	FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error)
}

// Tier is the quota class of a caller.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierKey       Tier = "key"
)

// Verdict is the cached result of validating one credential.
type Verdict struct {
	Valid    bool      `json:"valid"`
	Name     string    `json:"name,omitempty"`
	Limit    int       `json:"limit"`
	CachedAt time.Time `json:"cached_at"`

	// Hash is the full SHA-256 hex of the credential; never serialized.
	Hash string `json:"-"`
	// Presented reports whether the caller sent a credential at all.
	Presented bool `json:"-"`
	// Cached reports whether this verdict came from the cache.
	Cached bool `json:"-"`
}

// Tier returns the quota class the verdict grants.
func (v Verdict) Tier() Tier {
	if v.Valid {
		return TierKey
	}
	return TierAnonymous
}

// KeyPrefix returns a short, non-reversible identifier suitable for logs.
func (v Verdict) KeyPrefix() string {
	if len(v.Hash) < 8 {
		return ""
	}
	return v.Hash[:8]
}

// Verifier validates raw credentials through the cache.
type Verifier struct {
	store        cache.Store
	source       KeySource
	ttl          time.Duration
	defaultLimit int
	now          func() time.Time
}

// NewVerifier returns a Verifier. defaultLimit applies to valid keys that do
// not carry their own limit.
func NewVerifier(store cache.Store, source KeySource, ttl time.Duration, defaultLimit int) *Verifier {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	return &Verifier{store: store, source: source, ttl: ttl, defaultLimit: defaultLimit, now: time.Now}
}

// HashCredential returns the hex SHA-256 of raw. The raw credential is never
// stored or logged.
func HashCredential(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func credKey(hash string) string { return "cred:" + hash }

// Verify resolves raw into a verdict.
//
// An empty credential yields an anonymous verdict without touching the cache.
// Valid and invalid verdicts are cached alike for the TTL. If the key source
// fails, the caller is treated as anonymous, nothing is cached and the error
// is returned for logging.
func (v *Verifier) Verify(ctx context.Context, raw string) (Verdict, error) {
	if raw == "" {
		return Verdict{}, nil
	}
	hash := HashCredential(raw)

	if b, ok, err := v.store.Get(ctx, credKey(hash)); err == nil && ok {
		var cached Verdict
		if json.Unmarshal(b, &cached) == nil {
			cached.Hash, cached.Presented, cached.Cached = hash, true, true
			return cached, nil
		}
	} else if err != nil {
		logger(ctx).Warn().Err(err).Msg("credential cache read failed")
	}

	key, err := v.source.FindAPIKeyByHash(ctx, hash)
	if err != nil {
		return Verdict{Hash: hash, Presented: true}, fmt.Errorf("%w: credential lookup: %v", cache.ErrUnavailable, err)
	}

	now := v.now()
	verdict := Verdict{CachedAt: now, Hash: hash, Presented: true}
	if key != nil && key.Usable(now) {
		verdict.Valid = true
		verdict.Name = key.Name
		verdict.Limit = key.RateLimit
		if verdict.Limit <= 0 {
			verdict.Limit = v.defaultLimit
		}
	}

	if b, err := json.Marshal(verdict); err == nil {
		if err := v.store.Set(ctx, credKey(hash), b, v.ttl); err != nil {
			logger(ctx).Warn().Err(err).Msg("credential cache write failed")
		}
	}
	return verdict, nil
}

// Forget drops the cached verdict for the credential with the given hash so
// the next Verify consults the source again.
func (v *Verifier) Forget(ctx context.Context, hash string) error {
	return v.store.Delete(ctx, credKey(hash))
}
