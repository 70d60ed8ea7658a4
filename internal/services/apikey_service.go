// Package services – APIKeyService
//
// APIKeyService revokes issued API credentials. The database row is the
// source of truth; the cached verdict is dropped right after so the quota
// middleware stops honouring the key on the next request instead of when the
// cache entry expires.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// APIKeyRepo defines the repository contract required by APIKeyService.
type APIKeyRepo interface {
	// SetAPIKeyActive toggles the key with the given hash or returns
	// gorm.ErrRecordNotFound.
	SetAPIKeyActive(ctx context.Context, db *gorm.DB, hash string, active bool) error
}

// CredentialCache drops cached credential verdicts.
type CredentialCache interface {
	Forget(ctx context.Context, hash string) error
}

// APIKeyService manages API credentials.
type APIKeyService struct {
	DB    *gorm.DB
	Repo  APIKeyRepo
	Cache CredentialCache
}

// NewAPIKeyService constructs an APIKeyService. cache may be nil.
func NewAPIKeyService(db *gorm.DB, r APIKeyRepo, cache CredentialCache) *APIKeyService {
	return &APIKeyService{DB: db, Repo: r, Cache: cache}
}

// Revoke deactivates the key with the given SHA-256 hex hash and forgets its
// cached verdict. A cache failure is logged; the key then stays usable until
// its verdict expires.
func (s *APIKeyService) Revoke(ctx context.Context, hash string) error {
	hash = strings.ToLower(strings.TrimSpace(hash))
	ctx, span := otel.Tracer("services/APIKeyService").Start(ctx, "Revoke",
		trace.WithAttributes(attribute.String("key.prefix", prefix(hash, 8))))
	defer span.End()

	if hash == "" {
		return ErrAPIKeyNotFound
	}
	if err := s.Repo.SetAPIKeyActive(ctx, s.DB, hash, false); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAPIKeyNotFound
		}
		return err
	}
	if s.Cache != nil {
		if err := s.Cache.Forget(ctx, hash); err != nil {
			logger(ctx).Warn().Err(err).Str("key_prefix", prefix(hash, 8)).Msg("revoked key verdict still cached")
		}
	}
	logger(ctx).Info().Str("key_prefix", prefix(hash, 8)).Msg("api key revoked")
	return nil
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
