// Package handlers exposes the HTTP endpoints of the quoting service:
//
//   - POST /api/v1/quotes                    public quote (strict policy)
//   - GET  /api/v1/quotes/{id}               stored quote lookup
//   - GET  /api/v1/pricing                   active public pricing
//   - POST /api/v1/conversations/inbound     chat provider webhook
//   - POST /internal/quotes                  internal web form (assisted policy)
//   - GET  /internal/stats/callers           request counts by caller class
//   - GET/DELETE /internal/conversations/{address}
//   - POST /internal/pricing                 publish a pricing version
//   - DELETE /internal/api-keys/{hash}       revoke an API key
//
// Handlers are transport-thin: they bind input, call application services
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/boxquote/internal/conversation"
	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/quote"
	"github.com/tbourn/boxquote/internal/repo"
	"github.com/tbourn/boxquote/internal/services"
)

//
// Service contracts (context-aware)
//

// QuoteService prices and retrieves quotes.
type QuoteService interface {
	// Create prices req under policy and persists the result.
	Create(ctx context.Context, req services.QuoteRequest, policy quote.Policy) (*quote.Result, error)
	// Get returns a stored quote or services.ErrQuoteNotFound.
	Get(ctx context.Context, id string) (*domain.Quote, error)
}

// PricingService exposes and publishes the live pricing configuration.
type PricingService interface {
	// Active returns the live configuration or services.ErrConfigUnavailable.
	Active(ctx context.Context) (domain.PricingConfig, error)
	// Publish validates cfg and makes it the active version.
	Publish(ctx context.Context, cfg domain.PricingConfig) (*domain.PricingConfig, error)
}

// APIKeyService revokes API credentials.
type APIKeyService interface {
	// Revoke deactivates a key by hash or returns services.ErrAPIKeyNotFound.
	Revoke(ctx context.Context, hash string) error
}

// ConversationService runs chat turns.
type ConversationService interface {
	Handle(ctx context.Context, in conversation.Inbound) (conversation.Reply, error)
	Session(ctx context.Context, address string) (domain.ConversationSession, error)
	Reset(ctx context.Context, address string) error
}

// TelemetryService records and aggregates public API requests.
type TelemetryService interface {
	Record(ctx context.Context, l domain.APIRequestLog)
	CallerStats(ctx context.Context, since time.Time) ([]repo.CallerCount, error)
}

// IdempotencyStore persists completed responses for Idempotency-Key replays.
type IdempotencyStore interface {
	// Save stores body under (scope, key). A duplicate is not an error for
	// the caller; the first stored response wins.
	Save(ctx context.Context, scope, key, reference string, status int, body []byte) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	quotes    QuoteService
	pricing   PricingService
	convo     ConversationService
	telemetry TelemetryService
	idem      IdempotencyStore
	keys      APIKeyService

	now func() time.Time
}

// New constructs a Handlers instance bound to the given services. The
// telemetry and idempotency dependencies may be nil.
func New(quotes QuoteService, pricing PricingService, convo ConversationService, telemetry TelemetryService, idem IdempotencyStore, keys APIKeyService) *Handlers {
	return &Handlers{
		quotes:    quotes,
		pricing:   pricing,
		convo:     convo,
		telemetry: telemetry,
		idem:      idem,
		keys:      keys,
		now:       time.Now,
	}
}
