// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, caller classification and the public
// API quota.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/cache"
	"github.com/tbourn/boxquote/internal/config"
	"github.com/tbourn/boxquote/internal/conversation"
	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/http/handlers"
	"github.com/tbourn/boxquote/internal/http/middleware"
	"github.com/tbourn/boxquote/internal/intent"
	"github.com/tbourn/boxquote/internal/notify"
	"github.com/tbourn/boxquote/internal/ratelimit"
	"github.com/tbourn/boxquote/internal/repo"
	"github.com/tbourn/boxquote/internal/services"
	"github.com/tbourn/boxquote/internal/session"
)

// Deps carries the process-level collaborators built by main.
type Deps struct {
	DB    *gorm.DB
	Cache cache.Store
	// Notifier receives lead, high-value and escalation notices. Nil drops them.
	Notifier notify.Notifier
	// Classifier is consulted on chat parser misses. Nil disables it.
	Classifier intent.Classifier
	// FallbackPricing is served to assisted channels when the live
	// configuration cannot be read.
	FallbackPricing *domain.PricingConfig
}

// repoShim adapts the repository free functions to the repo interfaces
// declared by the services package.
type repoShim struct{}

func (repoShim) GetActivePricing(ctx context.Context, db *gorm.DB) (*domain.PricingConfig, error) {
	return repo.GetActivePricing(ctx, db)
}

func (repoShim) PublishPricing(ctx context.Context, db *gorm.DB, cfg domain.PricingConfig) (*domain.PricingConfig, error) {
	return repo.PublishPricing(ctx, db, cfg)
}

func (repoShim) CreateQuote(ctx context.Context, db *gorm.DB, q *domain.Quote) error {
	return repo.CreateQuote(ctx, db, q)
}

func (repoShim) GetQuote(ctx context.Context, db *gorm.DB, id string) (*domain.Quote, error) {
	return repo.GetQuote(ctx, db, id)
}

func (repoShim) UpdateQuoteStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return repo.UpdateQuoteStatus(ctx, db, id, status)
}

func (repoShim) GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, scope, key, now)
}

func (repoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, reference, response string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, scope, key, reference, response, status, ttl)
}

func (repoShim) SetAPIKeyActive(ctx context.Context, db *gorm.DB, hash string, active bool) error {
	return repo.SetAPIKeyActive(ctx, db, hash, active)
}

func (repoShim) CreateRequestLog(ctx context.Context, db *gorm.DB, l *domain.APIRequestLog) error {
	return repo.CreateRequestLog(ctx, db, l)
}

func (repoShim) CountRequestsByCaller(ctx context.Context, db *gorm.DB, since time.Time) ([]repo.CallerCount, error) {
	return repo.CountRequestsByCaller(ctx, db, since)
}

// keySource serves API credentials from the database.
type keySource struct{ db *gorm.DB }

func (k keySource) FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return repo.FindAPIKeyByHash(ctx, k.db, hash)
}

// idemStore persists completed quote responses for Idempotency-Key replays.
type idemStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idemStore) Save(ctx context.Context, scope, key, reference string, status int, body []byte) error {
	_, err := repo.CreateIdempotency(ctx, s.db, scope, key, reference, string(body), status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

func idemLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
		rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &middleware.StoredResponse{Status: rec.Status, Body: []byte(rec.Response)}, nil
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and wires services from deps.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// The public quote routes add, in order, caller classification, the
// idempotency lookup, the quota (which does not count replays) and the gate
// that writes replays and malformed-key rejections. The inbound chat webhook
// has its own quota window.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	db := deps.DB

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(middleware.LimitBody(cfg.MaxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderAPIKey, middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even without an Origin header, for health checks and scripts.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    middleware.ExposedHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    middleware.ExposedHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/cache
	store := deps.Cache
	if store == nil {
		store = cache.NewMemory()
	}

	pricingSvc := services.NewPricingService(db, repoShim{})
	pricingSvc.Fallback = deps.FallbackPricing

	quoteSvc := services.NewQuoteService(db, repoShim{}, pricingSvc, deps.Notifier)
	quoteSvc.HighValueThreshold = cfg.HighValueThreshold
	quoteSvc.NotifyTo = cfg.Notify.SalesTo

	sessions := session.New(db, session.GormRepo{})
	sessions.Timeout = cfg.SessionTimeout

	machine := conversation.New(quoteSvc, deps.Classifier)
	machine.AdvisorAddress = cfg.AdvisorAddress

	convoSvc := &services.ConversationService{
		DB:              db,
		Sessions:        sessions,
		Machine:         machine,
		Idempotency:     repoShim{},
		Quotes:          quoteSvc,
		Notifier:        deps.Notifier,
		ReplayTTL:       cfg.IdempotencyTTL,
		MaxMessageRunes: cfg.MaxMessageRunes,
	}

	telemetrySvc := services.NewTelemetryService(db, repoShim{})

	limiter := ratelimit.NewLimiter(store, cfg.Rate.Window)
	verifier := ratelimit.NewVerifier(store, keySource{db: db}, cfg.Rate.CredentialCacheTTL, cfg.Rate.KeyLimit)
	keySvc := services.NewAPIKeyService(db, repoShim{}, verifier)

	h := handlers.New(quoteSvc, pricingSvc, convoSvc, telemetrySvc, idemStore{db: db, ttl: cfg.IdempotencyTTL}, keySvc)

	quota := middleware.Quota(middleware.QuotaOptions{
		Limiter:   limiter,
		Verifier:  verifier,
		AnonLimit: cfg.Rate.AnonLimit,
		Reject:    h.RateLimited,
	})
	inboundQuota := middleware.Quota(middleware.QuotaOptions{
		Limiter:   limiter,
		Verifier:  verifier,
		AnonLimit: cfg.Rate.AnonLimit,
		Scope:     "inbound",
		Reject: func(c *gin.Context) {
			handlers.Fail(c, http.StatusTooManyRequests, handlers.ErrCodeRateLimited, "rate limit exceeded")
		},
	})

	// Malformed keys and replays are answered after the quota so they carry
	// the caller's X-RateLimit-* state; replays are not counted.
	idemOpts := middleware.IdempotencyOptions{
		MaxLen:   128,
		Deferred: true,
		Invalid:  h.InvalidIdempotencyKey,
		Replayed: h.Replayed,
	}

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		quotes := api.Group("/quotes",
			middleware.ClassifyCaller(),
			middleware.Idempotency(idemOpts, idemLookup(db)),
			quota,
			middleware.IdempotencyGate(idemOpts),
		)
		quotes.POST("", h.PostQuote)
		quotes.GET("/:id", h.GetQuote)

		api.GET("/pricing", h.GetPricing)
		api.POST("/conversations/inbound", inboundQuota, h.PostInbound)
	}

	// Staff surface
	internal := r.Group("/internal", middleware.RequireToken(cfg.InternalToken, func(c *gin.Context) {
		handlers.Fail(c, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "unauthorized")
	}))
	{
		internal.POST("/quotes", h.PostInternalQuote)
		internal.GET("/stats/callers", h.GetCallerStats)
		internal.GET("/conversations/:address", h.GetConversation)
		internal.DELETE("/conversations/:address", h.DeleteConversation)
		internal.POST("/pricing", h.PostPricing)
		internal.DELETE("/api-keys/:hash", h.DeleteAPIKey)
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
