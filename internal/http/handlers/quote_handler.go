// Public quote HTTP handlers.
//
// This file exposes the public quoting endpoints:
//   - POST /api/v1/quotes        (compute, strict policy)
//   - GET  /api/v1/quotes/{id}   (lookup)
//   - GET  /api/v1/pricing       (active public pricing)
//
// Caller classification, credential verification, quota and idempotent
// replays happen in middleware before PostQuote runs. Every outcome of
// PostQuote records one telemetry row, and so do the responses middleware
// renders through RateLimited, InvalidIdempotencyKey and Replayed.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/http/middleware"
	"github.com/tbourn/boxquote/internal/quote"
	"github.com/tbourn/boxquote/internal/services"
	"github.com/tbourn/boxquote/internal/sysutil"
)

//
// DTOs
//

// CreateQuoteRequest is the JSON payload for a public quote.
type CreateQuoteRequest struct {
	// Boxes lists 1 to 10 box types in the order they appear on the quote.
	Boxes []quote.BoxSpec `json:"boxes"`
	// Contact optionally turns the quote into a sales lead.
	Contact *services.Contact `json:"contact,omitempty"`
	// Origin identifies the embedding site or campaign.
	Origin string `json:"origin,omitempty" example:"partner-shop"`
}

// PricingResponse wraps the active public pricing parameters.
type PricingResponse struct {
	Success bool                 `json:"success"`
	Pricing domain.PricingConfig `json:"pricing"`
}

// quoteOutcome classifies a service error for the response and telemetry.
type quoteOutcome struct {
	status  int
	code    string
	outcome string
	msg     string
	details []string
}

func classifyQuoteError(err error) quoteOutcome {
	var verr *quote.ValidationError
	switch {
	case errors.As(err, &verr):
		return quoteOutcome{http.StatusBadRequest, ErrCodeValidationFailed, OutcomeValidationFailed, quote.ErrValidationFailed.Error(), verr.Messages()}
	case errors.Is(err, quote.ErrTooManyLines):
		return quoteOutcome{http.StatusBadRequest, ErrCodeTooManyLines, OutcomeValidationFailed, err.Error(), nil}
	case errors.Is(err, quote.ErrBelowAbsoluteMinimum):
		return quoteOutcome{http.StatusBadRequest, ErrCodeBelowMinimum, OutcomeBelowMinimum, err.Error(), nil}
	case errors.Is(err, services.ErrConfigUnavailable):
		return quoteOutcome{http.StatusServiceUnavailable, ErrCodeConfigUnavailable, OutcomeConfigUnavailable, "pricing is temporarily unavailable", nil}
	default:
		return quoteOutcome{http.StatusInternalServerError, ErrCodeInternal, OutcomeInternalError, "internal server error", nil}
	}
}

// PostQuote godoc
// @ID          createQuote
// @Summary     Quote corrugated boxes
// @Description Prices 1 to 10 box types with live pricing. Quotes under the
// @Description absolute minimum area are rejected. Supplying contact data
// @Description registers a sales lead. Supports Idempotency-Key replays.
// @Tags        Quotes
// @Accept      json
// @Produce     json
//
// @Param       X-API-Key        header  string  false  "API credential; raises the rate limit"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateQuoteRequest  true  "Boxes and optional contact"
//
// @Success     200  {object}  handlers.QuoteEnvelope  "Quote"
// @Failure     400  {object}  handlers.QuoteEnvelope  "Validation error or below minimum"
// @Failure     429  {object}  handlers.QuoteEnvelope  "Rate limited"
// @Failure     500  {object}  handlers.QuoteEnvelope  "Internal error"
// @Failure     503  {object}  handlers.QuoteEnvelope  "Pricing unavailable"
// @Router      /quotes [post]
func (h *Handlers) PostQuote(c *gin.Context) {
	start := h.now()
	ctx := c.Request.Context()

	var req CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		h.recordQuote(c, start, http.StatusBadRequest, OutcomeBadRequest, &req, nil)
		failQuote(c, http.StatusBadRequest, ErrCodeBadRequest, msg, nil)
		return
	}

	res, err := h.quotes.Create(ctx, services.QuoteRequest{
		Channel: domain.ChannelAPI,
		Boxes:   req.Boxes,
		Contact: req.Contact,
		Origin:  sysutil.FirstNonEmpty(req.Origin, c.GetHeader("Origin")),
	}, quote.PolicyStrict)
	if err != nil {
		o := classifyQuoteError(err)
		if o.status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		h.recordQuote(c, start, o.status, o.outcome, &req, nil)
		failQuote(c, o.status, o.code, o.msg, o.details)
		return
	}

	env := QuoteEnvelope{
		Success:   true,
		Quote:     &res.Quote,
		Warnings:  res.Warnings,
		RateLimit: rateLimitInfo(c),
	}
	h.recordQuote(c, start, http.StatusOK, OutcomeQuoted, &req, &res.Quote)
	h.storeIdempotent(c, res.Quote.ID, http.StatusOK, env)
	ok(c, http.StatusOK, env)
}

// RateLimited renders the 429 quote envelope and records the rejection. The
// router installs it as the Quota middleware's Reject handler.
func (h *Handlers) RateLimited(c *gin.Context) {
	h.recordQuote(c, h.now(), http.StatusTooManyRequests, OutcomeRateLimited, nil, nil)
	failQuote(c, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded", nil)
}

// InvalidIdempotencyKey renders the 400 for a malformed Idempotency-Key and
// records it. The router installs it as the idempotency Invalid handler.
func (h *Handlers) InvalidIdempotencyKey(c *gin.Context) {
	h.recordQuote(c, h.now(), http.StatusBadRequest, OutcomeBadRequest, nil, nil)
	failQuote(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid Idempotency-Key", nil)
}

// Replayed records a response served from the idempotency store.
func (h *Handlers) Replayed(c *gin.Context, stored *middleware.StoredResponse) {
	h.recordQuote(c, h.now(), stored.Status, OutcomeReplayed, nil, nil)
}

// GetQuote godoc
// @ID          getQuote
// @Summary     Get a quote
// @Description Returns a previously issued quote. Contact data is never
// @Description included.
// @Tags        Quotes
// @Produce     json
// @Param       id   path  string  true  "Quote ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.QuoteEnvelope
// @Failure     404  {object}  handlers.QuoteEnvelope  "Quote not found"
// @Failure     429  {object}  handlers.QuoteEnvelope  "Rate limited"
// @Failure     500  {object}  handlers.QuoteEnvelope  "Internal error"
// @Router      /quotes/{id} [get]
func (h *Handlers) GetQuote(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	q, err := h.quotes.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrQuoteNotFound) {
			failQuote(c, http.StatusNotFound, ErrCodeNotFound, "quote not found", nil)
			return
		}
		_ = c.Error(err)
		failQuote(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", nil)
		return
	}
	ok(c, http.StatusOK, QuoteEnvelope{Success: true, Quote: q, RateLimit: rateLimitInfo(c)})
}

// GetPricing godoc
// @ID          getPricing
// @Summary     Active pricing
// @Description Returns the live pricing parameters used by the public API.
// @Tags        Quotes
// @Produce     json
// @Success     200  {object}  handlers.PricingResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Pricing unavailable"
// @Router      /pricing [get]
func (h *Handlers) GetPricing(c *gin.Context) {
	cfg, err := h.pricing.Active(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrConfigUnavailable) {
			fail(c, http.StatusServiceUnavailable, ErrCodeConfigUnavailable, "pricing is temporarily unavailable")
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	ok(c, http.StatusOK, PricingResponse{Success: true, Pricing: cfg})
}

// recordQuote stores one telemetry row for a public quote request. req and q
// may be nil.
func (h *Handlers) recordQuote(c *gin.Context, start time.Time, status int, outcome string, req *CreateQuoteRequest, q *domain.Quote) {
	if h.telemetry == nil {
		return
	}
	class, agent := middleware.CallerFrom(c)
	verdict := middleware.VerdictFrom(c)
	l := domain.APIRequestLog{
		RequestID:   middleware.RequestIDFrom(c),
		CallerClass: class,
		AgentName:   agent,
		UserAgent:   truncate(c.Request.UserAgent(), 255),
		KeyPrefix:   verdict.KeyPrefix(),
		RemoteIP:    c.ClientIP(),
		Status:      status,
		Outcome:     outcome,
		LatencyMS:   h.now().Sub(start).Milliseconds(),
	}
	if req != nil {
		l.Boxes = len(req.Boxes)
		l.HasContact = req.Contact.Present()
		l.Origin = truncate(sysutil.FirstNonEmpty(req.Origin, c.GetHeader("Origin")), 120)
	} else {
		l.Origin = truncate(c.GetHeader("Origin"), 120)
	}
	if q != nil {
		l.Subtotal = q.Subtotal
	}
	h.telemetry.Record(c.Request.Context(), l)
}

// storeIdempotent persists a successful response when the request carried an
// Idempotency-Key. Best effort: failures are logged.
func (h *Handlers) storeIdempotent(c *gin.Context, reference string, status int, body any) {
	scope, key, found := middleware.GetIdempotency(c)
	if !found || h.idem == nil {
		return
	}
	b, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := h.idem.Save(c.Request.Context(), scope, key, reference, status, b); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotent response")
	}
}

func truncate(s string, max int) string {
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}
