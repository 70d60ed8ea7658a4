// Package handlers provides HTTP handler implementations for the quoting API.
//
// This file defines the response utilities shared by all endpoints. Two
// shapes exist:
//
//   - ErrorResponse, the generic error envelope of the internal and
//     conversation endpoints, written by fail().
//   - QuoteEnvelope, the public quote envelope. Every public quote response,
//     success or failure, carries the caller's rate-limit state.
//
// Example public error:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "success": false,
//	  "error": "validation failed",
//	  "errors": ["boxes[0].length: must be between 100 and 2000 mm"],
//	  "rate_limit": {"limit": 10, "remaining": 7, "reset_at": "2025-03-10T12:01:00Z"}
//	}
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/http/middleware"
)

// ErrorResponse is the standard error envelope of non-quote endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"quote not found"`
}

// RateLimitInfo mirrors the X-RateLimit-* headers in the body.
type RateLimitInfo struct {
	Limit     int       `json:"limit" example:"10"`
	Remaining int       `json:"remaining" example:"7"`
	ResetAt   time.Time `json:"reset_at" example:"2025-03-10T12:01:00Z"`
}

// QuoteEnvelope is the public quote response.
type QuoteEnvelope struct {
	Success   bool           `json:"success"`
	Quote     *domain.Quote  `json:"quote,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Code      string         `json:"code,omitempty" example:"validation_failed"`
	Error     string         `json:"error,omitempty" example:"validation failed"`
	Errors    []string       `json:"errors,omitempty"`
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) call Fail to return consistent
// error envelopes without depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// rateLimitInfo returns the quota state stored by the Quota middleware.
func rateLimitInfo(c *gin.Context) *RateLimitInfo {
	d, ok := middleware.RateDecisionFrom(c)
	if !ok {
		return nil
	}
	return &RateLimitInfo{Limit: d.Limit, Remaining: d.Remaining, ResetAt: d.ResetAt.UTC()}
}

// failQuote aborts a public quote request with the quote envelope.
func failQuote(c *gin.Context, status int, code, msg string, details []string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Msg("quote api error")
	}
	c.AbortWithStatusJSON(status, QuoteEnvelope{
		Success:   false,
		Code:      code,
		Error:     msg,
		Errors:    details,
		RateLimit: rateLimitInfo(c),
	})
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
