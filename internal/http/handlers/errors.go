// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` and `failQuote()` helpers in this package).
// These codes give clients a stable, machine-readable error taxonomy that
// supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - Domain codes (below_minimum, config_unavailable, ...) name business
//     outcomes that status alone cannot convey.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "quote not found"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidationFailed  = "validation_failed"
	ErrCodeTooManyLines      = "too_many_lines"
	ErrCodeBelowMinimum      = "below_minimum"
	ErrCodeConfigUnavailable = "config_unavailable"
	ErrCodeMessageTooLong    = "message_too_long"
)

// Request outcomes recorded in API telemetry.
const (
	OutcomeQuoted            = "quoted"
	OutcomeBadRequest        = "bad_request"
	OutcomeValidationFailed  = "validation_failed"
	OutcomeBelowMinimum      = "below_minimum"
	OutcomeRateLimited       = "rate_limited"
	OutcomeReplayed          = "replayed"
	OutcomeConfigUnavailable = "config_unavailable"
	OutcomeInternalError     = "internal_error"
)
