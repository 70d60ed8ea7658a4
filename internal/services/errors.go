// Package services holds the application logic behind the three quoting
// channels: the public API, the conversational channel and the internal web
// form. This file centralizes the service-level error values so handlers can
// map them to HTTP results consistently.
//
// Computation errors (validation, below minimum, too many lines) come from
// package quote and pass through unchanged; callers check them with
// errors.Is against the quote sentinels.
package services

import "errors"

var (
	// ErrConfigUnavailable indicates there is no usable active pricing
	// configuration. It is fatal for the strict channel; assisted channels
	// substitute the fallback configuration when one is loaded.
	ErrConfigUnavailable = errors.New("pricing configuration unavailable")

	// ErrUpstreamUnavailable marks a failed optional dependency (notifier,
	// classifier, telemetry store). It never fails the primary computation.
	ErrUpstreamUnavailable = errors.New("upstream dependency unavailable")

	// ErrQuoteNotFound indicates the requested quote does not exist.
	ErrQuoteNotFound = errors.New("quote not found")

	// ErrAPIKeyNotFound indicates no issued key has the given hash.
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrEmptyAddress is returned when an inbound message has no caller
	// address.
	ErrEmptyAddress = errors.New("address is empty")

	// ErrMessageTooLong is returned when an inbound message exceeds the
	// configured length limit.
	ErrMessageTooLong = errors.New("message too long")
)
