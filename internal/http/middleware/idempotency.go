// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for unsafe methods. The key is
// validated and scoped to the route and the caller identity (API key hash or
// client IP), so two callers can never see each other's stored responses.
// When a stored response exists for the scope and key, it is written back
// verbatim without running the handler and without consuming quota.
//
// In deferred mode the malformed-key rejection and the replay are written by
// IdempotencyGate instead, so the quota middleware mounted between the two
// still reports the caller's window on those responses.
//
// Handlers that complete successfully persist their response with the scope
// and key returned by GetIdempotency.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/boxquote/internal/ratelimit"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay marks a response served from the idempotency store.
const HeaderIdempotentReplay = "Idempotent-Replayed"

const (
	ctxKeyIdemKey     = "idem.key"
	ctxKeyIdemScope   = "idem.scope"
	ctxKeyIdemReplay  = "idem.replay"  // *StoredResponse to write back
	ctxKeyIdemInvalid = "idem.invalid" // bool: malformed key awaiting rejection
	ctxKeyRateBypass  = "rate.bypass"  // bool: true to skip rate limiting
)

// StoredResponse is a previously completed response.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyLookup returns the stored response for (scope, key) when one is
// still valid at now, or nil. Errors are logged and the request proceeds.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (*StoredResponse, error)

// IdempotencyOptions configures header validation for Idempotency.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 100.
	MaxLen int
	// Pattern restricts allowed characters. Nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Invalid writes the 400 response for a malformed key. Nil writes a
	// minimal JSON body.
	Invalid gin.HandlerFunc
	// Replayed runs just before a stored response is written back.
	Replayed func(c *gin.Context, stored *StoredResponse)
	// Deferred leaves rejections and replays to IdempotencyGate.
	Deferred bool
}

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

func (o IdempotencyOptions) withDefaults() IdempotencyOptions {
	if o.MaxLen <= 0 {
		o.MaxLen = 100
	}
	if o.Pattern == nil {
		o.Pattern = defaultIdemPattern
	}
	if o.Invalid == nil {
		o.Invalid = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid Idempotency-Key",
			})
		}
	}
	return o
}

// Idempotency validates the Idempotency-Key header (if present), stashes the
// key and its scope in the context and looks up a stored response. Unless
// opts.Deferred is set, malformed keys are rejected and stored responses
// replayed right here.
func Idempotency(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	opts = opts.withDefaults()

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		if len(key) > opts.MaxLen || !opts.Pattern.MatchString(key) {
			c.Set(ctxKeyIdemInvalid, true)
		} else {
			scope := c.FullPath() + "|" + callerIdentity(c)
			c.Set(ctxKeyIdemKey, key)
			c.Set(ctxKeyIdemScope, scope)

			if lookup != nil {
				stored, err := lookup(c.Request.Context(), scope, key, time.Now().UTC())
				if err != nil {
					LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
				}
				if stored != nil {
					c.Set(ctxKeyIdemReplay, stored)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}

		if !opts.Deferred && settleIdempotency(c, opts) {
			return
		}
		c.Next()
	}
}

// IdempotencyGate writes what a deferred Idempotency left pending: the 400
// for a malformed key or the stored response of a replay. Other requests pass
// through. opts should match the ones given to Idempotency.
func IdempotencyGate(opts IdempotencyOptions) gin.HandlerFunc {
	opts = opts.withDefaults()
	return func(c *gin.Context) {
		if settleIdempotency(c, opts) {
			return
		}
		c.Next()
	}
}

// settleIdempotency reports whether it answered the request.
func settleIdempotency(c *gin.Context, opts IdempotencyOptions) bool {
	if c.GetBool(ctxKeyIdemInvalid) {
		opts.Invalid(c)
		c.Abort()
		return true
	}
	stored, ok := ReplayFrom(c)
	if !ok {
		return false
	}
	if opts.Replayed != nil {
		opts.Replayed(c, stored)
	}
	c.Header(HeaderIdempotentReplay, "true")
	c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
	c.Abort()
	return true
}

// GetIdempotency returns the scope and key stashed by Idempotency.
func GetIdempotency(c *gin.Context) (scope, key string, ok bool) {
	key = c.GetString(ctxKeyIdemKey)
	scope = c.GetString(ctxKeyIdemScope)
	return scope, key, key != "" && scope != ""
}

// ReplayFrom returns the stored response Idempotency found for this
// request, if any.
func ReplayFrom(c *gin.Context) (*StoredResponse, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return nil, false
	}
	stored, ok := v.(*StoredResponse)
	return stored, ok && stored != nil
}

// callerIdentity identifies the caller for idempotency scoping without
// keeping the raw credential.
func callerIdentity(c *gin.Context) string {
	if raw := c.GetHeader(HeaderAPIKey); raw != "" {
		return "key:" + ratelimit.HashCredential(raw)[:16]
	}
	return "ip:" + c.ClientIP()
}
