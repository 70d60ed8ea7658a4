// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file enforces the public API quota. Each request is attributed to a
// tier: callers presenting a valid X-API-Key are counted per key with the
// key's own limit, everyone else is counted per client IP with the anonymous
// limit. Counters live in a fixed window shared through the cache, so limits
// hold across replicas when the cache is Redis.
//
// Every response carries the quota state in X-RateLimit-* headers, and the
// decision is stored in the Gin context so handlers can repeat it in their
// body.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/boxquote/internal/ratelimit"
)

// HeaderAPIKey carries the optional opaque API credential.
const HeaderAPIKey = "X-API-Key"

// Rate-limit response headers.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

const (
	ctxKeyRateDecision = "rate.decision"
	ctxKeyVerdict      = "rate.verdict"
)

var rateRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "ratelimit_rejections_total",
	Help: "Requests rejected by the public API quota, by tier.",
}, []string{"tier"})

func init() {
	prometheus.MustRegister(rateRejections)
}

// QuotaOptions configures Quota.
type QuotaOptions struct {
	Limiter  *ratelimit.Limiter
	Verifier *ratelimit.Verifier
	// AnonLimit is the per-window limit for callers without a valid key.
	AnonLimit int
	// Scope prefixes the counter keys. Routes mounted with different scopes
	// keep separate windows for the same caller.
	Scope string
	// Reject writes the 429 response. Nil writes a minimal JSON body.
	Reject gin.HandlerFunc
}

// Quota returns a Gin middleware that verifies the caller credential and
// counts the request against its tier.
//
// Behavior:
//   - Idempotent replays (IsRateBypass) are not counted; their headers show
//     the current window as it stands.
//   - A credential store failure downgrades the caller to the anonymous tier.
//   - A counter store failure lets the request through with the tier it was
//     already assigned.
//   - When the quota is exhausted, X-RateLimit-* and Retry-After are set and
//     opts.Reject renders the response.
func Quota(opts QuotaOptions) gin.HandlerFunc {
	reject := opts.Reject
	if reject == nil {
		reject = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   ratelimit.ErrRateLimited.Error(),
			})
		}
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		raw := strings.TrimSpace(c.GetHeader(HeaderAPIKey))

		verdict, err := opts.Verifier.Verify(ctx, raw)
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("credential verification failed; anonymous tier")
		}
		c.Set(ctxKeyVerdict, verdict)

		key, limit := "ip:"+c.ClientIP(), opts.AnonLimit
		if verdict.Valid {
			key, limit = "key:"+verdict.Hash, verdict.Limit
		}
		if opts.Scope != "" {
			key = opts.Scope + "|" + key
		}

		if IsRateBypass(c) {
			d, _ := opts.Limiter.Peek(ctx, key, limit)
			c.Set(ctxKeyRateDecision, d)
			setRateHeaders(c, d)
			c.Next()
			return
		}

		d, _ := opts.Limiter.Allow(ctx, key, limit)
		c.Set(ctxKeyRateDecision, d)
		setRateHeaders(c, d)

		if !d.Allowed {
			rateRejections.WithLabelValues(string(verdict.Tier())).Inc()
			c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter(time.Now()).Seconds())))
			reject(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func setRateHeaders(c *gin.Context, d ratelimit.Decision) {
	h := c.Writer.Header()
	h.Set(HeaderRateLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// RateDecisionFrom returns the quota decision stored by Quota.
func RateDecisionFrom(c *gin.Context) (ratelimit.Decision, bool) {
	v, ok := c.Get(ctxKeyRateDecision)
	if !ok {
		return ratelimit.Decision{}, false
	}
	d, ok := v.(ratelimit.Decision)
	return d, ok
}

// VerdictFrom returns the credential verdict stored by Quota.
func VerdictFrom(c *gin.Context) ratelimit.Verdict {
	if v, ok := c.Get(ctxKeyVerdict); ok {
		if verdict, ok := v.(ratelimit.Verdict); ok {
			return verdict
		}
	}
	return ratelimit.Verdict{}
}

// IsRateBypass reports whether Idempotency marked this request as a replay
// that must not consume quota.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
