// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for the JSON API,
// and LimitBody, which caps request bodies.
//
// Notes:
//   - No CSP here; nothing in this service renders HTML
//   - HSTS is opt-in and only applied when the request is actually HTTPS
//   - Correlation and quota headers are exposed to browser callers, which
//     matters for the public quote endpoint embedded in partner sites
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ExposedHeaders lists the response headers browser callers may read.
var ExposedHeaders = []string{
	requestIDHeader,
	HeaderRateLimit,
	HeaderRateRemaining,
	HeaderRateReset,
	"Retry-After",
	HeaderIdempotentReplay,
}

// SecurityOptions configures HTTP security headers emitted by SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security for HTTPS requests (never for
// plain HTTP). HSTSMaxAge defaults to 180 days. NoStore adds Cache-Control:
// no-store; quotes carry contact data and prices that must not be cached by
// intermediaries. EnablePolicy sends Permissions-Policy and
// X-Permitted-Cross-Domain-Policies.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStore      bool
	EnablePolicy bool
}

// SecurityHeaders returns a Gin middleware that adds conservative security
// headers to each response:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//
// plus the optional policy, cache and HSTS headers, and appends
// ExposedHeaders to Access-Control-Expose-Headers without clobbering values
// set by the CORS middleware.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int64(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int64((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.FormatInt(maxAge, 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		const hdr = "Access-Control-Expose-Headers"
		cur := h.Get(hdr)
		for _, name := range ExposedHeaders {
			if !strings.Contains(strings.ToLower(cur), strings.ToLower(name)) {
				if cur == "" {
					cur = name
				} else {
					cur += ", " + name
				}
			}
		}
		h.Set(hdr, cur)

		c.Next()
	}
}

// LimitBody caps the request body at maxBytes using http.MaxBytesReader.
// Reads past the cap fail, which the JSON binders report as a bad request.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// isHTTPS reports whether the incoming request used HTTPS either directly
// (r.TLS != nil) or via a reverse proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
