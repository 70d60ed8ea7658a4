// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file guards the internal staff endpoints with a shared token sent as
// X-Internal-Token or as a Bearer Authorization header. Staff identity is not
// modelled; the token only keeps the form and stats off the public surface.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderInternalToken carries the internal access token.
const HeaderInternalToken = "X-Internal-Token"

// RequireToken rejects requests that do not present token. deny writes the
// 401 response; nil writes a minimal JSON body. An empty token rejects
// everything, so a missing configuration never opens the routes.
func RequireToken(token string, deny gin.HandlerFunc) gin.HandlerFunc {
	if deny == nil {
		deny = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		}
	}
	want := []byte(token)

	return func(c *gin.Context) {
		got := c.GetHeader(HeaderInternalToken)
		if got == "" {
			if auth := c.GetHeader("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
				got = strings.TrimSpace(auth[7:])
			}
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			deny(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
