package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/boxquote/internal/cache"
	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/ratelimit"
)

type stubKeys struct {
	keys  map[string]*domain.APIKey
	err   error
	calls int
}

func (s *stubKeys) FindAPIKeyByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.keys[hash], nil
}

func newQuotaRouter(t *testing.T, keys *stubKeys, anon int, reject gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := cache.NewMemory()
	opts := QuotaOptions{
		Limiter:   ratelimit.NewLimiter(store, time.Minute),
		Verifier:  ratelimit.NewVerifier(store, keys, time.Minute, 50),
		AnonLimit: anon,
		Reject:    reject,
	}
	r := gin.New()
	r.Use(Quota(opts))
	r.POST("/q", func(c *gin.Context) {
		d, ok := RateDecisionFrom(c)
		if !ok {
			t.Fatalf("decision not stored")
		}
		c.JSON(http.StatusOK, gin.H{"remaining": d.Remaining, "tier": VerdictFrom(c).Tier()})
	})
	return r
}

func post(r http.Handler, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/q", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQuota_AnonymousLimit(t *testing.T) {
	r := newQuotaRouter(t, &stubKeys{}, 2, nil)

	for i := 1; i <= 2; i++ {
		w := post(r, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
		if got := w.Header().Get(HeaderRateRemaining); got != strconv.Itoa(2-i) {
			t.Fatalf("request %d: remaining %q", i, got)
		}
		if w.Header().Get(HeaderRateLimit) != "2" || w.Header().Get(HeaderRateReset) == "" {
			t.Fatalf("rate headers missing: %#v", w.Header())
		}
	}

	w := post(r, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get(HeaderRateRemaining) != "0" {
		t.Fatalf("429 headers: %#v", w.Header())
	}
}

func TestQuota_ValidKeyUsesOwnLimit(t *testing.T) {
	raw := "bq_live_partner"
	keys := &stubKeys{keys: map[string]*domain.APIKey{
		ratelimit.HashCredential(raw): {Name: "partner", RateLimit: 5, Active: true},
	}}
	r := newQuotaRouter(t, keys, 1, nil)

	for i := 0; i < 5; i++ {
		if w := post(r, map[string]string{HeaderAPIKey: raw}); w.Code != http.StatusOK {
			t.Fatalf("keyed request %d: status %d", i, w.Code)
		}
	}
	if w := post(r, map[string]string{HeaderAPIKey: raw}); w.Code != http.StatusTooManyRequests {
		t.Fatalf("keyed request over limit: status %d", w.Code)
	}
	// verdict cached after the first call
	if keys.calls != 1 {
		t.Fatalf("key source calls = %d; want 1", keys.calls)
	}

	// the anonymous tier has its own counter
	if w := post(r, nil); w.Code != http.StatusOK {
		t.Fatalf("anonymous request: status %d", w.Code)
	}
}

func TestQuota_InvalidOrFailingKeyIsAnonymous(t *testing.T) {
	r := newQuotaRouter(t, &stubKeys{}, 1, nil)
	if w := post(r, map[string]string{HeaderAPIKey: "unknown"}); w.Code != http.StatusOK {
		t.Fatalf("unknown key: status %d", w.Code)
	}
	if w := post(r, map[string]string{HeaderAPIKey: "unknown"}); w.Code != http.StatusTooManyRequests {
		t.Fatalf("unknown key shares the anonymous quota: status %d", w.Code)
	}

	r = newQuotaRouter(t, &stubKeys{err: errors.New("db down")}, 3, nil)
	w := post(r, map[string]string{HeaderAPIKey: "whatever"})
	if w.Code != http.StatusOK || w.Header().Get(HeaderRateLimit) != "3" {
		t.Fatalf("store failure should fall back to anonymous: %d %#v", w.Code, w.Header())
	}
}

func TestQuota_CustomRejectAndBypass(t *testing.T) {
	r := newQuotaRouter(t, &stubKeys{}, 0, func(c *gin.Context) {
		c.JSON(http.StatusTooManyRequests, gin.H{"custom": true})
	})
	w := post(r, nil)
	if w.Code != http.StatusTooManyRequests || w.Body.String() != `{"custom":true}` {
		t.Fatalf("custom reject: %d %s", w.Code, w.Body.String())
	}

	gin.SetMode(gin.TestMode)
	store := cache.NewMemory()
	rb := gin.New()
	rb.Use(func(c *gin.Context) {
		if c.GetHeader("X-Bypass") != "" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	})
	rb.Use(Quota(QuotaOptions{
		Limiter:   ratelimit.NewLimiter(store, time.Minute),
		Verifier:  ratelimit.NewVerifier(store, &stubKeys{}, time.Minute, 50),
		AnonLimit: 2,
	}))
	rb.POST("/q", func(c *gin.Context) {
		if _, ok := RateDecisionFrom(c); !ok {
			t.Errorf("decision not stored")
		}
		c.Status(http.StatusOK)
	})

	if w := post(rb, nil); w.Header().Get(HeaderRateRemaining) != "1" {
		t.Fatalf("counted request remaining = %q", w.Header().Get(HeaderRateRemaining))
	}
	for i := 0; i < 3; i++ {
		w := post(rb, map[string]string{"X-Bypass": "1"})
		if w.Code != http.StatusOK || w.Header().Get(HeaderRateLimit) != "2" || w.Header().Get(HeaderRateRemaining) != "1" {
			t.Fatalf("bypass %d: %d %#v", i, w.Code, w.Header())
		}
	}
	if w := post(rb, nil); w.Code != http.StatusOK || w.Header().Get(HeaderRateRemaining) != "0" {
		t.Fatalf("bypasses must not consume quota: %d %#v", w.Code, w.Header())
	}
}
