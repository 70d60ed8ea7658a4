package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type memLookup struct {
	stored map[string]*StoredResponse
	scopes []string
	err    error
}

func (m *memLookup) lookup(_ context.Context, scope, key string, _ time.Time) (*StoredResponse, error) {
	m.scopes = append(m.scopes, scope)
	if m.err != nil {
		return nil, m.err
	}
	return m.stored[scope+"#"+key], nil
}

func newIdemRouter(l *memLookup, hits *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Idempotency(IdempotencyOptions{MaxLen: 16}, l.lookup))
	r.POST("/api/v1/quotes", func(c *gin.Context) {
		*hits++
		scope, key, ok := GetIdempotency(c)
		_, replay := ReplayFrom(c)
		c.JSON(http.StatusCreated, gin.H{"scope": scope, "key": key, "ok": ok, "replay": replay})
	})
	return r
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	l := &memLookup{}
	var hits int
	r := newIdemRouter(l, &hits)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil))
	if w.Code != http.StatusCreated || hits != 1 || len(l.scopes) != 0 {
		t.Fatalf("status=%d hits=%d lookups=%d", w.Code, hits, len(l.scopes))
	}
	if !strings.Contains(w.Body.String(), `"ok":false`) {
		t.Fatalf("GetIdempotency without header: %s", w.Body.String())
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	var hits int
	r := newIdemRouter(&memLookup{}, &hits)

	for _, key := range []string{"has space", "way-too-long-for-sixteen", "bad/slash"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: status %d", key, w.Code)
		}
	}
	if hits != 0 {
		t.Fatalf("handler ran for invalid keys")
	}
}

func TestIdempotency_ReplayAndScope(t *testing.T) {
	l := &memLookup{stored: map[string]*StoredResponse{}}
	var hits int
	r := newIdemRouter(l, &hits)

	send := func(hdr map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		for k, v := range hdr {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(map[string]string{HeaderIdempotencyKey: "order-1"})
	if w.Code != http.StatusCreated || hits != 1 {
		t.Fatalf("first call: %d hits=%d", w.Code, hits)
	}
	ipScope := l.scopes[0]
	if ipScope != "/api/v1/quotes|ip:10.0.0.9" {
		t.Fatalf("ip scope = %q", ipScope)
	}

	l.stored[ipScope+"#order-1"] = &StoredResponse{Status: http.StatusCreated, Body: []byte(`{"success":true}`)}
	w = send(map[string]string{HeaderIdempotencyKey: "order-1"})
	if hits != 1 || w.Code != http.StatusCreated || w.Body.String() != `{"success":true}` {
		t.Fatalf("replay: hits=%d status=%d body=%s", hits, w.Code, w.Body.String())
	}
	if w.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Fatalf("replay header missing")
	}

	// the same key from a keyed caller is a different scope
	w = send(map[string]string{HeaderIdempotencyKey: "order-1", HeaderAPIKey: "bq_live_x"})
	if hits != 2 || w.Header().Get(HeaderIdempotentReplay) != "" {
		t.Fatalf("keyed caller must not see the anonymous replay")
	}
	keyScope := l.scopes[len(l.scopes)-1]
	if !strings.HasPrefix(keyScope, "/api/v1/quotes|key:") || strings.Contains(keyScope, "bq_live_x") {
		t.Fatalf("key scope = %q", keyScope)
	}
}

func TestIdempotency_LookupErrorProceeds(t *testing.T) {
	l := &memLookup{err: errors.New("db down")}
	var hits int
	r := newIdemRouter(l, &hits)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated || hits != 1 {
		t.Fatalf("lookup failure should not block: %d hits=%d", w.Code, hits)
	}
}

func TestIdempotency_DeferredGateRunsAfterLaterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := &memLookup{stored: map[string]*StoredResponse{
		"/api/v1/quotes|ip:10.0.0.9#order-1": {Status: http.StatusOK, Body: []byte(`{"success":true}`)},
	}}
	var hits, replayed, invalid int
	opts := IdempotencyOptions{
		MaxLen:   16,
		Deferred: true,
		Invalid: func(c *gin.Context) {
			invalid++
			c.JSON(http.StatusBadRequest, gin.H{"between": c.GetBool("between")})
		},
		Replayed: func(c *gin.Context, stored *StoredResponse) {
			if stored.Status != http.StatusOK || !c.GetBool("between") || !IsRateBypass(c) {
				t.Errorf("replay hook saw status=%d between=%v", stored.Status, c.GetBool("between"))
			}
			replayed++
		},
	}
	r := gin.New()
	r.POST("/api/v1/quotes", Idempotency(opts, l.lookup), func(c *gin.Context) {
		c.Set("between", true)
		c.Header("X-Between", "1")
		c.Next()
	}, IdempotencyGate(opts), func(c *gin.Context) {
		hits++
		c.Status(http.StatusCreated)
	})

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		req.Header.Set(HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send("bad key")
	if w.Code != http.StatusBadRequest || invalid != 1 || w.Header().Get("X-Between") != "1" ||
		!strings.Contains(w.Body.String(), `"between":true`) {
		t.Fatalf("invalid key: status=%d invalid=%d body=%s", w.Code, invalid, w.Body.String())
	}

	w = send("order-1")
	if w.Code != http.StatusOK || replayed != 1 || w.Body.String() != `{"success":true}` ||
		w.Header().Get("X-Between") != "1" || w.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Fatalf("replay: status=%d replayed=%d body=%s", w.Code, replayed, w.Body.String())
	}

	if w := send("order-2"); w.Code != http.StatusCreated || hits != 1 {
		t.Fatalf("fresh key: status=%d hits=%d", w.Code, hits)
	}
}
