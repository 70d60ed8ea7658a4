package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu   sync.Mutex
	got  []Notification
	fail error
}

func (r *recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.fail
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

// ---------- Dispatcher ----------
func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, Options{QueueSize: 16, Workers: 3, PerSecond: 1000, Burst: 100})
	for i := 0; i < 10; i++ {
		if !d.Enqueue(Notification{Kind: KindLead, Subject: "lead"}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if rec.len() != 10 {
		t.Fatalf("delivered %d, want 10", rec.len())
	}
	for _, n := range rec.got {
		if n.At.IsZero() {
			t.Fatalf("timestamp not stamped")
		}
	}
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	var sent int32
	blocking := SenderFunc(func(ctx context.Context, _ Notification) error {
		<-release
		atomic.AddInt32(&sent, 1)
		return nil
	})
	d := NewDispatcher(blocking, Options{QueueSize: 1, Workers: 1, PerSecond: 1000, Burst: 10})

	accepted := 0
	start := time.Now()
	for i := 0; i < 20; i++ {
		if d.Enqueue(Notification{Kind: KindHighValue}) {
			accepted++
		}
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Enqueue blocked")
	}
	// one in flight plus one queued at most
	if accepted < 1 || accepted > 2 {
		t.Fatalf("accepted=%d, want 1..2", accepted)
	}
	close(release)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if int(atomic.LoadInt32(&sent)) != accepted {
		t.Fatalf("sent=%d accepted=%d", sent, accepted)
	}
}

func TestDispatcher_FailuresAndPanicsDoNotStopWorkers(t *testing.T) {
	var calls int32
	s := SenderFunc(func(context.Context, Notification) error {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return errors.New("boom")
		case 2:
			panic("sender bug")
		}
		return nil
	})
	d := NewDispatcher(s, Options{Workers: 1, PerSecond: 1000, Burst: 10})
	for i := 0; i < 4; i++ {
		d.Enqueue(Notification{Kind: KindAdvisor})
	}
	_ = d.Close(context.Background())
	if atomic.LoadInt32(&calls) != 4 {
		t.Fatalf("calls=%d, want 4", calls)
	}
}

func TestDispatcher_ClosedRejects(t *testing.T) {
	d := NewDispatcher(&recorder{}, Options{})
	_ = d.Close(context.Background())
	if d.Enqueue(Notification{Kind: KindLead}) {
		t.Fatalf("closed dispatcher accepted work")
	}
	if err := d.Close(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("second close = %v", err)
	}
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	s := SenderFunc(func(ctx context.Context, _ Notification) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	})
	d := NewDispatcher(s, Options{Workers: 1, PerSecond: 1000, Burst: 10})
	d.Enqueue(Notification{Kind: KindLead})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("close = %v, want deadline", err)
	}
	close(release)
}

// ---------- Senders ----------
func TestWebhookSender(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("X-Token") != "t" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	s.Header = http.Header{"X-Token": {"t"}}
	n := Notification{Kind: KindLead, Subject: "Nuevo lead", Fields: map[string]string{"quote_id": "q1"}}
	if err := s.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Kind != KindLead || got.Fields["quote_id"] != "q1" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhookSender(srv.URL).Send(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestMultiSender_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{fail: errors.New("down")}
	m := MultiSender{ok, bad, LogSender{}}
	err := m.Send(context.Background(), Notification{Kind: KindConfirmed})
	if err == nil || err.Error() != "down" {
		t.Fatalf("err = %v", err)
	}
	if ok.len() != 1 || bad.len() != 1 {
		t.Fatalf("fan-out incomplete")
	}
}
