package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	fail   error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaSender_Validates(t *testing.T) {
	if _, err := NewKafkaSender(nil, "quotes"); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaSender([]string{"localhost:9092"}, ""); err == nil {
		t.Fatalf("expected error without topic")
	}
	s, err := NewKafkaSender([]string{"localhost:9092"}, "boxquote.notifications")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := s.writer.(*kafka.Writer); !ok {
		t.Fatalf("writer is %T", s.writer)
	}
}

func TestKafkaSender_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSender{writer: w, topic: "boxquote.notifications"}
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	n := Notification{Kind: KindHighValue, Subject: "Cotización alta", Fields: map[string]string{"quote_id": "q9"}, At: at}
	if err := s.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	m := w.msgs[0]
	if m.Topic != "boxquote.notifications" || string(m.Key) != string(KindHighValue) || !m.Time.Equal(at) {
		t.Fatalf("message = %+v", m)
	}
	var got Notification
	if err := json.Unmarshal(m.Value, &got); err != nil || got.Fields["quote_id"] != "q9" {
		t.Fatalf("payload = %s (%v)", m.Value, err)
	}

	_ = s.Send(context.Background(), Notification{Kind: KindLead})
	if w.msgs[1].Time.IsZero() {
		t.Fatalf("zero At should be stamped")
	}

	if err := s.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}

func TestKafkaSender_WriteError(t *testing.T) {
	s := &KafkaSender{writer: &fakeWriter{fail: errors.New("broker down")}, topic: "t"}
	if err := s.Send(context.Background(), Notification{Kind: KindLead}); err == nil {
		t.Fatalf("expected error")
	}
}
