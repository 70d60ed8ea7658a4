package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSender writes notifications to the structured log. It is the default
// when no outbound channel is configured.
type LogSender struct {
	Logger *zerolog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, n Notification) error {
	l := s.Logger
	if l == nil {
		l = &log.Logger
	}
	ev := l.Info().Str("kind", string(n.Kind)).Str("subject", n.Subject)
	for k, v := range n.Fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("notification")
	return nil
}

// WebhookSender POSTs the notification as JSON to URL. Any non-2xx status is
// an error.
type WebhookSender struct {
	URL    string
	Client *http.Client
	Header http.Header
}

// NewWebhookSender returns a sender with a bounded HTTP client.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range s.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// MultiSender fans a notification out to every sender and joins their errors.
type MultiSender []Sender

// Send implements Sender.
func (m MultiSender) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
