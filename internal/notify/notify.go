// Package notify delivers fire-and-forget notifications (qualified leads,
// high-value quotes, advisor escalations) off the request path.
//
// A Dispatcher owns a bounded queue drained by a fixed set of workers.
// Enqueue never blocks: when the queue is full the notification is dropped
// and counted. Sends are paced by a token bucket so a burst of leads cannot
// flood the downstream channel. Failed sends are logged and not retried.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Kind classifies a notification.
type Kind string

const (
	KindLead      Kind = "lead"
	KindHighValue Kind = "high_value"
	KindAdvisor   Kind = "advisor"
	KindConfirmed Kind = "confirmed"
)

// Notification is one outbound message.
type Notification struct {
	Kind    Kind              `json:"kind"`
	To      string            `json:"to,omitempty"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}

// Sender delivers a notification to one channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n Notification) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

// Notifier is the enqueue side used by services.
type Notifier interface {
	Enqueue(n Notification) bool
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("dispatcher closed")

var notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "notifications_total",
	Help: "Notifications by kind and result (sent, failed, dropped).",
}, []string{"kind", "result"})

func init() {
	prometheus.MustRegister(notificationsTotal)
}

// Options configures a Dispatcher.
type Options struct {
	QueueSize   int
	Workers     int
	PerSecond   float64
	Burst       int
	SendTimeout time.Duration
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.PerSecond <= 0 {
		o.PerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = o.Workers
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
}

// Dispatcher is a bounded asynchronous notification queue.
type Dispatcher struct {
	sender  Sender
	opts    Options
	queue   chan Notification
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts opts.Workers goroutines draining the queue into s.
func NewDispatcher(s Sender, opts Options) *Dispatcher {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:  s,
		opts:    opts,
		queue:   make(chan Notification, opts.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(opts.PerSecond), opts.Burst),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules n for delivery and reports whether it was accepted.
// It never blocks.
func (d *Dispatcher) Enqueue(n Notification) bool {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		notificationsTotal.WithLabelValues(string(n.Kind), "dropped").Inc()
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		notificationsTotal.WithLabelValues(string(n.Kind), "dropped").Inc()
		log.Warn().Str("kind", string(n.Kind)).Int("queue_size", d.opts.QueueSize).Msg("notification queue full; dropping")
		return false
	}
}

// Close stops accepting work and waits for queued notifications to drain or
// for ctx to end, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		if err := d.limiter.Wait(d.ctx); err != nil {
			notificationsTotal.WithLabelValues(string(n.Kind), "dropped").Inc()
			continue
		}
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.SendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			notificationsTotal.WithLabelValues(string(n.Kind), "failed").Inc()
			log.Error().Interface("panic", r).Str("kind", string(n.Kind)).Msg("notification sender panicked")
		}
	}()

	if err := d.sender.Send(ctx, n); err != nil {
		notificationsTotal.WithLabelValues(string(n.Kind), "failed").Inc()
		log.Warn().Err(err).Str("kind", string(n.Kind)).Msg("notification failed")
		return
	}
	notificationsTotal.WithLabelValues(string(n.Kind), "sent").Inc()
}
