// Package services – QuoteService
//
// QuoteService is the single entry point every channel uses to price boxes.
// It reads the pricing configuration once, runs the pure assembler, persists
// the result and hands high-value or contact-bearing quotes to the notifier
// without waiting on it. All channels therefore return identical numbers for
// identical inputs; they differ only in policy (strict or assisted) and in
// whether fallback pricing is acceptable.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/notify"
	"github.com/tbourn/boxquote/internal/quote"
)

// DefaultHighValueThreshold is the subtotal above which a quote triggers a
// sales notification.
const DefaultHighValueThreshold = 500_000

var quotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "quotes_total",
	Help: "Computed quotes by channel and tier.",
}, []string{"channel", "tier"})

func init() {
	prometheus.MustRegister(quotesTotal)
}

// QuoteRepo defines the repository contract required by QuoteService.
type QuoteRepo interface {
	// CreateQuote persists q with its lines and assigns its ID.
	CreateQuote(ctx context.Context, db *gorm.DB, q *domain.Quote) error

	// GetQuote loads a quote with its lines in position order.
	GetQuote(ctx context.Context, db *gorm.DB, id string) (*domain.Quote, error)

	// UpdateQuoteStatus sets the status of an existing quote.
	UpdateQuoteStatus(ctx context.Context, db *gorm.DB, id, status string) error
}

// Contact is optional lead information attached to a quote request.
type Contact struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Present reports whether any contact field carries data.
func (c *Contact) Present() bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.Name+c.Email+c.Phone+c.Company+c.Notes) != ""
}

// QuoteRequest is a channel-independent request to price boxes.
type QuoteRequest struct {
	Channel domain.Channel
	Boxes   []quote.BoxSpec
	Contact *Contact
	Origin  string
}

// QuoteService prices, persists and announces quotes.
type QuoteService struct {
	DB       *gorm.DB
	Repo     QuoteRepo
	Pricing  *PricingService
	Notifier notify.Notifier

	// HighValueThreshold is compared against the quote subtotal.
	HighValueThreshold float64
	// NotifyTo is the address sales notifications are sent to.
	NotifyTo string

	Now func() time.Time
}

// NewQuoteService constructs a QuoteService with default thresholds.
func NewQuoteService(db *gorm.DB, r QuoteRepo, p *PricingService, n notify.Notifier) *QuoteService {
	return &QuoteService{
		DB:                 db,
		Repo:               r,
		Pricing:            p,
		Notifier:           n,
		HighValueThreshold: DefaultHighValueThreshold,
		Now:                time.Now,
	}
}

// Create prices req under policy and stores the result.
//
// The strict policy requires live pricing and rejects quotes under the
// absolute floor. The assisted policy accepts fallback pricing and flags
// sub-floor quotes for review instead of rejecting them.
func (s *QuoteService) Create(ctx context.Context, req QuoteRequest, policy quote.Policy) (*quote.Result, error) {
	res, err := s.Price(ctx, req, policy)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Price computes the quote for req without storing it. The returned quote
// already carries its ID, channel and contact fields, so Save can persist it
// later unchanged.
func (s *QuoteService) Price(ctx context.Context, req QuoteRequest, policy quote.Policy) (*quote.Result, error) {
	ctx, span := otel.Tracer("services/QuoteService").Start(ctx, "Price",
		trace.WithAttributes(
			attribute.String("quote.channel", string(req.Channel)),
			attribute.String("quote.policy", policy.String()),
			attribute.Int("quote.lines", len(req.Boxes)),
		),
	)
	defer span.End()

	// validate before touching the store
	if err := quote.Validate(req.Boxes); err != nil {
		span.SetStatus(codes.Error, "validation")
		return nil, err
	}

	var (
		cfg domain.PricingConfig
		err error
	)
	if policy == quote.PolicyStrict {
		cfg, err = s.Pricing.Active(ctx)
	} else {
		cfg, err = s.Pricing.ForAssisted(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pricing")
		return nil, err
	}

	res, err := quote.Assemble(req.Boxes, cfg, policy, s.now())
	if err != nil {
		span.SetStatus(codes.Error, "assemble")
		return nil, err
	}

	q := &res.Quote
	q.ID = uuid.NewString()
	q.Channel = req.Channel
	q.Origin = clip(req.Origin, 120)
	if c := req.Contact; c.Present() {
		q.ContactName = clip(c.Name, 120)
		q.ContactEmail = clip(strings.ToLower(strings.TrimSpace(c.Email)), 160)
		q.ContactPhone = clip(c.Phone, 40)
		q.ContactCompany = clip(c.Company, 160)
		q.Notes = clip(c.Notes, 2000)
	}
	span.SetAttributes(
		attribute.String("quote.id", q.ID),
		attribute.String("quote.tier", string(res.Tier)),
		attribute.Float64("quote.subtotal", q.Subtotal),
		attribute.Bool("quote.fallback_pricing", q.FallbackPricing),
	)
	return res, nil
}

// Save persists a quote returned by Price and enqueues the sales
// notifications it qualifies for.
func (s *QuoteService) Save(ctx context.Context, res *quote.Result) error {
	q := &res.Quote
	ctx, span := otel.Tracer("services/QuoteService").Start(ctx, "Save",
		trace.WithAttributes(
			attribute.String("quote.id", q.ID),
			attribute.String("quote.channel", string(q.Channel)),
		),
	)
	defer span.End()

	if err := s.Repo.CreateQuote(ctx, s.DB, q); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return fmt.Errorf("persist quote: %w", err)
	}
	quotesTotal.WithLabelValues(string(q.Channel), string(res.Tier)).Inc()

	s.announce(ctx, q)
	return nil
}

// Get returns a stored quote or ErrQuoteNotFound.
func (s *QuoteService) Get(ctx context.Context, id string) (*domain.Quote, error) {
	ctx, span := otel.Tracer("services/QuoteService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("quote.id", id)))
	defer span.End()

	q, err := s.Repo.GetQuote(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	return q, nil
}

// Confirm moves a quote to the confirmed status.
func (s *QuoteService) Confirm(ctx context.Context, id string) error {
	err := s.Repo.UpdateQuoteStatus(ctx, s.DB, id, domain.QuoteStatusConfirmed)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrQuoteNotFound
	}
	return err
}

// PriceConversation prices the single box collected by the chat dialog
// under the assisted policy, recording the session identity as contact.
// Nothing is stored; the caller saves the quote once the turn commits.
func (s *QuoteService) PriceConversation(ctx context.Context, box quote.BoxSpec, sess domain.ConversationSession) (*quote.Result, error) {
	return s.Price(ctx, QuoteRequest{
		Channel: domain.ChannelChat,
		Boxes:   []quote.BoxSpec{box},
		Contact: &Contact{
			Name:    sess.ClientName,
			Email:   sess.ClientEmail,
			Phone:   sess.Address,
			Company: sess.CompanyName,
		},
	}, quote.PolicyAssisted)
}

// announce enqueues the sales notifications a quote qualifies for. Chat
// quotes always carry the caller address, so only their value counts; the
// chat confirmation step sends its own lead notification.
func (s *QuoteService) announce(ctx context.Context, q *domain.Quote) {
	if s.Notifier == nil {
		return
	}
	highValue := s.HighValueThreshold > 0 && q.Subtotal > s.HighValueThreshold
	lead := q.Channel != domain.ChannelChat &&
		strings.TrimSpace(q.ContactName+q.ContactEmail+q.ContactPhone+q.ContactCompany+q.Notes) != ""
	if !highValue && !lead {
		return
	}

	kind := notify.KindLead
	subject := "Nueva cotización con datos de contacto"
	if highValue {
		kind = notify.KindHighValue
		subject = "Cotización de alto valor"
	}
	fields := map[string]string{
		"quote_id": q.ID,
		"channel":  string(q.Channel),
		"subtotal": fmt.Sprintf("%.2f", q.Subtotal),
		"total_m2": fmt.Sprintf("%.2f", q.TotalArea),
		"tier":     q.Tier,
	}
	for k, v := range map[string]string{
		"name": q.ContactName, "email": q.ContactEmail, "phone": q.ContactPhone,
		"company": q.ContactCompany, "origin": q.Origin,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	ok := s.Notifier.Enqueue(notify.Notification{
		Kind:    kind,
		To:      s.NotifyTo,
		Subject: subject,
		Body:    fmt.Sprintf("Cotización %s por %.2f (%s m²)", q.ID, q.Subtotal, fields["total_m2"]),
		Fields:  fields,
	})
	if !ok {
		logger(ctx).Warn().Err(ErrUpstreamUnavailable).Str("quote_id", q.ID).Msg("quote notification dropped")
	}
}

func (s *QuoteService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
