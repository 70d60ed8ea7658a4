// Package services – ConversationService
//
// ConversationService runs one inbound chat message through the dialog
// machine inside a per-address atomic session update, then stores the turn's
// quote and dispatches its notifications. Provider retries carrying the same
// message id are answered from the stored reply without running the turn
// again.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/conversation"
	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/notify"
	"github.com/tbourn/boxquote/internal/session"
)

// DefaultReplayTTL is how long a processed message id is remembered.
const DefaultReplayTTL = 24 * time.Hour

// DefaultMaxMessageRunes caps the length of an inbound text.
const DefaultMaxMessageRunes = 4000

const replyGeneric = "Tuvimos un problema procesando tu mensaje. Probá de nuevo en unos minutos."

// IdempotencyRepo defines the repository contract used to deduplicate
// inbound messages.
type IdempotencyRepo interface {
	GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, reference, response string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// ConversationService coordinates sessions, the dialog machine and
// notifications for the chat channel.
type ConversationService struct {
	DB          *gorm.DB
	Sessions    *session.Store
	Machine     *conversation.Machine
	Idempotency IdempotencyRepo
	Quotes      *QuoteService
	Notifier    notify.Notifier

	ReplayTTL       time.Duration
	MaxMessageRunes int
}

// Handle processes one inbound message and returns the reply to send.
// Only input errors (ErrEmptyAddress, ErrMessageTooLong) are returned;
// internal failures are logged and answered with a generic reply.
func (s *ConversationService) Handle(ctx context.Context, in conversation.Inbound) (conversation.Reply, error) {
	in.Address = strings.TrimSpace(in.Address)
	in.MessageID = strings.TrimSpace(in.MessageID)
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.String("conversation.addr", session.Fingerprint(in.Address)),
			attribute.Bool("conversation.media", in.Media),
		),
	)
	defer span.End()

	if in.Address == "" {
		return conversation.Reply{}, ErrEmptyAddress
	}
	max := s.MaxMessageRunes
	if max <= 0 {
		max = DefaultMaxMessageRunes
	}
	if utf8.RuneCountInString(in.Body) > max {
		return conversation.Reply{}, ErrMessageTooLong
	}

	scope := "conversation:" + in.Address
	if reply, ok := s.replay(ctx, scope, in.MessageID); ok {
		span.SetAttributes(attribute.Bool("conversation.replayed", true))
		return reply, nil
	}

	var turn conversation.Turn
	_, err := s.Sessions.Update(ctx, in.Address, func(sess *domain.ConversationSession) error {
		turn = s.Machine.Handle(ctx, sess, in)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		logger(ctx).Error().Err(err).Str("addr", session.Fingerprint(in.Address)).Msg("conversation turn not saved")
		return conversation.Reply{Text: replyGeneric}, nil
	}
	span.SetAttributes(attribute.String("conversation.outcome", turn.Outcome))

	s.afterTurn(ctx, turn)
	s.remember(ctx, scope, in.MessageID, turn)
	return turn.Reply, nil
}

// Reset forgets the session for address.
func (s *ConversationService) Reset(ctx context.Context, address string) error {
	if strings.TrimSpace(address) == "" {
		return ErrEmptyAddress
	}
	return s.Sessions.Clear(ctx, address)
}

// Session returns the current session for address, applying expiry.
func (s *ConversationService) Session(ctx context.Context, address string) (domain.ConversationSession, error) {
	if strings.TrimSpace(address) == "" {
		return domain.ConversationSession{}, ErrEmptyAddress
	}
	return s.Sessions.Get(ctx, address)
}

func (s *ConversationService) afterTurn(ctx context.Context, turn conversation.Turn) {
	if turn.Quote != nil && s.Quotes != nil {
		if err := s.Quotes.Save(ctx, turn.Quote); err != nil {
			logger(ctx).Error().Err(err).Str("quote_id", turn.QuoteID).Msg("conversation quote not saved")
		}
	}
	if turn.Outcome == conversation.OutcomeConfirmed && turn.QuoteID != "" && s.Quotes != nil {
		if err := s.Quotes.Confirm(ctx, turn.QuoteID); err != nil {
			logger(ctx).Warn().Err(err).Str("quote_id", turn.QuoteID).Msg("confirm quote status")
		}
	}
	if s.Notifier == nil {
		return
	}
	for _, n := range turn.Notifications {
		if !s.Notifier.Enqueue(n) {
			logger(ctx).Warn().Err(ErrUpstreamUnavailable).Str("kind", string(n.Kind)).Msg("conversation notification dropped")
		}
	}
}

func (s *ConversationService) replay(ctx context.Context, scope, messageID string) (conversation.Reply, bool) {
	if messageID == "" || s.Idempotency == nil {
		return conversation.Reply{}, false
	}
	rec, err := s.Idempotency.GetIdempotency(ctx, s.DB, scope, messageID, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger(ctx).Warn().Err(err).Msg("idempotency lookup failed; processing message")
		}
		return conversation.Reply{}, false
	}
	var reply conversation.Reply
	if err := json.Unmarshal([]byte(rec.Response), &reply); err != nil {
		logger(ctx).Warn().Err(err).Msg("stored reply unreadable; processing message")
		return conversation.Reply{}, false
	}
	return reply, true
}

func (s *ConversationService) remember(ctx context.Context, scope, messageID string, turn conversation.Turn) {
	if messageID == "" || s.Idempotency == nil {
		return
	}
	body, err := json.Marshal(turn.Reply)
	if err != nil {
		return
	}
	ttl := s.ReplayTTL
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	if _, err := s.Idempotency.CreateIdempotency(ctx, s.DB, scope, messageID, turn.QuoteID, string(body), 200, ttl); err != nil {
		logger(ctx).Warn().Err(err).Msg("store idempotency record")
	}
}
