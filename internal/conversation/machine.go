// Package conversation drives the chat quoting dialog: one inbound text in,
// one reply out, with the dialog position kept in a domain.ConversationSession.
//
// Each step first tries its deterministic parsers. Only when they miss is the
// injected intent.Classifier asked, restricted to the labels that make sense
// at that step; when it cannot help either the step re-prompts. Nothing here
// returns an error to the caller: internal failures become a friendly reply
// and the session stays where it was.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/intent"
	"github.com/tbourn/boxquote/internal/notify"
	"github.com/tbourn/boxquote/internal/quote"
)

// Inbound is one message received from a caller.
type Inbound struct {
	Address   string `json:"address"`
	Body      string `json:"body"`
	Media     bool   `json:"media"`
	MessageID string `json:"message_id,omitempty"`
}

// Document is an optional attachment sent with a reply.
type Document struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// Reply is the single outbound message produced by a turn.
type Reply struct {
	Text     string    `json:"reply"`
	Document *Document `json:"document,omitempty"`
}

// Turn is the outcome of handling one inbound message. The priced quote and
// the notifications are returned rather than stored or sent so the caller can
// act on them once the session write has committed.
type Turn struct {
	Reply         Reply
	Outcome       string
	QuoteID       string
	Quote         *quote.Result
	Notifications []notify.Notification
}

// Turn outcomes, also used as metric labels.
const (
	OutcomeAdvanced    = "advanced"
	OutcomeReprompt    = "reprompt"
	OutcomeQuoted      = "quoted"
	OutcomeConfirmed   = "confirmed"
	OutcomeEscalated   = "escalated"
	OutcomeReset       = "reset"
	OutcomeUnsupported = "unsupported"
	OutcomeFailed      = "failed"
)

// Quoter prices the box collected by the dialog without storing it.
// Implementations use the assisted policy and may fall back to reference
// pricing.
type Quoter interface {
	PriceConversation(ctx context.Context, box quote.BoxSpec, s domain.ConversationSession) (*quote.Result, error)
}

// DefaultClassifyTimeout bounds a single classifier call.
const DefaultClassifyTimeout = 3 * time.Second

var (
	turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_turns_total",
		Help: "Conversation turns by step before the turn and outcome.",
	}, []string{"step", "outcome"})
	classifierCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_classifier_calls_total",
		Help: "Classifier fallbacks by result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(turnsTotal, classifierCalls)
}

// Machine is the dialog driver. It is stateless; all state lives in the
// session passed to Handle, so one Machine serves every address.
type Machine struct {
	Quoter          Quoter
	Classifier      intent.Classifier
	AdvisorAddress  string
	ClassifyTimeout time.Duration
}

// New returns a Machine. A nil classifier disables the fallback.
func New(q Quoter, c intent.Classifier) *Machine {
	if c == nil {
		c = intent.Nop{}
	}
	return &Machine{Quoter: q, Classifier: c, ClassifyTimeout: DefaultClassifyTimeout}
}

// Handle advances s by one inbound message. s is only modified when the turn
// completes normally; a panic inside a step leaves it untouched.
func (m *Machine) Handle(ctx context.Context, s *domain.ConversationSession, in Inbound) (t Turn) {
	from := s.Step
	defer func() {
		if r := recover(); r != nil {
			logger(ctx).Error().Interface("panic", r).Str("step", from.String()).Msg("conversation turn panicked")
			t = Turn{Reply: Reply{Text: msgQuoteUnavailable}, Outcome: OutcomeFailed}
		}
		turnsTotal.WithLabelValues(from.String(), t.Outcome).Inc()
	}()

	work := *s
	t = m.turn(ctx, &work, in)
	*s = work
	return t
}

func (m *Machine) turn(ctx context.Context, s *domain.ConversationSession, in Inbound) Turn {
	if in.Media {
		return Turn{Reply: Reply{Text: msgUnsupportedMedia}, Outcome: OutcomeUnsupported}
	}
	text := intent.Normalize(in.Body)
	if text == "" {
		return reprompt(s.Step)
	}

	if cmd := globalCommand(text); cmd != cmdNone {
		return m.command(s, cmd)
	}

	switch s.Step {
	case domain.StepInitial:
		return m.start(s)
	case domain.StepWaitingClientType:
		return m.clientType(ctx, s, in.Body)
	case domain.StepWaitingName:
		return m.name(ctx, s, in.Body)
	case domain.StepWaitingCompanyInfo:
		return m.companyInfo(ctx, s, in.Body)
	case domain.StepWaitingDimensions:
		return m.dimensions(ctx, s, in.Body)
	case domain.StepWaitingQuantity:
		return m.quantity(ctx, s, in.Body)
	case domain.StepWaitingPrinting:
		return m.printing(ctx, s, in.Body)
	case domain.StepQuoted:
		return m.quoted(ctx, s, in.Body)
	default:
		logger(ctx).Warn().Str("step", s.Step.String()).Msg("session in unknown step; restarting dialog")
		s.ResetDialog()
		return m.start(s)
	}
}

// ---------- steps ----------

func (m *Machine) start(s *domain.ConversationSession) Turn {
	if s.ClientType != "" {
		s.Step = domain.StepWaitingDimensions
		return Turn{Reply: Reply{Text: greetingFor(s)}, Outcome: OutcomeAdvanced}
	}
	s.Step = domain.StepWaitingClientType
	return Turn{Reply: Reply{Text: msgWelcome}, Outcome: OutcomeAdvanced}
}

func (m *Machine) clientType(ctx context.Context, s *domain.ConversationSession, body string) Turn {
	text := intent.Normalize(body)
	kind := ""
	switch {
	case menuChoice(text) == 1, text == "particular", text == "persona", text == "consumidor final":
		kind = domain.ClientIndividual
	case menuChoice(text) == 2, text == "empresa", text == "negocio", text == "comercio":
		kind = domain.ClientCompany
	default:
		switch m.classify(ctx, body, intent.Individual, intent.Company) {
		case intent.Individual:
			kind = domain.ClientIndividual
		case intent.Company:
			kind = domain.ClientCompany
		}
	}
	switch kind {
	case domain.ClientIndividual:
		s.ClientType = kind
		s.Step = domain.StepWaitingName
		return Turn{Reply: Reply{Text: msgAskName}, Outcome: OutcomeAdvanced}
	case domain.ClientCompany:
		s.ClientType = kind
		s.Step = domain.StepWaitingCompanyInfo
		return Turn{Reply: Reply{Text: msgAskCompany}, Outcome: OutcomeAdvanced}
	}
	return reprompt(s.Step)
}

func (m *Machine) name(ctx context.Context, s *domain.ConversationSession, body string) Turn {
	n, ok := parseName(body)
	if !ok {
		return m.fallback(ctx, s, body)
	}
	s.ClientName = n
	s.Step = domain.StepWaitingDimensions
	return Turn{Reply: Reply{Text: fmt.Sprintf("Gracias, %s. %s", n, msgAskDimensions)}, Outcome: OutcomeAdvanced}
}

func (m *Machine) companyInfo(ctx context.Context, s *domain.ConversationSession, body string) Turn {
	info, ok := parseCompanyInfo(body)
	if !ok {
		return m.fallback(ctx, s, body)
	}
	s.CompanyName = info.Company
	if info.Name != "" {
		s.ClientName = info.Name
	}
	if info.Email != "" {
		s.ClientEmail = info.Email
	}
	s.Step = domain.StepWaitingDimensions
	return Turn{Reply: Reply{Text: fmt.Sprintf("Gracias. Registramos a %s. %s", info.Company, msgAskDimensions)}, Outcome: OutcomeAdvanced}
}

func (m *Machine) dimensions(ctx context.Context, s *domain.ConversationSession, body string) Turn {
	l, w, h, ok := parseDimensions(body)
	if !ok {
		return m.fallback(ctx, s, body)
	}
	if err := quote.Validate([]quote.BoxSpec{{Length: l, Width: w, Height: h, Quantity: 1}}); err != nil {
		return Turn{Reply: Reply{Text: formatInvalid(err)}, Outcome: OutcomeReprompt}
	}
	s.Length, s.Width, s.Height = l, w, h
	s.Step = domain.StepWaitingQuantity
	return Turn{Reply: Reply{Text: fmt.Sprintf("Caja de %dx%dx%d mm. %s", l, w, h, msgAskQuantity)}, Outcome: OutcomeAdvanced}
}

func (m *Machine) quantity(ctx context.Context, s *domain.ConversationSession, body string) Turn {
	n, ok := parseQuantity(body)
	if !ok {
		return m.fallback(ctx, s, body, intent.Modify)
	}
	s.Quantity = n
	s.Step = domain.StepWaitingPrinting
	return Turn{Reply: Reply{Text: msgAskPrinting}, Outcome: OutcomeAdvanced}
}

func (m *Machine) printing(ctx context.Context, s *domain.ConversationSession, body string) Turn {
	has, colors, ok := parsePrinting(body)
	if !ok && colorsOutOfRange(body) {
		return Turn{Reply: Reply{Text: msgColorsOutOfRange}, Outcome: OutcomeReprompt}
	}
	if !ok {
		switch m.classify(ctx, body, intent.PrintingYes, intent.PrintingNo) {
		case intent.PrintingYes:
			has, colors, ok = true, 1, true
		case intent.PrintingNo:
			has, colors, ok = false, 0, true
		}
	}
	if !ok {
		return reprompt(s.Step)
	}
	s.HasPrinting, s.PrintingColors = has, colors
	return m.quote(ctx, s)
}

func (m *Machine) quote(ctx context.Context, s *domain.ConversationSession) Turn {
	if !s.HasDimensions() {
		s.Step = domain.StepWaitingDimensions
		return Turn{Reply: Reply{Text: msgAskDimensions}, Outcome: OutcomeReprompt}
	}
	if s.Quantity < 1 {
		s.Step = domain.StepWaitingQuantity
		return Turn{Reply: Reply{Text: msgAskQuantity}, Outcome: OutcomeReprompt}
	}
	box := quote.BoxSpec{
		Length:         s.Length,
		Width:          s.Width,
		Height:         s.Height,
		Quantity:       s.Quantity,
		HasPrinting:    s.HasPrinting,
		PrintingColors: s.PrintingColors,
	}
	res, err := m.Quoter.PriceConversation(ctx, box, *s)
	switch {
	case err == nil:
	case errors.Is(err, quote.ErrValidationFailed):
		s.Step = domain.StepWaitingDimensions
		return Turn{Reply: Reply{Text: formatInvalid(err)}, Outcome: OutcomeReprompt}
	case errors.Is(err, quote.ErrBelowAbsoluteMinimum):
		s.Step = domain.StepWaitingQuantity
		return Turn{Reply: Reply{Text: msgBelowMinimum}, Outcome: OutcomeReprompt}
	default:
		logger(ctx).Error().Err(err).Msg("conversation quote failed")
		return Turn{Reply: Reply{Text: msgQuoteUnavailable}, Outcome: OutcomeFailed}
	}

	q := res.Quote
	s.LastQuoteID = q.ID
	s.LastQuoteSubtotal = q.Subtotal
	s.LastQuoteArea = q.TotalArea
	s.Step = domain.StepQuoted
	return Turn{
		Reply:   Reply{Text: formatQuote(res), Document: quoteDocument(res, s)},
		Outcome: OutcomeQuoted,
		QuoteID: q.ID,
		Quote:   res,
	}
}

func (m *Machine) quoted(ctx context.Context, s *domain.ConversationSession, body string) Turn {
	text := intent.Normalize(body)
	var label intent.Label
	switch {
	case menuChoice(text) == 1, text == "confirmar", text == "confirmo":
		label = intent.Confirm
	case menuChoice(text) == 2, text == "modificar", text == "cambiar":
		label = intent.Modify
	case menuChoice(text) == 3:
		label = intent.Advisor
	default:
		label = m.classify(ctx, body, intent.Confirm, intent.Modify, intent.Advisor)
	}

	switch label {
	case intent.Confirm:
		n := m.confirmedNotification(s)
		s.ResetDialog()
		return Turn{
			Reply:         Reply{Text: msgConfirmed},
			Outcome:       OutcomeConfirmed,
			QuoteID:       s.LastQuoteID,
			Notifications: []notify.Notification{n},
		}
	case intent.Modify:
		s.Length, s.Width, s.Height = 0, 0, 0
		s.Step = domain.StepWaitingDimensions
		return Turn{Reply: Reply{Text: msgModify}, Outcome: OutcomeAdvanced}
	case intent.Advisor:
		return m.escalate(s)
	}
	return reprompt(s.Step)
}

// fallback asks the classifier about text the step could not parse. Only
// labels that act the same at any step are offered, plus extra.
func (m *Machine) fallback(ctx context.Context, s *domain.ConversationSession, body string, extra ...intent.Label) Turn {
	candidates := append([]intent.Label{intent.Advisor, intent.Cancel, intent.Thanks, intent.Greeting}, extra...)
	switch m.classify(ctx, body, candidates...) {
	case intent.Advisor:
		return m.command(s, cmdAdvisor)
	case intent.Cancel:
		return m.command(s, cmdCancel)
	case intent.Thanks:
		return m.command(s, cmdThanks)
	case intent.Greeting:
		return Turn{Reply: Reply{Text: question(s.Step)}, Outcome: OutcomeReprompt}
	case intent.Modify:
		s.Length, s.Width, s.Height = 0, 0, 0
		s.Step = domain.StepWaitingDimensions
		return Turn{Reply: Reply{Text: msgModify}, Outcome: OutcomeAdvanced}
	}
	return reprompt(s.Step)
}

// command runs a dialog-wide command, whether typed or classified.
func (m *Machine) command(s *domain.ConversationSession, cmd command) Turn {
	switch cmd {
	case cmdCancel:
		*s = resetAll(*s)
		return Turn{Reply: Reply{Text: msgCancelled}, Outcome: OutcomeReset}
	case cmdThanks:
		s.ResetDialog()
		return Turn{Reply: Reply{Text: msgFarewell}, Outcome: OutcomeReset}
	case cmdAdvisor:
		return m.escalate(s)
	}
	return reprompt(s.Step)
}

// escalate flags the session for a human without moving the dialog.
func (m *Machine) escalate(s *domain.ConversationSession) Turn {
	s.Escalated = true
	s.Attended = false
	n := notify.Notification{
		Kind:    notify.KindAdvisor,
		To:      m.AdvisorAddress,
		Subject: "Cliente solicita asesor",
		Body:    fmt.Sprintf("%s pidió hablar con un asesor (paso %s).", displayName(s), s.Step),
		Fields:  sessionFields(s),
	}
	return Turn{Reply: Reply{Text: msgAdvisor}, Outcome: OutcomeEscalated, Notifications: []notify.Notification{n}}
}

func (m *Machine) confirmedNotification(s *domain.ConversationSession) notify.Notification {
	f := sessionFields(s)
	f["quote_id"] = s.LastQuoteID
	f["subtotal"] = fmt.Sprintf("%.2f", s.LastQuoteSubtotal)
	f["total_m2"] = fmt.Sprintf("%.2f", s.LastQuoteArea)
	return notify.Notification{
		Kind:    notify.KindConfirmed,
		To:      m.AdvisorAddress,
		Subject: "Pedido confirmado por chat",
		Body: fmt.Sprintf("%s confirmó la cotización %s por %s.",
			displayName(s), shortID(s.LastQuoteID), formatMoney(s.LastQuoteSubtotal)),
		Fields: f,
	}
}

// ---------- helpers ----------

func (m *Machine) classify(ctx context.Context, text string, candidates ...intent.Label) intent.Label {
	if m.Classifier == nil {
		return intent.Unknown
	}
	timeout := m.ClassifyTimeout
	if timeout <= 0 {
		timeout = DefaultClassifyTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	label, score, err := m.Classifier.Classify(cctx, text, candidates)
	if err != nil {
		classifierCalls.WithLabelValues("error").Inc()
		logger(ctx).Warn().Err(err).Msg("intent classifier unavailable")
		return intent.Unknown
	}
	for _, c := range candidates {
		if c == label {
			classifierCalls.WithLabelValues("hit").Inc()
			logger(ctx).Debug().Str("label", string(label)).Float64("score", score).Msg("intent classified")
			return label
		}
	}
	classifierCalls.WithLabelValues("miss").Inc()
	return intent.Unknown
}

type command int

const (
	cmdNone command = iota
	cmdCancel
	cmdThanks
	cmdAdvisor
)

func globalCommand(normalized string) command {
	switch strings.Trim(normalized, "!¡.?¿, ") {
	case "cancelar", "cancel", "salir", "reiniciar", "empezar de nuevo", "cancelar cotizacion":
		return cmdCancel
	case "gracias", "muchas gracias", "ok", "ok gracias", "listo", "listo gracias",
		"chau", "adios", "hasta luego", "perfecto gracias", "genial gracias":
		return cmdThanks
	case "asesor", "hablar con un asesor", "quiero hablar con un asesor", "hablar con una persona":
		return cmdAdvisor
	}
	return cmdNone
}

// resetAll forgets everything the dialog collected, identity included.
func resetAll(s domain.ConversationSession) domain.ConversationSession {
	fresh := domain.NewSession(s.Address, s.LastInteractionAt)
	fresh.Version = s.Version
	fresh.CreatedAt = s.CreatedAt
	return fresh
}

// question is the step's original prompt, repeated when the caller greets
// mid-dialog.
func question(step domain.Step) string {
	switch step {
	case domain.StepWaitingClientType:
		return msgWelcome
	case domain.StepWaitingName:
		return msgAskName
	case domain.StepWaitingCompanyInfo:
		return msgAskCompany
	case domain.StepWaitingDimensions:
		return msgAskDimensions
	case domain.StepWaitingQuantity:
		return msgAskQuantity
	case domain.StepWaitingPrinting:
		return msgAskPrinting
	case domain.StepQuoted:
		return msgQuotedOptions
	}
	return msgWelcome
}

func reprompt(step domain.Step) Turn {
	var text string
	switch step {
	case domain.StepInitial:
		text = msgWelcome
	case domain.StepWaitingClientType:
		text = msgAskClientType
	case domain.StepWaitingName:
		text = msgRepromptName
	case domain.StepWaitingCompanyInfo:
		text = msgRepromptCompany
	case domain.StepWaitingDimensions:
		text = msgRepromptDimensions
	case domain.StepWaitingQuantity:
		text = msgRepromptQuantity
	case domain.StepWaitingPrinting:
		text = msgRepromptPrinting
	case domain.StepQuoted:
		text = msgRepromptQuoted
	default:
		text = msgWelcome
	}
	return Turn{Reply: Reply{Text: text}, Outcome: OutcomeReprompt}
}

func displayName(s *domain.ConversationSession) string {
	switch {
	case s.ClientName != "" && s.CompanyName != "":
		return s.ClientName + " (" + s.CompanyName + ")"
	case s.ClientName != "":
		return s.ClientName
	case s.CompanyName != "":
		return s.CompanyName
	}
	return "Un cliente"
}

func sessionFields(s *domain.ConversationSession) map[string]string {
	f := map[string]string{
		"address":     s.Address,
		"client_type": s.ClientType,
		"step":        s.Step.String(),
	}
	if s.ClientName != "" {
		f["name"] = s.ClientName
	}
	if s.CompanyName != "" {
		f["company"] = s.CompanyName
	}
	if s.ClientEmail != "" {
		f["email"] = s.ClientEmail
	}
	if s.HasDimensions() {
		f["box"] = fmt.Sprintf("%dx%dx%d", s.Length, s.Width, s.Height)
	}
	if s.Quantity > 0 {
		f["quantity"] = fmt.Sprintf("%d", s.Quantity)
	}
	return f
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
