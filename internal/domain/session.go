package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Step is the position of a conversation in the quoting dialog. The set is
// closed: every value has a name and ParseStep rejects anything else.
type Step uint8

const (
	StepInitial Step = iota
	StepWaitingClientType
	StepWaitingName
	StepWaitingCompanyInfo
	StepWaitingDimensions
	StepWaitingQuantity
	StepWaitingPrinting
	StepQuoted
)

var stepNames = [...]string{
	StepInitial:            "initial",
	StepWaitingClientType:  "waiting_client_type",
	StepWaitingName:        "waiting_name",
	StepWaitingCompanyInfo: "waiting_company_info",
	StepWaitingDimensions:  "waiting_dimensions",
	StepWaitingQuantity:    "waiting_quantity",
	StepWaitingPrinting:    "waiting_printing",
	StepQuoted:             "quoted",
}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return fmt.Sprintf("step(%d)", uint8(s))
}

// ParseStep maps a stored name back to its Step.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), nil
		}
	}
	return StepInitial, fmt.Errorf("unknown conversation step %q", name)
}

// Value implements driver.Valuer so steps are stored by name.
func (s Step) Value() (driver.Value, error) {
	if int(s) >= len(stepNames) {
		return nil, fmt.Errorf("invalid conversation step %d", uint8(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Step) Scan(src any) error {
	var name string
	switch v := src.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	case nil:
		*s = StepInitial
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Step", src)
	}
	parsed, err := ParseStep(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Client types collected by the dialog.
const (
	ClientIndividual = "individual"
	ClientCompany    = "company"
)

// ConversationSession is the persisted state of one caller's dialog, keyed
// by the caller address (phone number or equivalent). There is at most one
// session per address.
//
// Version increases on every successful write and is used for
// compare-and-swap updates.
type ConversationSession struct {
	Address        string `gorm:"type:varchar(64);primaryKey"`
	Step           Step   `gorm:"type:varchar(32);not null"`
	ClientType     string `gorm:"type:varchar(16)"`
	ClientName     string `gorm:"type:varchar(120)"`
	CompanyName    string `gorm:"type:varchar(160)"`
	ClientEmail    string `gorm:"type:varchar(160)"`
	Length         int
	Width          int
	Height         int
	Quantity       int
	HasPrinting    bool
	PrintingColors int

	LastQuoteID       string `gorm:"type:char(36)"`
	LastQuoteSubtotal float64
	LastQuoteArea     float64

	Attended  bool
	Escalated bool

	LastInteractionAt time.Time `gorm:"not null;index"`
	Version           int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName returns the database table name for ConversationSession.
func (ConversationSession) TableName() string { return "conversation_sessions" }

// NewSession returns the initial-state record for address.
func NewSession(address string, now time.Time) ConversationSession {
	return ConversationSession{
		Address:           address,
		Step:              StepInitial,
		LastInteractionAt: now,
	}
}

// HasDimensions reports whether all three box dimensions were collected.
func (s *ConversationSession) HasDimensions() bool {
	return s.Length > 0 && s.Width > 0 && s.Height > 0
}

// HasLastQuote reports whether a previous quote is remembered.
func (s *ConversationSession) HasLastQuote() bool {
	return s.LastQuoteSubtotal > 0
}

// ResetDialog returns the session to the initial step and forgets the box
// being quoted, keeping the client identity and the last quote so a
// returning caller can be greeted.
func (s *ConversationSession) ResetDialog() {
	s.Step = StepInitial
	s.Length, s.Width, s.Height = 0, 0, 0
	s.Quantity = 0
	s.HasPrinting = false
	s.PrintingColors = 0
}
