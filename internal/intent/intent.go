// Package intent defines the fixed label vocabulary the conversational
// channel understands and the Classifier contract used when deterministic
// parsing of a message fails.
//
// The classifier is a black box to its callers: any implementation (a remote
// model, a rules table, the local similarity index in this package) only has
// to map free text onto one of the labels below.
package intent

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Label is one entry of the closed intent vocabulary.
type Label string

const (
	Greeting    Label = "greeting"
	Individual  Label = "individual"
	Company     Label = "company"
	Confirm     Label = "confirm"
	Modify      Label = "modify"
	Advisor     Label = "advisor"
	Cancel      Label = "cancel"
	Thanks      Label = "thanks"
	PrintingYes Label = "printing_yes"
	PrintingNo  Label = "printing_no"
	Unknown     Label = "unknown"
)

// Labels lists every valid label in a stable order.
var Labels = []Label{
	Greeting, Individual, Company, Confirm, Modify, Advisor,
	Cancel, Thanks, PrintingYes, PrintingNo, Unknown,
}

// Valid reports whether l belongs to the vocabulary.
func (l Label) Valid() bool {
	for _, v := range Labels {
		if v == l {
			return true
		}
	}
	return false
}

// ErrUnavailable reports that the classifier could not answer. Callers must
// degrade to a re-prompt, never fail the turn.
var ErrUnavailable = errors.New("intent classifier unavailable")

// Classifier maps free text to a label. candidates narrows the answer to the
// labels meaningful at the caller's current step; an empty slice means any
// label. Implementations return Unknown when nothing fits.
type Classifier interface {
	Classify(ctx context.Context, text string, candidates []Label) (Label, float64, error)
}

// Nop is a Classifier that always answers Unknown. It stands in when no
// classifier is configured.
type Nop struct{}

// Classify implements Classifier.
func (Nop) Classify(context.Context, string, []Label) (Label, float64, error) {
	return Unknown, 0, nil
}

// Normalize lower-cases s, strips diacritics and collapses whitespace, so
// "¡Sí, GRACIAS!" and "si, gracias!" compare equal after tokenization.
func Normalize(s string) string {
	// chains carry state, so each call builds its own
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(fold, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
