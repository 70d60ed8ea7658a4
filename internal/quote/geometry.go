package quote

import "github.com/shopspring/decimal"

// GlueFlapMM is the manufacturer's joint allowance added to the sheet length.
const GlueFlapMM = 50

// AreaPlaces is the number of decimals kept for the area of one unit.
const AreaPlaces = 4

// Sheet is the flat corrugated blank a box is folded from.
type Sheet struct {
	Width       int             // mm, width + height (two half-width flaps)
	Length      int             // mm, both panel pairs plus the glue flap
	AreaPerUnit decimal.Decimal // m², rounded to AreaPlaces
}

// Unfold returns the blank for a regular slotted box of the given inner
// dimensions in millimetres.
//
// The area is rounded exactly once, here; every later computation works on
// this value so repeated calls never drift.
func Unfold(length, width, height int) (Sheet, error) {
	verr := &ValidationError{}
	if length <= 0 {
		verr.add("length", "must be positive")
	}
	if width <= 0 {
		verr.add("width", "must be positive")
	}
	if height <= 0 {
		verr.add("height", "must be positive")
	}
	if err := verr.orNil(); err != nil {
		return Sheet{}, err
	}

	s := Sheet{
		Width:  width + height,
		Length: 2*(length+width) + GlueFlapMM,
	}
	// mm² to m² is an exact shift of six decimal places.
	s.AreaPerUnit = decimal.New(int64(s.Width)*int64(s.Length), -6).Round(AreaPlaces)
	return s, nil
}
