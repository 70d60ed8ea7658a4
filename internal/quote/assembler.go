package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/boxquote/internal/domain"
)

// Input bounds shared by every channel.
const (
	MaxLines  = 10
	MinSide   = 100  // length and width, mm
	MaxSide   = 2000 // length and width, mm
	MinHeight = 50
	MaxHeight = 1500
	MaxColors = 4
)

// Decimal places kept for money and aggregate areas.
const (
	MoneyPlaces  = 2
	TotalsPlaces = 2
)

// BoxSpec is one requested box type. Dimensions are inner millimetres.
type BoxSpec struct {
	Length         int  `json:"length"`
	Width          int  `json:"width"`
	Height         int  `json:"height"`
	Quantity       int  `json:"quantity"`
	HasPrinting    bool `json:"has_printing"`
	PrintingColors int  `json:"printing_colors"`
}

// Result is an assembled quote ready to persist. Warnings are
// human-readable notes for assisted channels (below minimum, review needed).
type Result struct {
	Quote    domain.Quote
	Tier     Tier
	Warnings []string
}

// Validate checks every line against the channel-independent bounds and
// returns all problems at once.
func Validate(boxes []BoxSpec) error {
	if len(boxes) > MaxLines {
		return fmt.Errorf("%w: %d lines, at most %d allowed", ErrTooManyLines, len(boxes), MaxLines)
	}
	verr := &ValidationError{}
	if len(boxes) == 0 {
		verr.add("boxes", "at least one box is required")
	}
	for i, b := range boxes {
		p := fmt.Sprintf("boxes[%d].", i)
		if b.Length < MinSide || b.Length > MaxSide {
			verr.add(p+"length", "must be between %d and %d mm", MinSide, MaxSide)
		}
		if b.Width < MinSide || b.Width > MaxSide {
			verr.add(p+"width", "must be between %d and %d mm", MinSide, MaxSide)
		}
		if b.Height < MinHeight || b.Height > MaxHeight {
			verr.add(p+"height", "must be between %d and %d mm", MinHeight, MaxHeight)
		}
		if b.Quantity < 1 {
			verr.add(p+"quantity", "must be at least 1")
		}
		if b.PrintingColors < 0 || b.PrintingColors > MaxColors {
			verr.add(p+"printing_colors", "must be between 0 and %d", MaxColors)
		}
	}
	return verr.orNil()
}

// Assemble prices an ordered list of boxes against cfg.
//
// The whole quote shares one tier chosen from the exact (unrounded) total
// area. Line subtotals, unit prices and the aggregate totals are each rounded
// to two decimals once; the aggregate subtotal is the sum of the rounded
// line subtotals so lines always add up to the total.
func Assemble(boxes []BoxSpec, cfg domain.PricingConfig, policy Policy, now time.Time) (*Result, error) {
	if err := Validate(boxes); err != nil {
		return nil, err
	}

	type partial struct {
		box   BoxSpec
		sheet Sheet
		area  decimal.Decimal
	}
	parts := make([]partial, 0, len(boxes))
	total := decimal.Zero
	printing := false
	for _, b := range boxes {
		sheet, err := Unfold(b.Length, b.Width, b.Height)
		if err != nil {
			return nil, err
		}
		if !b.HasPrinting {
			b.PrintingColors = 0
		}
		area := sheet.AreaPerUnit.Mul(decimal.NewFromInt(int64(b.Quantity)))
		total = total.Add(area)
		printing = printing || b.HasPrinting
		parts = append(parts, partial{box: b, sheet: sheet, area: area})
	}

	res, err := ResolveTier(total, cfg, policy)
	if err != nil {
		return nil, err
	}

	q := domain.Quote{
		Status:          domain.QuoteStatusIssued,
		Tier:            string(res.Tier),
		PricePerArea:    res.PricePerArea.InexactFloat64(),
		MeetsMinimum:    res.MeetsMinimum,
		RequiresReview:  res.RequiresReview,
		FallbackPricing: cfg.Fallback,
		PricingVersion:  cfg.Version,
		ValidUntil:      now.AddDate(0, 0, cfg.QuoteValidityDays),
		Lines:           make([]domain.QuoteLine, 0, len(parts)),
	}
	if printing {
		q.EstimatedProductionDays = cfg.ProductionDaysPrinting
	} else {
		q.EstimatedProductionDays = cfg.ProductionDaysStandard
	}

	subtotal := decimal.Zero
	for i, p := range parts {
		price := LinePrice(res.PricePerArea, p.box.HasPrinting, p.box.PrintingColors)
		lineSubtotal := p.area.Mul(price).Round(MoneyPlaces)
		unit := lineSubtotal.DivRound(decimal.NewFromInt(int64(p.box.Quantity)), MoneyPlaces)
		subtotal = subtotal.Add(lineSubtotal)

		q.Lines = append(q.Lines, domain.QuoteLine{
			Position:       i,
			Length:         p.box.Length,
			Width:          p.box.Width,
			Height:         p.box.Height,
			Quantity:       p.box.Quantity,
			HasPrinting:    p.box.HasPrinting,
			PrintingColors: p.box.PrintingColors,
			SheetWidth:     p.sheet.Width,
			SheetLength:    p.sheet.Length,
			AreaPerUnit:    p.sheet.AreaPerUnit.InexactFloat64(),
			TotalArea:      p.area.InexactFloat64(),
			PricePerArea:   price.InexactFloat64(),
			UnitPrice:      unit.InexactFloat64(),
			Subtotal:       lineSubtotal.InexactFloat64(),
		})
	}
	q.TotalArea = total.Round(TotalsPlaces).InexactFloat64()
	q.Subtotal = subtotal.Round(MoneyPlaces).InexactFloat64()

	out := &Result{Quote: q, Tier: res.Tier}
	if !res.MeetsMinimum {
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"total area %s m² is below the per-model minimum of %v m²; the below-minimum rate applies",
			total.StringFixed(2), cfg.MinAreaPerModel))
	}
	if res.RequiresReview {
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"total area is below the absolute minimum of %v m²; this quote requires manual review",
			cfg.AbsoluteMinArea))
	}
	return out, nil
}
