package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tbourn/boxquote/internal/domain"
)

// Tier is the total-area bucket that selects the price per m² of a quote.
type Tier string

const (
	TierVolume       Tier = "volume"
	TierStandard     Tier = "standard"
	TierBelowMinimum Tier = "below_minimum"
)

// Policy decides what happens when a quote falls under the absolute floor.
type Policy uint8

const (
	// PolicyStrict rejects the quote with ErrBelowAbsoluteMinimum.
	PolicyStrict Policy = iota
	// PolicyAssisted prices it at the below-minimum rate and flags it for
	// manual review.
	PolicyAssisted
)

func (p Policy) String() string {
	if p == PolicyAssisted {
		return "assisted"
	}
	return "strict"
}

// SurchargePerColor is the linear printing surcharge applied per colour.
var SurchargePerColor = decimal.RequireFromString("0.15")

// Resolution is the outcome of pricing a total area.
type Resolution struct {
	Tier           Tier
	PricePerArea   decimal.Decimal
	MeetsMinimum   bool
	RequiresReview bool
}

// ResolveTier picks the single price per m² shared by every line of a quote.
// Lower bounds are inclusive: a total exactly on a threshold belongs to the
// tier that starts there.
func ResolveTier(total decimal.Decimal, cfg domain.PricingConfig, policy Policy) (Resolution, error) {
	if err := CheckConfig(cfg); err != nil {
		return Resolution{}, err
	}

	var (
		volume   = decimal.NewFromFloat(cfg.VolumeThresholdArea)
		minModel = decimal.NewFromFloat(cfg.MinAreaPerModel)
		floor    = decimal.NewFromFloat(cfg.AbsoluteMinArea)
	)
	r := Resolution{MeetsMinimum: total.GreaterThanOrEqual(minModel)}

	switch {
	case total.GreaterThanOrEqual(volume):
		r.Tier, r.PricePerArea = TierVolume, decimal.NewFromFloat(cfg.PricePerAreaVolume)
	case total.GreaterThanOrEqual(minModel):
		r.Tier, r.PricePerArea = TierStandard, decimal.NewFromFloat(cfg.PricePerAreaStandard)
	case total.GreaterThanOrEqual(floor):
		r.Tier, r.PricePerArea = TierBelowMinimum, decimal.NewFromFloat(cfg.PricePerAreaBelowMinimum)
	default:
		if policy != PolicyAssisted {
			return Resolution{}, fmt.Errorf("%w: %s m² < %s m²", ErrBelowAbsoluteMinimum, total.StringFixed(2), floor.String())
		}
		r.Tier, r.PricePerArea = TierBelowMinimum, decimal.NewFromFloat(cfg.PricePerAreaBelowMinimum)
		r.RequiresReview = true
	}
	return r, nil
}

// LinePrice applies the per-line printing surcharge to the tier price:
// base × (1 + SurchargePerColor × colors).
func LinePrice(base decimal.Decimal, hasPrinting bool, colors int) decimal.Decimal {
	if !hasPrinting || colors <= 0 {
		return base
	}
	factor := decimal.NewFromInt(1).Add(SurchargePerColor.Mul(decimal.NewFromInt(int64(colors))))
	return base.Mul(factor)
}

// CheckConfig rejects configurations that cannot price a quote.
func CheckConfig(cfg domain.PricingConfig) error {
	switch {
	case cfg.PricePerAreaStandard <= 0 || cfg.PricePerAreaVolume <= 0 || cfg.PricePerAreaBelowMinimum <= 0:
		return fmt.Errorf("%w: prices must be positive", ErrInvalidConfig)
	case cfg.AbsoluteMinArea < 0:
		return fmt.Errorf("%w: absolute minimum must not be negative", ErrInvalidConfig)
	case cfg.AbsoluteMinArea > cfg.MinAreaPerModel || cfg.MinAreaPerModel > cfg.VolumeThresholdArea:
		return fmt.Errorf("%w: thresholds must be ordered absolute <= per-model <= volume", ErrInvalidConfig)
	case cfg.QuoteValidityDays <= 0:
		return fmt.Errorf("%w: quote validity must be positive", ErrInvalidConfig)
	}
	return nil
}
