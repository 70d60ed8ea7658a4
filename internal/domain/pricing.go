// Package domain defines the persistence models for pricing configuration,
// quotes, conversation sessions, API credentials and request telemetry.
// These types are mapped with GORM and form the core data layer of the
// quoting service.
package domain

import "time"

// PricingConfig is one version of the pricing parameters. Rows are
// append-only: a configuration change inserts a new row and deactivates the
// previous one, so exactly one row has IsActive=true at any time.
//
// Areas are expressed in square meters, prices per square meter, distances
// in kilometers.
type PricingConfig struct {
	ID      uint `json:"-"       gorm:"primaryKey"`
	Version int  `json:"version" gorm:"not null;uniqueIndex"`

	PricePerAreaStandard     float64 `json:"price_per_m2_standard"`
	PricePerAreaVolume       float64 `json:"price_per_m2_volume"`
	PricePerAreaBelowMinimum float64 `json:"price_per_m2_below_minimum"`
	VolumeThresholdArea      float64 `json:"volume_threshold_m2"`
	MinAreaPerModel          float64 `json:"min_m2_per_model"`
	AbsoluteMinArea          float64 `json:"absolute_min_m2"`
	FreeShippingMinArea      float64 `json:"free_shipping_min_m2"`
	FreeShippingMaxDistance  float64 `json:"free_shipping_max_km"`
	ProductionDaysStandard   int     `json:"production_days_standard"`
	ProductionDaysPrinting   int     `json:"production_days_printing"`
	QuoteValidityDays        int     `json:"quote_validity_days"`

	IsActive  bool      `json:"-"          gorm:"not null;default:false;index"`
	ValidFrom time.Time `json:"valid_from"`
	CreatedAt time.Time `json:"-"`

	// Fallback marks a configuration that did not come from the store. It
	// is never persisted.
	Fallback bool `json:"fallback,omitempty" gorm:"-"`
}

// TableName returns the database table name for PricingConfig.
func (PricingConfig) TableName() string { return "pricing_configs" }

// DefaultPricingConfig returns the documented reference configuration used
// to seed an empty store and as the assisted-channel fallback.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Version:                  1,
		PricePerAreaStandard:     700,
		PricePerAreaVolume:       620,
		PricePerAreaBelowMinimum: 850,
		VolumeThresholdArea:      5000,
		MinAreaPerModel:          3000,
		AbsoluteMinArea:          1000,
		FreeShippingMinArea:      4000,
		FreeShippingMaxDistance:  60,
		ProductionDaysStandard:   7,
		ProductionDaysPrinting:   14,
		QuoteValidityDays:        7,
	}
}
