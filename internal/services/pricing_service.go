// Package services – PricingService
//
// PricingService reads the active pricing configuration once per request and
// publishes new versions. The strict channel only ever sees live pricing; the
// assisted channels may receive the fallback configuration, which is marked
// with Fallback=true so replies can disclose it.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tbourn/boxquote/internal/domain"
	"github.com/tbourn/boxquote/internal/quote"
)

// PricingRepo defines the repository contract required by PricingService.
type PricingRepo interface {
	// GetActivePricing returns the single active configuration row.
	GetActivePricing(ctx context.Context, db *gorm.DB) (*domain.PricingConfig, error)

	// PublishPricing inserts cfg as the next active version.
	PublishPricing(ctx context.Context, db *gorm.DB, cfg domain.PricingConfig) (*domain.PricingConfig, error)
}

// PricingService resolves the configuration a quote is computed with.
type PricingService struct {
	DB   *gorm.DB
	Repo PricingRepo

	// Fallback is served to assisted channels when no live configuration
	// can be read. Nil disables the substitution.
	Fallback *domain.PricingConfig
}

// NewPricingService constructs a PricingService without a fallback.
func NewPricingService(db *gorm.DB, r PricingRepo) *PricingService {
	return &PricingService{DB: db, Repo: r}
}

// Active returns the live configuration or ErrConfigUnavailable. It never
// substitutes defaults.
func (s *PricingService) Active(ctx context.Context) (domain.PricingConfig, error) {
	ctx, span := otel.Tracer("services/PricingService").Start(ctx, "Active")
	defer span.End()

	cfg, err := s.Repo.GetActivePricing(ctx, s.DB)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger(ctx).Error().Err(err).Msg("read active pricing")
		}
		return domain.PricingConfig{}, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}
	if err := quote.CheckConfig(*cfg); err != nil {
		return domain.PricingConfig{}, fmt.Errorf("%w: version %d: %v", ErrConfigUnavailable, cfg.Version, err)
	}
	span.SetAttributes(attribute.Int("pricing.version", cfg.Version))
	return *cfg, nil
}

// ForAssisted returns the live configuration, or the fallback configuration
// (flagged Fallback) when live pricing is unavailable.
func (s *PricingService) ForAssisted(ctx context.Context) (domain.PricingConfig, error) {
	cfg, err := s.Active(ctx)
	if err == nil {
		return cfg, nil
	}
	if s.Fallback == nil {
		return domain.PricingConfig{}, err
	}
	fb := *s.Fallback
	fb.Fallback = true
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("pricing.fallback", true))
	logger(ctx).Warn().Err(err).Int("fallback_version", fb.Version).Msg("serving fallback pricing")
	return fb, nil
}

// Publish validates cfg and stores it as the new active version.
func (s *PricingService) Publish(ctx context.Context, cfg domain.PricingConfig) (*domain.PricingConfig, error) {
	if err := quote.CheckConfig(cfg); err != nil {
		return nil, err
	}
	return s.Repo.PublishPricing(ctx, s.DB, cfg)
}

// fallbackFile is the on-disk shape of a fallback pricing configuration.
type fallbackFile struct {
	Version                  int     `yaml:"version"`
	PricePerAreaStandard     float64 `yaml:"price_per_m2_standard"`
	PricePerAreaVolume       float64 `yaml:"price_per_m2_volume"`
	PricePerAreaBelowMinimum float64 `yaml:"price_per_m2_below_minimum"`
	VolumeThresholdArea      float64 `yaml:"volume_threshold_m2"`
	MinAreaPerModel          float64 `yaml:"min_m2_per_model"`
	AbsoluteMinArea          float64 `yaml:"absolute_min_m2"`
	FreeShippingMinArea      float64 `yaml:"free_shipping_min_m2"`
	FreeShippingMaxDistance  float64 `yaml:"free_shipping_max_km"`
	ProductionDaysStandard   int     `yaml:"production_days_standard"`
	ProductionDaysPrinting   int     `yaml:"production_days_printing"`
	QuoteValidityDays        int     `yaml:"quote_validity_days"`
}

// DecodeFallbackPricing reads a YAML fallback configuration. Keys that are
// absent keep the documented defaults.
func DecodeFallbackPricing(r io.Reader) (domain.PricingConfig, error) {
	def := domain.DefaultPricingConfig()
	f := fallbackFile{
		Version:                  def.Version,
		PricePerAreaStandard:     def.PricePerAreaStandard,
		PricePerAreaVolume:       def.PricePerAreaVolume,
		PricePerAreaBelowMinimum: def.PricePerAreaBelowMinimum,
		VolumeThresholdArea:      def.VolumeThresholdArea,
		MinAreaPerModel:          def.MinAreaPerModel,
		AbsoluteMinArea:          def.AbsoluteMinArea,
		FreeShippingMinArea:      def.FreeShippingMinArea,
		FreeShippingMaxDistance:  def.FreeShippingMaxDistance,
		ProductionDaysStandard:   def.ProductionDaysStandard,
		ProductionDaysPrinting:   def.ProductionDaysPrinting,
		QuoteValidityDays:        def.QuoteValidityDays,
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return domain.PricingConfig{}, fmt.Errorf("decode fallback pricing: %w", err)
	}
	cfg := domain.PricingConfig{
		Version:                  f.Version,
		PricePerAreaStandard:     f.PricePerAreaStandard,
		PricePerAreaVolume:       f.PricePerAreaVolume,
		PricePerAreaBelowMinimum: f.PricePerAreaBelowMinimum,
		VolumeThresholdArea:      f.VolumeThresholdArea,
		MinAreaPerModel:          f.MinAreaPerModel,
		AbsoluteMinArea:          f.AbsoluteMinArea,
		FreeShippingMinArea:      f.FreeShippingMinArea,
		FreeShippingMaxDistance:  f.FreeShippingMaxDistance,
		ProductionDaysStandard:   f.ProductionDaysStandard,
		ProductionDaysPrinting:   f.ProductionDaysPrinting,
		QuoteValidityDays:        f.QuoteValidityDays,
	}
	if err := quote.CheckConfig(cfg); err != nil {
		return domain.PricingConfig{}, err
	}
	return cfg, nil
}

// LoadFallbackPricing returns the built-in defaults when path is empty,
// otherwise the YAML file at path.
func LoadFallbackPricing(path string) (domain.PricingConfig, error) {
	if path == "" {
		return domain.DefaultPricingConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.PricingConfig{}, err
	}
	defer f.Close()
	return DecodeFallbackPricing(f)
}
