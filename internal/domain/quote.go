package domain

import (
	"time"

	"gorm.io/gorm"
)

// Channel identifies the front door a quote was requested through.
type Channel string

const (
	ChannelAPI  Channel = "api"
	ChannelChat Channel = "chat"
	ChannelWeb  Channel = "web"
)

// Quote status values. Transitions past "issued" belong to the back office.
const (
	QuoteStatusIssued    = "issued"
	QuoteStatusConfirmed = "confirmed"
)

// Quote is a priced set of box lines produced by a single computation
// request. It is immutable after creation except for Status.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Channel: api | chat | web.
//   - TotalArea / Subtotal: rounded to 2 decimals.
//   - Tier: pricing tier selected for the whole quote.
//   - RequiresReview: the quote is under the absolute minimum and was only
//     produced by an assisted channel.
//   - FallbackPricing: priced with the fallback configuration, not live
//     pricing.
//   - Contact*: optional lead information supplied with the request.
type Quote struct {
	ID                      string         `json:"id"          gorm:"type:char(36);primaryKey"`
	Channel                 Channel        `json:"channel"     gorm:"type:varchar(16);not null;index"`
	Status                  string         `json:"status"      gorm:"type:varchar(16);not null;default:'issued'"`
	TotalArea               float64        `json:"total_m2"`
	Subtotal                float64        `json:"subtotal"`
	PricePerArea            float64        `json:"price_per_m2"`
	Tier                    string         `json:"tier"        gorm:"type:varchar(24)"`
	EstimatedProductionDays int            `json:"estimated_production_days"`
	ValidUntil              time.Time      `json:"valid_until"`
	MeetsMinimum            bool           `json:"meets_minimum"`
	RequiresReview          bool           `json:"requires_review"`
	FallbackPricing         bool           `json:"fallback_pricing"`
	PricingVersion          int            `json:"pricing_version"`
	ContactName             string         `json:"-"           gorm:"type:varchar(120)"`
	ContactEmail            string         `json:"-"           gorm:"type:varchar(160)"`
	ContactPhone            string         `json:"-"           gorm:"type:varchar(40)"`
	ContactCompany          string         `json:"-"           gorm:"type:varchar(160)"`
	Notes                   string         `json:"-"           gorm:"type:text"`
	Origin                  string         `json:"-"           gorm:"type:varchar(120)"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"-"`
	DeletedAt               gorm.DeletedAt `json:"-"           gorm:"index"`

	Lines []QuoteLine `json:"lines" gorm:"foreignKey:QuoteID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Quote.
func (Quote) TableName() string { return "quotes" }

// QuoteLine is one priced box specification. It is never persisted
// independently of its parent quote.
type QuoteLine struct {
	ID             uint    `json:"-"        gorm:"primaryKey"`
	QuoteID        string  `json:"-"        gorm:"type:char(36);not null;index:idx_quote_lines,priority:1"`
	Position       int     `json:"-"        gorm:"not null;index:idx_quote_lines,priority:2"`
	Length         int     `json:"length"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Quantity       int     `json:"quantity"`
	HasPrinting    bool    `json:"has_printing"`
	PrintingColors int     `json:"printing_colors"`
	SheetWidth     int     `json:"sheet_width_mm"`
	SheetLength    int     `json:"sheet_length_mm"`
	AreaPerUnit    float64 `json:"m2_per_unit"`
	TotalArea      float64 `json:"total_m2"`
	PricePerArea   float64 `json:"price_per_m2"`
	UnitPrice      float64 `json:"unit_price"`
	Subtotal       float64 `json:"subtotal"`
}

// TableName returns the database table name for QuoteLine.
func (QuoteLine) TableName() string { return "quote_lines" }
