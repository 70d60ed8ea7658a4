package domain

import "time"

// APIKey is an issued API credential. Only the SHA-256 fingerprint of the
// raw key is stored.
//
// Fields:
//   - KeyHash: hex SHA-256 of the raw credential (unique).
//   - RateLimit: requests allowed per window; 0 means the server default.
//   - Active / ExpiresAt: a key is valid while active and not expired.
type APIKey struct {
	ID        uint       `gorm:"primaryKey"`
	KeyHash   string     `gorm:"type:char(64);not null;uniqueIndex"`
	Name      string     `gorm:"type:varchar(120);not null"`
	RateLimit int        `gorm:"not null;default:0"`
	Active    bool       `gorm:"not null;default:true"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name for APIKey.
func (APIKey) TableName() string { return "api_keys" }

// Usable reports whether the key may be used at now.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.Active {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// CallerClass is the coarse classification of a public API caller.
type CallerClass string

const (
	CallerBrowser   CallerClass = "browser"
	CallerAPIClient CallerClass = "api_client"
	CallerAIAgent   CallerClass = "ai_agent"
)

// APIRequestLog is one telemetry row per public quote request, whatever its
// outcome.
type APIRequestLog struct {
	ID          uint        `gorm:"primaryKey"`
	RequestID   string      `gorm:"type:varchar(64);index"`
	CallerClass CallerClass `gorm:"type:varchar(16);not null;index"`
	AgentName   string      `gorm:"type:varchar(64)"`
	UserAgent   string      `gorm:"type:varchar(255)"`
	KeyPrefix   string      `gorm:"type:varchar(12)"`
	RemoteIP    string      `gorm:"type:varchar(64)"`
	Origin      string      `gorm:"type:varchar(120)"`
	Status      int         `gorm:"not null"`
	Outcome     string      `gorm:"type:varchar(32);not null"`
	Boxes       int
	Subtotal    float64
	HasContact  bool
	LatencyMS   int64
	CreatedAt   time.Time `gorm:"index"`
}

// TableName returns the database table name for APIRequestLog.
func (APIRequestLog) TableName() string { return "api_request_logs" }
