package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (scope, key). Scope is the route the key was presented to, so the
// same provider message ID cannot collide across endpoints.
//
// Reference points at the produced resource (a quote ID) when there is one;
// Response holds the serialized reply for endpoints that have no resource.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Scope     string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_scope_key,priority:1"`
	Key       string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_scope_key,priority:2"`
	Reference string    `gorm:"type:varchar(64)"`
	Response  string    `gorm:"type:text"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
