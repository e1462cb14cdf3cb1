package types

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Alert severities.
const (
	AlertSeverityLow      = "low"
	AlertSeverityMedium   = "medium"
	AlertSeverityHigh     = "high"
	AlertSeverityCritical = "critical"
)

// SecurityAlert records an observation of anomalous behaviour, optionally
// tied to a user. Alerts are append-only from the engine's side; resolution
// is an operator action.
type SecurityAlert struct {
	gorm.Model  `json:"-"`
	AlertID     string         `gorm:"uniqueIndex" json:"alert_id"`
	UserID      *string        `gorm:"index" json:"user_id,omitempty"`
	AlertType   string         `json:"alert_type"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Resolution  string         `json:"resolution,omitempty"`
}

// RateLimit is a sliding counter keyed by an abuse-control key such as
// "user:action". The counter resets once ResetAt passes.
type RateLimit struct {
	gorm.Model `json:"-"`
	Key        string    `gorm:"uniqueIndex" json:"key"`
	Requests   int       `json:"requests"`
	ResetAt    time.Time `json:"reset_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BlockedIP marks an address as banned. A nil ExpiresAt means the block is
// permanent. The engine only ever reads these rows.
type BlockedIP struct {
	gorm.Model `json:"-"`
	IP         string     `gorm:"uniqueIndex" json:"ip"`
	Reason     string     `json:"reason"`
	BlockedAt  time.Time  `json:"blocked_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// SystemMetric is a fire-and-forget observability record emitted by the
// engine. Failures writing these are swallowed.
type SystemMetric struct {
	gorm.Model `json:"-"`
	Name       string         `gorm:"index" json:"name"`
	Labels     datatypes.JSON `json:"labels,omitempty"`
	Value      float64        `json:"value"`
	CreatedAt  time.Time      `json:"created_at"`
}
