// Package security implements the gatekeeper consulted before every order
// mutation: IP blocks, persisted sliding-window rate limits, and the alert
// trail for anomalous behaviour.
package security

import (
	"encoding/json"
	"time"

	"dexflow/internal/config"
	"dexflow/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions checked through Authorize.
const (
	ActionCreateOrder  = "create_order"
	ActionExecuteOrder = "execute_order"
	ActionCancelOrder  = "cancel_order"
)

// Deny reasons.
const (
	ReasonIPBlocked   = "ip_blocked"
	ReasonRateLimited = "rate_limited"
)

// Decision is the outcome of an authorization check. A deny never fails the
// order being checked; callers defer and retry.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Service is the security gatekeeper.
type Service struct {
	db       *Database
	policies map[string]config.RateLimitPolicy
	now      func() time.Time
}

func NewService(gormDB *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db: NewDatabase(gormDB),
		policies: map[string]config.RateLimitPolicy{
			ActionCreateOrder:  cfg.Security.CreateOrder,
			ActionExecuteOrder: cfg.Security.Execute,
			ActionCancelOrder:  cfg.Security.CreateOrder,
		},
		now: time.Now,
	}
}

// Authorize gates an action for a user/IP pair. Execution paths pass an
// empty IP; the block check is skipped for those. Errors from the store are
// returned as-is so callers can treat them as transient.
func (s *Service) Authorize(userID, ip, action string) (Decision, error) {
	now := s.now()

	if ip != "" {
		blocked, err := s.db.IsBlocked(ip, now)
		if err != nil {
			return Decision{}, err
		}
		if blocked {
			s.RaiseAlert(nil, "blocked_ip_attempt", types.AlertSeverityMedium,
				"request from blocked IP", map[string]any{"ip": ip, "action": action})
			return deny(ReasonIPBlocked), nil
		}
	}

	policy, ok := s.policies[action]
	if !ok {
		return allow, nil
	}

	exceeded := false
	firstBreach := false
	err := s.db.WithinTx(func(tx *gorm.DB) error {
		key := userID + ":" + action
		rl, err := s.db.GetRateLimit(tx, key)
		if err != nil {
			return err
		}
		if rl == nil {
			rl = &types.RateLimit{Key: key, Requests: 0, ResetAt: now.Add(policy.Window), CreatedAt: now}
		}
		if !now.Before(rl.ResetAt) {
			rl.Requests = 0
			rl.ResetAt = now.Add(policy.Window)
		}
		rl.Requests++
		rl.UpdatedAt = now
		if rl.Requests > policy.Requests {
			exceeded = true
			firstBreach = rl.Requests == policy.Requests+1
		}
		return s.db.SaveRateLimit(tx, rl)
	})
	if err != nil {
		return Decision{}, err
	}

	if exceeded {
		if firstBreach {
			s.RaiseAlert(&userID, "rate_limit_exceeded", types.AlertSeverityLow,
				"rate limit exceeded for "+action,
				map[string]any{"action": action, "limit": policy.Requests})
		}
		return deny(ReasonRateLimited), nil
	}

	return allow, nil
}

// RaiseAlert appends a security alert. Alert persistence is best-effort:
// a write failure is logged, never propagated, so the calling path is not
// disturbed by observability problems.
func (s *Service) RaiseAlert(userID *string, alertType, severity, description string, metadata map[string]any) {
	alert := &types.SecurityAlert{
		AlertID:     uuid.New().String(),
		UserID:      userID,
		AlertType:   alertType,
		Severity:    severity,
		Description: description,
		CreatedAt:   s.now(),
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			alert.Metadata = datatypes.JSON(raw)
		}
	}

	if err := s.db.CreateAlert(alert); err != nil {
		log.Error().Err(err).
			Str("alert_type", alertType).
			Msg("failed to persist security alert")
		return
	}

	log.Warn().
		Str("alert_id", alert.AlertID).
		Str("alert_type", alertType).
		Str("severity", severity).
		Msg(description)
}

// ResolveAlert records an operator's resolution of an open alert.
func (s *Service) ResolveAlert(alertID, resolution string) error {
	return s.db.ResolveAlert(alertID, resolution, s.now())
}

// OpenAlerts lists unresolved alerts, newest first.
func (s *Service) OpenAlerts(limit int) ([]types.SecurityAlert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.db.ListOpenAlerts(limit)
}

// BlockIP inserts an IP block. Exposed for the operator surface and tests;
// the engine itself never calls it.
func (s *Service) BlockIP(ip, reason string, expiresAt *time.Time) error {
	return s.db.BlockIP(&types.BlockedIP{
		IP:        ip,
		Reason:    reason,
		BlockedAt: s.now(),
		ExpiresAt: expiresAt,
	})
}
