// Package metrics emits engine events for observability. Recording is
// fire-and-forget: it never blocks the caller and never returns an error.
package metrics

import (
	"encoding/json"
	"time"

	"dexflow/internal/types"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Emitter records named events with labels and a value.
type Emitter interface {
	Record(name string, labels map[string]string, value float64)
}

// Service writes a log line and a best-effort SystemMetric row per event.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Record(name string, labels map[string]string, value float64) {
	event := log.Info().Str("metric", name).Float64("value", value)
	for k, v := range labels {
		event = event.Str(k, v)
	}
	event.Msg("metric recorded")

	metric := &types.SystemMetric{
		Name:      name,
		Value:     value,
		CreatedAt: time.Now(),
	}
	if labels != nil {
		if raw, err := json.Marshal(labels); err == nil {
			metric.Labels = datatypes.JSON(raw)
		}
	}

	// Persist off the caller's path; a failed write only logs.
	go func() {
		if err := s.db.Create(metric).Error; err != nil {
			log.Debug().Err(err).Str("metric", name).Msg("failed to persist metric")
		}
	}()
}

// Nop discards every event. Used in tests that don't assert on metrics.
type Nop struct{}

func (Nop) Record(string, map[string]string, float64) {}
