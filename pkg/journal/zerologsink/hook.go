package zerologsink

import (
	"context"

	"github.com/goliatone/go-dirty/pkg/journal"
	"github.com/rs/zerolog"
)

// Hook writes journal events to a zerolog logger as structured records.
type Hook struct {
	logger zerolog.Logger
}

// New builds a hook over logger.
func New(logger zerolog.Logger) Hook {
	return Hook{logger: logger}
}

// Notify logs the normalized event at info level.
func (h Hook) Notify(_ context.Context, event journal.Event) error {
	normalized := journal.NormalizeEvent(event)
	record := h.logger.Info().
		Str("action", normalized.Action).
		Str("entity_type", normalized.EntityType).
		Str("entity_id", normalized.EntityID).
		Str("channel", normalized.Channel)
	if normalized.ActorID != "" {
		record = record.Str("actor_id", normalized.ActorID)
	}
	if normalized.UserID != "" {
		record = record.Str("user_id", normalized.UserID)
	}
	if normalized.TenantID != "" {
		record = record.Str("tenant_id", normalized.TenantID)
	}
	if len(normalized.Metadata) > 0 {
		record = record.Fields(normalized.Metadata)
	}
	record.Time("occurred_at", normalized.OccurredAt).Msg("journal event")
	return nil
}
