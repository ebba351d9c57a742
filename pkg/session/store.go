package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChangeSet is one committed unit of change for a tracked entity. The
// values inside Changes are detached copies, safe to hold after the
// entity keeps mutating.
type ChangeSet struct {
	ID         uuid.UUID      `json:"id"`
	Key        string         `json:"key"`
	EntityType string         `json:"entity_type"`
	Changes    map[string]any `json:"changes"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ChangeStore persists committed change sets.
type ChangeStore interface {
	Append(ctx context.Context, change ChangeSet) error
	List(ctx context.Context, key string) ([]ChangeSet, error)
}

// Keyed entities supply a stable tracking key for their change sets.
// Entities without one are keyed by their wrapper token.
type Keyed interface {
	TrackingKey() string
}
