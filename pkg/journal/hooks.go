// Package journal publishes tracking lifecycle events to pluggable
// hooks: audit sinks, activity feeds, log pipelines.
package journal

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event is one journal entry. Action, EntityType and EntityID identify
// what happened to whom; the rest is routing and attribution detail.
type Event struct {
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Hook receives journal events.
type Hook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, event Event) error

func (f HookFunc) Notify(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// Hooks fans an event out to every hook and joins their errors.
type Hooks []Hook

// Notify normalizes the event and delivers it to each hook in order.
// Events missing an action or entity identity are dropped silently.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	event = NormalizeEvent(event)
	if event.Action == "" || event.EntityType == "" || event.EntityID == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifier fields, detaches metadata, and stamps
// a missing occurrence time.
func NormalizeEvent(event Event) Event {
	event.Action = strings.TrimSpace(event.Action)
	event.ActorID = strings.TrimSpace(event.ActorID)
	event.UserID = strings.TrimSpace(event.UserID)
	event.TenantID = strings.TrimSpace(event.TenantID)
	event.EntityType = strings.TrimSpace(event.EntityType)
	event.EntityID = strings.TrimSpace(event.EntityID)
	event.Channel = strings.TrimSpace(event.Channel)
	if len(event.Metadata) > 0 {
		metadata := make(map[string]any, len(event.Metadata))
		for key, value := range event.Metadata {
			metadata[key] = value
		}
		event.Metadata = metadata
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}
