package journal

import "time"

// Actions emitted by the tracking layer.
const (
	ActionEntityTracked   = "entity.tracked"
	ActionEntityModified  = "entity.modified"
	ActionEntityReverted  = "entity.reverted"
	ActionEntityRefreshed = "entity.refreshed"
	ActionEntityReleased  = "entity.released"
	ActionFactoryClosed   = "factory.closed"
)

// EventInput carries the raw material for a tracking event.
type EventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	EntityType string
	EntityID   string
	Token      string
	Channel    string
	Property   string
	Dirty      bool
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildEntityTrackedEvent reports an instance entering tracking.
func BuildEntityTrackedEvent(input EventInput) Event {
	return buildEvent(ActionEntityTracked, input, nil)
}

// BuildEntityModifiedEvent reports a setter invocation. The metadata
// records which property changed and whether it now differs from the
// baseline.
func BuildEntityModifiedEvent(input EventInput) Event {
	extra := map[string]any{
		"property": input.Property,
		"dirty":    input.Dirty,
	}
	return buildEvent(ActionEntityModified, input, extra)
}

// BuildEntityRevertedEvent reports a revert back to the baseline.
func BuildEntityRevertedEvent(input EventInput) Event {
	return buildEvent(ActionEntityReverted, input, nil)
}

// BuildEntityRefreshedEvent reports a baseline replacement.
func BuildEntityRefreshedEvent(input EventInput) Event {
	return buildEvent(ActionEntityRefreshed, input, nil)
}

// BuildEntityReleasedEvent reports an instance leaving tracking.
func BuildEntityReleasedEvent(input EventInput) Event {
	return buildEvent(ActionEntityReleased, input, nil)
}

// BuildFactoryClosedEvent reports factory teardown. Count is the number
// of handlers released by the close.
func BuildFactoryClosedEvent(input EventInput, count int) Event {
	if input.EntityType == "" {
		input.EntityType = "factory"
	}
	return buildEvent(ActionFactoryClosed, input, map[string]any{"count": count})
}

func buildEvent(action string, input EventInput, extra map[string]any) Event {
	metadata := ensureMetadata(input.Metadata, extra)
	if input.Token != "" {
		if _, ok := metadata["token"]; !ok {
			metadata = ensureMetadata(metadata, map[string]any{"token": input.Token})
		}
	}
	return Event{
		Action:     action,
		ActorID:    input.ActorID,
		UserID:     input.UserID,
		TenantID:   input.TenantID,
		EntityType: input.EntityType,
		EntityID:   objectID(input),
		Channel:    input.Channel,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func objectID(input EventInput) string {
	switch {
	case input.EntityID != "":
		return input.EntityID
	case input.Token != "":
		return input.Token
	case input.EntityType != "":
		return input.EntityType
	default:
		return "entity"
	}
}

func ensureMetadata(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}
