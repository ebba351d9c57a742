package journal

import "context"

// Config controls emission.
type Config struct {
	Enabled bool   `json:"enabled"`
	Channel string `json:"channel"`
}

// DefaultChannel is stamped on events that do not carry a channel.
const DefaultChannel = "dirty"

// Emitter applies configuration in front of a hook set.
type Emitter struct {
	hooks Hooks
	cfg   Config
}

// NewEmitter builds an emitter over hooks. Nil hooks are dropped.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	return &Emitter{hooks: cloneHooks(hooks), cfg: cfg}
}

// Enabled reports whether Emit would deliver anything.
func (e *Emitter) Enabled() bool {
	return e != nil && e.cfg.Enabled && len(e.hooks) > 0
}

// Emit delivers event to the hook set, filling in the configured
// channel when the event has none.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if event.Channel == "" {
		event.Channel = e.cfg.Channel
	}
	if event.Channel == "" {
		event.Channel = DefaultChannel
	}
	return e.hooks.Notify(ctx, event)
}

func cloneHooks(hooks Hooks) Hooks {
	if len(hooks) == 0 {
		return nil
	}
	out := make(Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}
