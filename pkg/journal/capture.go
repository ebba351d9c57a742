package journal

import (
	"context"
	"sync"
)

// CaptureHook records every event it receives. Useful in tests and as
// an in-process inspection buffer.
type CaptureHook struct {
	mu     sync.Mutex
	events []Event

	// Err, when set, is returned from every Notify after recording.
	Err error
}

func (c *CaptureHook) Notify(_ context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, NormalizeEvent(event))
	return c.Err
}

// Events returns a copy of the recorded events.
func (c *CaptureHook) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset drops the recorded events.
func (c *CaptureHook) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
