// Package specio decodes loosely typed spec payloads into typed structs
// through a JSON round trip, with hooks on both sides of the decode.
package specio

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context describes where a payload came from.
type Context struct {
	// Source is the file path or logical origin, used in errors.
	Source string
	// Format is the payload's original format, e.g. "yaml".
	Format string
}

func (c Context) describe() string {
	if c.Source != "" {
		return c.Source
	}
	if c.Format != "" {
		return c.Format + " payload"
	}
	return "payload"
}

// PreHook can rewrite the raw payload before decoding. Returning a nil
// map keeps the current payload.
type PreHook func(ctx Context, payload map[string]any) (map[string]any, error)

// PostHook can validate or normalize the decoded value.
type PostHook[T any] func(ctx Context, decoded *T) error

// Option configures a Decoder.
type Option[T any] func(*Decoder[T])

// WithPreHook appends a payload rewrite hook.
func WithPreHook[T any](hook PreHook) Option[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.pre = append(d.pre, hook)
		}
	}
}

// WithPostHook appends a post-decode hook.
func WithPostHook[T any](hook PostHook[T]) Option[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.post = append(d.post, hook)
		}
	}
}

// WithStrictFields rejects payload keys the target type does not declare.
func WithStrictFields[T any]() Option[T] {
	return WithDecoderConfig[T](func(dec *json.Decoder) {
		dec.DisallowUnknownFields()
	})
}

// WithUseNumber keeps numbers as json.Number instead of float64.
func WithUseNumber[T any]() Option[T] {
	return WithDecoderConfig[T](func(dec *json.Decoder) {
		dec.UseNumber()
	})
}

// WithDecoderConfig applies raw json.Decoder configuration.
func WithDecoderConfig[T any](configure func(dec *json.Decoder)) Option[T] {
	return func(d *Decoder[T]) {
		if configure != nil {
			d.configure = append(d.configure, configure)
		}
	}
}

// Decoder turns map payloads into T values.
type Decoder[T any] struct {
	pre       []PreHook
	post      []PostHook[T]
	configure []func(dec *json.Decoder)
}

// New builds a decoder with the given options.
func New[T any](opts ...Option[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode runs pre hooks, round-trips the payload through JSON into T,
// then runs post hooks.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var out T

	current, err := clonePayload(payload)
	if err != nil {
		return out, fmt.Errorf("specio: clone %s: %w", ctx.describe(), err)
	}
	for _, hook := range d.pre {
		next, err := hook(ctx, current)
		if err != nil {
			return out, fmt.Errorf("specio: prepare %s: %w", ctx.describe(), err)
		}
		if next != nil {
			current = next
		}
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		return out, fmt.Errorf("specio: encode %s: %w", ctx.describe(), err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	for _, configure := range d.configure {
		configure(dec)
	}
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("specio: decode %s: %w", ctx.describe(), err)
	}

	for _, hook := range d.post {
		if err := hook(ctx, &out); err != nil {
			return out, fmt.Errorf("specio: finalize %s: %w", ctx.describe(), err)
		}
	}
	return out, nil
}

// clonePayload detaches the payload so hooks cannot mutate the caller's
// map.
func clonePayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}
