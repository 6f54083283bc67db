// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package mediator

import (
	"context"
	"fmt"

	"github.com/creachadair/swarm"
)

// envContextKey is a context key for the envelope passed to a handler.
type envContextKey struct{}

// ContextEnvelope returns the original envelope passed to a handler adapted
// by Payload or PayloadFunc, or nil if ctx has no associated envelope.
func ContextEnvelope(ctx context.Context) *swarm.Envelope {
	if v := ctx.Value(envContextKey{}); v != nil {
		return v.(*swarm.Envelope)
	}
	return nil
}

// Payload adapts a function f that accepts the envelope payload as a value
// of type P, to a Handler. The payload is converted with DecodePayload; if
// that fails, the handler reports an error without calling f.
//
// The original envelope is available to f via ContextEnvelope.
func Payload[C, P any](f func(context.Context, C, P) (*swarm.Envelope, error)) Handler[C, *swarm.Envelope] {
	return func(ctx context.Context, c C, env *swarm.Envelope) (*swarm.Envelope, error) {
		var p P
		if err := env.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("invalid %q payload: %w", env.Type, err)
		}
		return f(context.WithValue(ctx, envContextKey{}, env), c, p)
	}
}

// PayloadFunc adapts a function f that accepts the envelope payload as a
// value of type P and produces no outbound envelope, to a Handler.
func PayloadFunc[C, P any](f func(context.Context, C, P) error) Handler[C, *swarm.Envelope] {
	return Payload(func(ctx context.Context, c C, p P) (*swarm.Envelope, error) {
		return nil, f(ctx, c, p)
	})
}
