// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package mediator implements a registry that maps message type tags to
// handler functions.
//
// The same registry shape is used by the hub (for envelope types it
// consumes), by peers (for envelope types they receive), and by the peer
// command router (for command verbs). A registry is built once at startup:
//
//	r := mediator.New[*Hub, *swarm.Envelope]().
//	   Handle("letter", handleLetter).
//	   Handle("heartbeat", handleHeartbeat)
//
// To route a message to its handler, use Dispatch:
//
//	out, err := r.Dispatch(ctx, env.Type, hub, env)
//
// Dispatch reports an error matching [ErrUnhandledMessageType] if no handler
// is registered for the tag. A handler that panics is reported as an error
// rather than propagating the panic to the caller.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/creachadair/swarm"
)

// A Handler processes a message m on behalf of the receiver c, and returns
// zero or one envelopes to be transmitted by the caller. A handler may
// update state reachable through c.
type Handler[C, M any] func(ctx context.Context, c C, m M) (*swarm.Envelope, error)

// A Registry maps tag strings to handlers. A zero Registry is ready for use.
// The methods of a Registry are safe for concurrent use.
type Registry[C, M any] struct {
	μ     sync.RWMutex
	table map[string]Handler[C, M]
}

// New constructs a new empty registry.
func New[C, M any]() *Registry[C, M] { return new(Registry[C, M]) }

// Handle registers h as the handler for tag, replacing any existing handler.
// Passing a nil handler removes the handler for tag. Handle returns r to
// permit chaining. It panics if tag == "".
func (r *Registry[C, M]) Handle(tag string, h Handler[C, M]) *Registry[C, M] {
	if tag == "" {
		panic("mediator: empty tag")
	}
	r.μ.Lock()
	defer r.μ.Unlock()
	if r.table == nil {
		r.table = make(map[string]Handler[C, M])
	}
	if h == nil {
		delete(r.table, tag)
	} else {
		r.table[tag] = h
	}
	return r
}

// Has reports whether a handler is registered for tag.
func (r *Registry[C, M]) Has(tag string) bool {
	r.μ.RLock()
	defer r.μ.RUnlock()
	_, ok := r.table[tag]
	return ok
}

// Tags returns the registered tags in lexicographic order.
func (r *Registry[C, M]) Tags() []string {
	r.μ.RLock()
	defer r.μ.RUnlock()
	out := make([]string, 0, len(r.table))
	for tag := range r.table {
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

// Dispatch invokes the handler registered for tag with c and m, and returns
// its result. If no handler is registered, Dispatch reports an error of
// concrete type *UnhandledError. If the handler panics, the panic is
// recovered and reported as an error.
func (r *Registry[C, M]) Dispatch(ctx context.Context, tag string, c C, m M) (_ *swarm.Envelope, err error) {
	r.μ.RLock()
	h, ok := r.table[tag]
	r.μ.RUnlock()
	if !ok {
		return nil, &UnhandledError{Tag: tag}
	}

	defer func() {
		if x := recover(); x != nil && err == nil {
			err = fmt.Errorf("handler %q panicked (recovered): %v", tag, x)
		}
	}()
	return h(ctx, c, m)
}

// ErrUnhandledMessageType is matched by errors reported by Dispatch when no
// handler is registered for a tag.
var ErrUnhandledMessageType = errors.New("unhandled message type")

// UnhandledError is the concrete type of the error reported by Dispatch when
// no handler is registered for a tag.
type UnhandledError struct {
	Tag string
}

// Error satisfies the error interface.
func (u *UnhandledError) Error() string { return fmt.Sprintf("unhandled message type %q", u.Tag) }

// Is reports whether target is ErrUnhandledMessageType.
func (u *UnhandledError) Is(target error) bool { return target == ErrUnhandledMessageType }
