// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package presence tracks the liveness of peers known to a hub.
//
// A peer is present from the first time it is seen (as the author of an
// envelope, a heartbeat, or an invitee) until it has not been seen for longer
// than the keep-alive interval, at which point a sweep evicts it.
package presence

import (
	"slices"
	"sync"
	"time"
)

// A Tracker records the last time each known peer was seen.
// A Tracker is safe for concurrent use by multiple goroutines.
type Tracker struct {
	onEvict func(string)

	μ    sync.Mutex
	last map[string]time.Time
}

// Options are optional settings for a Tracker. A nil *Options is ready for
// use and provides defaults as described.
type Options struct {
	// If set, OnEvict is called once for each peer removed by Sweep, after
	// the tracker lock has been released.
	OnEvict func(author string)
}

// New constructs a new empty Tracker.
func New(opts *Options) *Tracker {
	t := &Tracker{last: make(map[string]time.Time)}
	if opts != nil {
		t.onEvict = opts.OnEvict
	}
	return t
}

// Touch records that author was seen now. It reports whether author was
// not previously present.
func (t *Tracker) Touch(author string) bool {
	if author == "" {
		return false
	}
	t.μ.Lock()
	defer t.μ.Unlock()
	_, ok := t.last[author]
	t.last[author] = time.Now()
	return !ok
}

// Add registers each of the given authors that is not already present,
// as if it had been seen now. Authors already present are not refreshed.
func (t *Tracker) Add(authors ...string) {
	now := time.Now()
	t.μ.Lock()
	defer t.μ.Unlock()
	for _, a := range authors {
		if _, ok := t.last[a]; !ok && a != "" {
			t.last[a] = now
		}
	}
}

// Present reports whether author is currently present.
func (t *Tracker) Present(author string) bool {
	t.μ.Lock()
	defer t.μ.Unlock()
	_, ok := t.last[author]
	return ok
}

// LastSeen reports when author was last seen, and whether it is present.
func (t *Tracker) LastSeen(author string) (time.Time, bool) {
	t.μ.Lock()
	defer t.μ.Unlock()
	when, ok := t.last[author]
	return when, ok
}

// Peers returns the names of all present peers in sorted order.
func (t *Tracker) Peers() []string {
	t.μ.Lock()
	defer t.μ.Unlock()
	out := make([]string, 0, len(t.last))
	for a := range t.last {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Len reports the number of present peers.
func (t *Tracker) Len() int {
	t.μ.Lock()
	defer t.μ.Unlock()
	return len(t.last)
}

// Sweep evicts every peer not seen for longer than keepAlive, and returns the
// names of the evicted peers in sorted order. Each evicted peer is reported
// to the OnEvict callback exactly once.
func (t *Tracker) Sweep(keepAlive time.Duration) []string {
	now := time.Now()
	var gone []string

	t.μ.Lock()
	for a, when := range t.last {
		if now.Sub(when) > keepAlive {
			gone = append(gone, a)
			delete(t.last, a)
		}
	}
	t.μ.Unlock()

	slices.Sort(gone)
	if t.onEvict != nil {
		for _, a := range gone {
			t.onEvict(a)
		}
	}
	return gone
}
