// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package history implements the letter history kept by a hub, from which
// peers catch up on conversations they missed.
//
// Each appended letter is filed under its author with a key derived from its
// timestamp. Keys are drawn from a single increasing sequence, so that two
// letters with the same timestamp are both retained and replay in the order
// they were appended.
package history

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/creachadair/swarm"
)

// DefaultMaxPerAuthor is the default retention limit per author.
const DefaultMaxPerAuthor = 1000

// An Entry is a single letter retained in the store.
type Entry struct {
	Author   string
	Key      float64
	Envelope *swarm.Envelope // a private copy; do not modify
}

// Options are optional settings for a Store. A nil *Options is ready for use
// and provides defaults as described.
type Options struct {
	// The maximum number of entries retained per author. When an author
	// exceeds this limit, its oldest entries are discarded.
	// If zero, DefaultMaxPerAuthor is used; if negative, there is no limit.
	MaxPerAuthor int
}

func (o *Options) maxPerAuthor() int {
	if o == nil || o.MaxPerAuthor == 0 {
		return DefaultMaxPerAuthor
	}
	return o.MaxPerAuthor
}

// A Store holds letters by author in key order.
// A Store is safe for concurrent use by multiple goroutines.
type Store struct {
	max int

	μ       sync.Mutex
	lastKey float64
	byName  map[string][]Entry // each slice in ascending key order
	size    int
}

// New constructs a new empty Store.
func New(opts *Options) *Store {
	return &Store{
		max:     opts.maxPerAuthor(),
		lastKey: math.Inf(-1),
		byName:  make(map[string][]Entry),
	}
}

// Append files a copy of env under author, and returns the key assigned to
// it. The key is timestamp unless that would not exceed the most recently
// assigned key, in which case the next representable value after that key
// is used instead.
func (s *Store) Append(author string, timestamp float64, env *swarm.Envelope) float64 {
	cp := env.Clone()

	s.μ.Lock()
	defer s.μ.Unlock()
	key := timestamp
	if key <= s.lastKey {
		key = math.Nextafter(s.lastKey, math.Inf(1))
	}
	s.lastKey = key

	es := append(s.byName[author], Entry{Author: author, Key: key, Envelope: cp})
	s.size++
	if s.max > 0 && len(es) > s.max {
		n := len(es) - s.max
		s.size -= n
		es = slices.Delete(es, 0, n)
	}
	s.byName[author] = es
	return key
}

// Query returns all the entries filed under any of the specified authors, in
// ascending key order. If no authors are given, Query returns all entries.
// Unknown authors are ignored.
func (s *Store) Query(authors ...string) []Entry {
	s.μ.Lock()
	defer s.μ.Unlock()

	var out []Entry
	if len(authors) == 0 {
		for _, es := range s.byName {
			out = append(out, es...)
		}
	} else {
		seen := make(map[string]bool)
		for _, a := range authors {
			if !seen[a] {
				seen[a] = true
				out = append(out, s.byName[a]...)
			}
		}
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// Evict discards all entries filed under author, and returns the number of
// entries removed.
func (s *Store) Evict(author string) int {
	s.μ.Lock()
	defer s.μ.Unlock()
	n := len(s.byName[author])
	delete(s.byName, author)
	s.size -= n
	return n
}

// Len reports the total number of entries in the store.
func (s *Store) Len() int {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.size
}

// Authors returns the authors having at least one entry, in sorted order.
func (s *Store) Authors() []string {
	s.μ.Lock()
	defer s.μ.Unlock()
	out := make([]string, 0, len(s.byName))
	for a := range s.byName {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// FormatKey renders a history key as a string, for use as a key in the
// payload of a state envelope.
func FormatKey(key float64) string { return strconv.FormatFloat(key, 'f', -1, 64) }

// State packs entries into the payload of a state envelope, a mapping from
// formatted key to letter.
func State(entries []Entry) map[string]*swarm.Envelope {
	out := make(map[string]*swarm.Envelope, len(entries))
	for _, e := range entries {
		out[FormatKey(e.Key)] = e.Envelope
	}
	return out
}

// Replay unpacks the payload of a state envelope into a list of letters in
// ascending key order. Entries whose keys are not numbers are discarded.
func Replay(state map[string]*swarm.Envelope) []*swarm.Envelope {
	type keyed struct {
		key float64
		env *swarm.Envelope
	}
	var all []keyed
	for k, env := range state {
		key, err := strconv.ParseFloat(k, 64)
		if err != nil || env == nil {
			continue
		}
		all = append(all, keyed{key, env})
	}
	slices.SortFunc(all, func(a, b keyed) int { return cmp.Compare(a.key, b.key) })

	out := make([]*swarm.Envelope, len(all))
	for i, k := range all {
		out[i] = k.env
	}
	return out
}
