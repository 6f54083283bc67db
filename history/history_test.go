// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package history_test

import (
	"testing"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/history"
	"github.com/google/go-cmp/cmp"
)

func letter(author, text string, ts float64) *swarm.Envelope {
	return &swarm.Envelope{
		Author:     author,
		Recipients: []string{"bob"},
		Type:       swarm.TypeLetter,
		Payload:    text,
		Timestamp:  ts,
	}
}

func payloads(envs []*swarm.Envelope) []string {
	var out []string
	for _, e := range envs {
		out = append(out, e.Payload.(string))
	}
	return out
}

func entryPayloads(es []history.Entry) []string {
	var out []string
	for _, e := range es {
		out = append(out, e.Envelope.Payload.(string))
	}
	return out
}

func TestOrdering(t *testing.T) {
	s := history.New(nil)

	// Out of clock order, and with a duplicate timestamp.
	k1 := s.Append("alice", 100, letter("alice", "one", 100))
	k2 := s.Append("alice", 100, letter("alice", "two", 100))
	k3 := s.Append("carol", 50, letter("carol", "three", 50))
	k4 := s.Append("alice", 200, letter("alice", "four", 200))

	if k1 != 100 {
		t.Errorf("First key: got %v, want 100", k1)
	}
	if !(k1 < k2 && k2 < k3 && k3 < k4) {
		t.Errorf("Keys not strictly increasing: %v %v %v %v", k1, k2, k3, k4)
	}
	if k4 != 200 {
		t.Errorf("Fourth key: got %v, want 200", k4)
	}
	if n := s.Len(); n != 4 {
		t.Errorf("Len: got %d, want 4", n)
	}

	if diff := cmp.Diff(entryPayloads(s.Query("alice")), []string{"one", "two", "four"}); diff != "" {
		t.Errorf("Query alice (-got, +want):\n%s", diff)
	}
	if diff := cmp.Diff(entryPayloads(s.Query("alice", "carol", "alice", "nobody")),
		[]string{"one", "two", "three", "four"}); diff != "" {
		t.Errorf("Query alice, carol (-got, +want):\n%s", diff)
	}
	if diff := cmp.Diff(entryPayloads(s.Query()), []string{"one", "two", "three", "four"}); diff != "" {
		t.Errorf("Query all (-got, +want):\n%s", diff)
	}

	// The state payload replays in the same order.
	state := history.State(s.Query())
	if len(state) != 4 {
		t.Errorf("State: got %d entries, want 4", len(state))
	}
	if diff := cmp.Diff(payloads(history.Replay(state)), []string{"one", "two", "three", "four"}); diff != "" {
		t.Errorf("Replay (-got, +want):\n%s", diff)
	}
}

func TestIsolation(t *testing.T) {
	s := history.New(nil)
	env := letter("alice", "original", 1)
	s.Append("alice", env.Timestamp, env)

	// Changes to the caller's envelope after Append do not affect history.
	env.Payload = "changed"
	env.Recipients[0] = "mallory"
	env.AddTrace("later")

	got := s.Query("alice")
	if len(got) != 1 {
		t.Fatalf("Query: got %d entries, want 1", len(got))
	}
	want := letter("alice", "original", 1)
	if diff := cmp.Diff(got[0].Envelope, want); diff != "" {
		t.Errorf("Stored envelope (-got, +want):\n%s", diff)
	}
}

func TestEvictRetention(t *testing.T) {
	s := history.New(&history.Options{MaxPerAuthor: 2})
	for i, text := range []string{"a", "b", "c"} {
		s.Append("alice", float64(i+1), letter("alice", text, float64(i+1)))
	}
	s.Append("bob", 10, letter("bob", "x", 10))

	if diff := cmp.Diff(entryPayloads(s.Query("alice")), []string{"b", "c"}); diff != "" {
		t.Errorf("Retained (-got, +want):\n%s", diff)
	}
	if n := s.Len(); n != 3 {
		t.Errorf("Len: got %d, want 3", n)
	}

	if n := s.Evict("alice"); n != 2 {
		t.Errorf("Evict alice: got %d, want 2", n)
	}
	if n := s.Evict("alice"); n != 0 {
		t.Errorf("Evict alice again: got %d, want 0", n)
	}
	if got := s.Query("alice"); len(got) != 0 {
		t.Errorf("Query after evict: got %d entries, want 0", len(got))
	}
	if diff := cmp.Diff(s.Authors(), []string{"bob"}); diff != "" {
		t.Errorf("Authors (-got, +want):\n%s", diff)
	}
	if n := s.Len(); n != 1 {
		t.Errorf("Len: got %d, want 1", n)
	}
}

func TestUnbounded(t *testing.T) {
	s := history.New(&history.Options{MaxPerAuthor: -1})
	for i := range history.DefaultMaxPerAuthor + 5 {
		s.Append("alice", float64(i), letter("alice", "x", float64(i)))
	}
	if n := s.Len(); n != history.DefaultMaxPerAuthor+5 {
		t.Errorf("Len: got %d, want %d", n, history.DefaultMaxPerAuthor+5)
	}
}
