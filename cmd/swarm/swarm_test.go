// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"testing/synctest"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/peer"
	"github.com/creachadair/swarm/swarmtest"
	"github.com/google/go-cmp/cmp"
)

func TestREPL(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loc := swarmtest.NewLocal(nil)
		defer loc.Stop()

		bob := loc.AddPeer(peer.Options{Name: "bob", ReplayDelay: -1})
		synctest.Wait()
		alice := loc.AddPeer(peer.Options{Name: "alice", Peers: []string{"bob"}, ReplayDelay: -1})
		synctest.Wait()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var buf bytes.Buffer
		input := strings.NewReader("say hi there\nbogus\n\ncls\nexit\nsay never\n")
		if err := repl(ctx, alice.Client, input, newConsole(&buf)); err != nil {
			t.Fatalf("repl: unexpected error: %v", err)
		}
		synctest.Wait()

		if diff := cmp.Diff(bob.Take(), []string{"alice invited you", "alice: hi there"}); diff != "" {
			t.Errorf("Bob saw (-got, +want):\n%s", diff)
		}
		out := buf.String()
		for _, want := range []string{`Joined the swarm as "alice"`, "- bogus: unknown command", "\033[2J"} {
			if !strings.Contains(out, want) {
				t.Errorf("Output %q does not contain %q", out, want)
			}
		}
	})
}

func TestPrintLogs(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loc := swarmtest.NewLocal(nil)
		defer loc.Stop()
		sub := loc.Bus.Subscribe(swarm.TopicLog)

		var buf bytes.Buffer
		done := make(chan error, 1)
		go func() { done <- printLogs(sub, swarm.JSON, newConsole(&buf)) }()

		loc.AddPeer(peer.Options{Name: "alice"})
		synctest.Wait()
		sub.Close()
		if err := <-done; err != nil {
			t.Fatalf("printLogs: unexpected error: %v", err)
		}
		if got, want := buf.String(), "alice [peer.start<state> > router] stateQuery was received"; !strings.Contains(got, want) {
			t.Errorf("Log output %q does not contain %q", got, want)
		}
	})
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"bob", []string{"bob"}},
		{"bob, carol,,dave ", []string{"bob", "carol", "dave"}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(splitList(tc.input), tc.want); diff != "" {
			t.Errorf("splitList(%q) (-got, +want):\n%s", tc.input, diff)
		}
	}
}
