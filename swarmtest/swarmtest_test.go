// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package swarmtest_test

import (
	"testing"
	"testing/synctest"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/hub"
	"github.com/creachadair/swarm/peer"
	"github.com/creachadair/swarm/swarmtest"
	"github.com/google/go-cmp/cmp"
)

func TestRecorder(t *testing.T) {
	var r swarmtest.Recorder
	r.Remote("one\ntwo")
	r.Local("three\nfour")

	want := []string{"one", "two", "- three", "- four"}
	if diff := cmp.Diff(r.Lines(), want); diff != "" {
		t.Errorf("Lines (-got, +want):\n%s", diff)
	}
	if diff := cmp.Diff(r.Take(), want); diff != "" {
		t.Errorf("Take (-got, +want):\n%s", diff)
	}
	if got := r.Lines(); len(got) != 0 {
		t.Errorf("Lines after Take: got %q, want none", got)
	}
}

func TestLocal(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		loc := swarmtest.NewLocal(&swarmtest.Options{
			Hub:   &hub.Options{Codec: swarm.MsgPack},
			Depth: 16,
		})
		bob := loc.AddPeer(peer.Options{Name: "bob"})
		synctest.Wait()
		loc.AddPeer(peer.Options{Name: "alice", Peers: []string{"bob"}})
		synctest.Wait()

		if loc.Peer("alice") == nil || loc.Peer("carol") != nil {
			t.Errorf("Peer lookup: alice=%v carol=%v", loc.Peer("alice"), loc.Peer("carol"))
		}
		if err := loc.Peer("alice").Command(t.Context(), "say over msgpack"); err != nil {
			t.Fatalf("Command: %v", err)
		}
		synctest.Wait()
		if diff := cmp.Diff(bob.Take(), []string{"alice invited you", "alice: over msgpack"}); diff != "" {
			t.Errorf("Bob saw (-got, +want):\n%s", diff)
		}

		if err := loc.Stop(); err != nil {
			t.Errorf("Stop: unexpected error: %v", err)
		}
		if loc.Peer("alice") != nil {
			t.Error("Peer alice still present after Stop")
		}
	})
}
