// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package nats_test

import (
	"errors"
	"net"
	"testing"

	"github.com/creachadair/swarm"
	swarmnats "github.com/creachadair/swarm/transport/nats"
	"github.com/creachadair/taskgroup"
	"github.com/google/go-cmp/cmp"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
)

func newTransport(t *testing.T, prefix string) *swarmnats.Transport {
	t.Helper()
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return swarmnats.New(nc, prefix, 0)
}

func TestIngest(t *testing.T) {
	tr := newTransport(t, "")
	in, err := tr.Ingest()
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	defer in.Close()

	p := tr.Pusher()
	want := []string{"one", "two", "three"}
	for _, msg := range want {
		if err := p.Push([]byte(msg)); err != nil {
			t.Fatalf("Push %q: %v", msg, err)
		}
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close pusher: %v", err)
	}
	if err := p.Push([]byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Push after close: got %v, want %v", err, net.ErrClosed)
	}

	var got []string
	for range want {
		data, err := in.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, string(data))
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Ingest (-got, +want):\n%s", diff)
	}

	recv := taskgroup.Go(func() error {
		_, err := in.Recv()
		return err
	})
	in.Close()
	if err := recv.Wait(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Recv after close: got %v, want %v", err, net.ErrClosed)
	}
}

func TestBroadcast(t *testing.T) {
	tr := newTransport(t, "test1")

	all, err := tr.Subscribe(swarm.TopicDefault, swarm.TopicLog)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer all.Close()
	logs, err := tr.Subscribe(swarm.TopicLog)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer logs.Close()

	b := tr.Broadcast()
	for _, m := range []struct {
		topic swarm.Topic
		data  string
	}{
		{swarm.TopicDefault, "a"},
		{swarm.TopicLog, "b"},
		{swarm.TopicDefault, "c"},
	} {
		if err := b.Publish(m.topic, []byte(m.data)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close broadcast: %v", err)
	}
	if err := b.Publish(swarm.TopicDefault, nil); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Publish after close: got %v, want %v", err, net.ErrClosed)
	}

	collect := func(s swarm.Subscription, n int) []string {
		var out []string
		for range n {
			topic, data, err := s.Recv()
			if err != nil {
				t.Fatalf("Recv: %v", err)
			}
			out = append(out, string(topic)+":"+string(data))
		}
		return out
	}
	if diff := cmp.Diff(collect(all, 3), []string{"default:a", "log:b", "default:c"}); diff != "" {
		t.Errorf("All topics (-got, +want):\n%s", diff)
	}
	if diff := cmp.Diff(collect(logs, 1), []string{"log:b"}); diff != "" {
		t.Errorf("Log topic (-got, +want):\n%s", diff)
	}
}
