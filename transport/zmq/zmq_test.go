// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package zmq_test

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/transport/zmq"
	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

var testOpts = &zmq.Options{
	SendTimeout:  time.Second,
	PollInterval: 10 * time.Millisecond,
}

func TestIngest(t *testing.T) {
	defer leaktest.Check(t)()

	const addr = "inproc://swarm-test-ingest"
	in, err := zmq.ListenIngest(addr, testOpts)
	if err != nil {
		t.Fatalf("ListenIngest: %v", err)
	}
	defer in.Close()

	p, err := zmq.DialIngest(addr, testOpts)
	if err != nil {
		t.Fatalf("DialIngest: %v", err)
	}
	defer p.Close()

	var want []string
	for i := range 5 {
		msg := fmt.Sprintf("message %d", i)
		want = append(want, msg)
		if err := p.Push([]byte(msg)); err != nil {
			t.Fatalf("Push %q: %v", msg, err)
		}
	}
	var got []string
	for range want {
		data, err := in.Recv()
		if err != nil {
			t.Fatalf("Recv: unexpected error: %v", err)
		}
		got = append(got, string(data))
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Ingest (-got, +want):\n%s", diff)
	}

	// Closing the ingest interrupts a pending receive.
	recv := taskgroup.Go(func() error {
		_, err := in.Recv()
		return err
	})
	time.Sleep(50 * time.Millisecond)
	in.Close()
	if err := recv.Wait(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Recv after close: got %v, want %v", err, net.ErrClosed)
	}

	p.Close()
	if err := p.Push([]byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Push after close: got %v, want %v", err, net.ErrClosed)
	}
}

func TestBroadcast(t *testing.T) {
	defer leaktest.Check(t)()

	const addr = "inproc://swarm-test-broadcast"
	b, err := zmq.ListenBroadcast(addr, testOpts)
	if err != nil {
		t.Fatalf("ListenBroadcast: %v", err)
	}
	defer b.Close()

	// A subscription to "log" must not see messages for "logger", even
	// though ZeroMQ matches subscriptions by prefix.
	sub, err := zmq.DialBroadcast(addr, testOpts, swarm.TopicDefault, swarm.TopicLog)
	if err != nil {
		t.Fatalf("DialBroadcast: %v", err)
	}
	defer sub.Close()

	type msg struct {
		Topic swarm.Topic
		Data  string
	}
	recv := make(chan msg, 16)
	rg := taskgroup.Go(func() error {
		defer close(recv)
		for {
			topic, data, err := sub.Recv()
			if err != nil {
				return err
			}
			recv <- msg{topic, string(data)}
		}
	})

	// Wait for the subscription to reach the publisher.
	probe := time.NewTicker(10 * time.Millisecond)
	defer probe.Stop()
wait:
	for {
		select {
		case <-recv:
			break wait
		case <-probe.C:
			if err := b.Publish(swarm.TopicDefault, []byte("probe")); err != nil {
				t.Fatalf("Publish probe: %v", err)
			}
		}
	}

	for _, m := range []msg{
		{"logger", "wrong topic"},
		{swarm.TopicDefault, "envelope"},
		{"other", "wrong topic"},
		{swarm.TopicLog, "record"},
		{swarm.TopicDefault, "done"},
	} {
		if err := b.Publish(m.Topic, []byte(m.Data)); err != nil {
			t.Fatalf("Publish %v: %v", m, err)
		}
	}
	var got []msg
	for m := range recv {
		if m.Data == "probe" {
			continue
		}
		got = append(got, m)
		if m.Data == "done" {
			break
		}
	}
	want := []msg{
		{swarm.TopicDefault, "envelope"},
		{swarm.TopicLog, "record"},
		{swarm.TopicDefault, "done"},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Broadcast (-got, +want):\n%s", diff)
	}

	sub.Close()
	if err := rg.Wait(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Recv after close: got %v, want %v", err, net.ErrClosed)
	}
	b.Close()
	if err := b.Publish(swarm.TopicDefault, []byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Publish after close: got %v, want %v", err, net.ErrClosed)
	}
}

func TestAddr(t *testing.T) {
	in, err := zmq.ListenIngest("tcp://127.0.0.1:*", testOpts)
	if err != nil {
		t.Fatalf("ListenIngest: %v", err)
	}
	defer in.Close()
	if addr := in.Addr(); addr == "" || addr == "tcp://127.0.0.1:*" {
		t.Errorf("Addr: got %q, want a concrete endpoint", addr)
	}
}
