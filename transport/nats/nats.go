// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package nats implements a swarm transport over a NATS server.
//
// Envelopes for the hub are published on the subject "<prefix>.ingest", and
// the hub broadcasts each topic on the subject "<prefix>.<topic>". A prefix
// lets several swarms share one server.
package nats

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/creachadair/swarm"
	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix used when none is given.
const DefaultPrefix = "swarm"

// DefaultDepth is the default number of messages a receiver buffers.
const DefaultDepth = 1024

// A Transport creates channel ends on a NATS connection.
// The caller remains responsible for closing the connection.
type Transport struct {
	nc     *nats.Conn
	prefix string
	depth  int
}

// New constructs a transport on nc for the swarm with the given subject
// prefix. If prefix == "", DefaultPrefix is used. Receivers buffer up to
// depth messages; if depth <= 0, DefaultDepth is used. A receiver that
// falls further behind loses messages.
func New(nc *nats.Conn, prefix string, depth int) *Transport {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Transport{nc: nc, prefix: prefix, depth: depth}
}

func (t *Transport) ingestSubject() string { return t.prefix + ".ingest" }

func (t *Transport) topicSubject(topic swarm.Topic) string { return t.prefix + "." + string(topic) }

// Ingest subscribes to the ingest subject and returns the hub end of the
// ingest channel.
func (t *Transport) Ingest() (swarm.Ingest, error) {
	r, err := t.subscribe(t.ingestSubject())
	if err != nil {
		return nil, err
	}
	return ingest{r}, nil
}

// Broadcast returns the hub end of the broadcast channel.
func (t *Transport) Broadcast() swarm.Broadcast { return &broadcast{t: t} }

// Pusher returns a peer end of the ingest channel.
func (t *Transport) Pusher() swarm.Pusher { return &pusher{t: t} }

// Subscribe returns a subscription to the given broadcast topics.
func (t *Transport) Subscribe(topics ...swarm.Topic) (swarm.Subscription, error) {
	subjects := make([]string, len(topics))
	for i, topic := range topics {
		subjects[i] = t.topicSubject(topic)
	}
	r, err := t.subscribe(subjects...)
	if err != nil {
		return nil, err
	}
	return subscription{receiver: r, prefix: t.prefix + "."}, nil
}

// subscribe delivers messages for all the given subjects to a single buffered
// channel, so that the order of messages on the connection is preserved.
func (t *Transport) subscribe(subjects ...string) (*receiver, error) {
	r := &receiver{ch: make(chan *nats.Msg, t.depth), done: make(chan struct{})}
	for _, subj := range subjects {
		sub, err := t.nc.ChanSubscribe(subj, r.ch)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("subscribe %q: %w", subj, err)
		}
		r.subs = append(r.subs, sub)
	}
	// Make sure the server has registered interest before returning.
	if err := t.nc.Flush(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

type receiver struct {
	ch   chan *nats.Msg
	subs []*nats.Subscription
	done chan struct{}
	once sync.Once
}

func (r *receiver) recv() (*nats.Msg, error) {
	select {
	case <-r.done:
		return nil, net.ErrClosed
	case m := <-r.ch:
		return m, nil
	}
}

// Close unsubscribes the receiver and interrupts a pending Recv.
func (r *receiver) Close() error {
	var err error
	r.once.Do(func() {
		for _, sub := range r.subs {
			if uerr := sub.Unsubscribe(); uerr != nil && err == nil && uerr != nats.ErrConnectionClosed {
				err = uerr
			}
		}
		close(r.done)
	})
	return err
}

type ingest struct{ *receiver }

// Recv implements a method of the [swarm.Ingest] interface.
func (in ingest) Recv() ([]byte, error) {
	m, err := in.recv()
	if err != nil {
		return nil, err
	}
	return m.Data, nil
}

type subscription struct {
	*receiver
	prefix string
}

// Recv implements a method of the [swarm.Subscription] interface.
func (s subscription) Recv() (swarm.Topic, []byte, error) {
	m, err := s.recv()
	if err != nil {
		return "", nil, err
	}
	return swarm.Topic(strings.TrimPrefix(m.Subject, s.prefix)), m.Data, nil
}

// closer reports net.ErrClosed from a channel end after Close.
type closer struct {
	μ      sync.Mutex
	closed bool
}

func (c *closer) isClosed() bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.closed
}

func (c *closer) close() bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	was := c.closed
	c.closed = true
	return !was
}

type broadcast struct {
	closer
	t *Transport
}

// Publish implements a method of the [swarm.Broadcast] interface. NATS
// buffers outbound messages on the connection, so Publish does not block
// on slow subscribers.
func (b *broadcast) Publish(topic swarm.Topic, data []byte) error {
	if b.isClosed() {
		return net.ErrClosed
	}
	return b.t.nc.Publish(b.t.topicSubject(topic), data)
}

// Close flushes messages buffered on the connection.
func (b *broadcast) Close() error {
	if !b.close() {
		return nil
	}
	return flush(b.t.nc)
}

type pusher struct {
	closer
	t *Transport
}

// Push implements a method of the [swarm.Pusher] interface.
func (p *pusher) Push(data []byte) error {
	if p.isClosed() {
		return net.ErrClosed
	}
	return p.t.nc.Publish(p.t.ingestSubject(), data)
}

// Close flushes messages buffered on the connection.
func (p *pusher) Close() error {
	if !p.close() {
		return nil
	}
	return flush(p.t.nc)
}

func flush(nc *nats.Conn) error {
	if nc.IsClosed() {
		return nil
	}
	return nc.Flush()
}
