// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package memory implements an in-process transport for a swarm.
//
// A Bus connects one hub with any number of peers in the same process. The
// ingest side is a single queue shared by all pushers; the broadcast side
// delivers a copy of each published message to every subscription for its
// topic, through a bounded queue per subscription. A subscriber that falls
// behind loses messages rather than stalling the hub.
package memory

import (
	"net"
	"sync"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/swarm"
)

// DefaultDepth is the default queue depth of a Bus.
const DefaultDepth = 256

// A Bus is an in-memory ingest and broadcast channel pair.
// A zero Bus is not ready for use; call New.
type Bus struct {
	depth  int
	ingest chan []byte
	stop   chan struct{} // closed when the ingest side closes
	once   sync.Once

	μ      sync.Mutex
	subs   mapset.Set[*subscription]
	closed bool // broadcast side
}

// New constructs a new Bus whose queues hold up to depth messages.
// If depth <= 0, DefaultDepth is used.
func New(depth int) *Bus {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Bus{
		depth:  depth,
		ingest: make(chan []byte, depth),
		stop:   make(chan struct{}),
		subs:   mapset.New[*subscription](),
	}
}

// Ingest returns the hub end of the ingest queue.
func (b *Bus) Ingest() swarm.Ingest { return ingest{b} }

// Broadcast returns the hub end of the broadcast channel.
func (b *Bus) Broadcast() swarm.Broadcast { return broadcast{b} }

// Pusher returns a new peer end of the ingest queue.
func (b *Bus) Pusher() swarm.Pusher { return &pusher{bus: b, done: make(chan struct{})} }

// Subscribe returns a new subscription to the given topics. If the broadcast
// side of b is already closed, the subscription is closed at once.
func (b *Bus) Subscribe(topics ...swarm.Topic) swarm.Subscription {
	s := &subscription{
		bus:    b,
		topics: mapset.New(topics...),
		ch:     make(chan message, b.depth),
		done:   make(chan struct{}),
	}
	b.μ.Lock()
	defer b.μ.Unlock()
	if b.closed {
		close(s.ch)
	} else {
		b.subs.Add(s)
	}
	return s
}

type ingest struct{ *Bus }

// Recv implements a method of the [swarm.Ingest] interface.
func (in ingest) Recv() ([]byte, error) {
	select {
	case data := <-in.ingest:
		return data, nil
	case <-in.stop:
		return nil, net.ErrClosed
	}
}

// Close implements a method of the [swarm.Ingest] interface.
func (in ingest) Close() error {
	in.once.Do(func() { close(in.stop) })
	return nil
}

type pusher struct {
	bus  *Bus
	done chan struct{}
	once sync.Once
}

// Push implements a method of the [swarm.Pusher] interface. It blocks while
// the ingest queue is full.
func (p *pusher) Push(data []byte) error {
	select {
	case <-p.done:
		return net.ErrClosed
	default:
	}
	select {
	case p.bus.ingest <- data:
		return nil
	case <-p.bus.stop:
		return net.ErrClosed
	case <-p.done:
		return net.ErrClosed
	}
}

// Close implements a method of the [swarm.Pusher] interface. A pending Push
// is abandoned.
func (p *pusher) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

type broadcast struct{ *Bus }

// Publish implements a method of the [swarm.Broadcast] interface. It never
// blocks. If any subscription for topic has a full queue, that subscription
// misses the message and Publish reports swarm.ErrDropped.
func (b broadcast) Publish(topic swarm.Topic, data []byte) error {
	b.μ.Lock()
	defer b.μ.Unlock()
	if b.closed {
		return net.ErrClosed
	}
	var dropped bool
	for s := range b.subs {
		if !s.topics.Has(topic) {
			continue
		}
		select {
		case s.ch <- message{topic: topic, data: data}:
		default:
			dropped = true
		}
	}
	if dropped {
		return swarm.ErrDropped
	}
	return nil
}

// Close implements a method of the [swarm.Broadcast] interface. Messages
// already queued remain available to their subscriptions.
func (b broadcast) Close() error {
	b.μ.Lock()
	defer b.μ.Unlock()
	if !b.closed {
		b.closed = true
		for s := range b.subs {
			close(s.ch)
		}
		b.subs = mapset.New[*subscription]()
	}
	return nil
}

type message struct {
	topic swarm.Topic
	data  []byte
}

type subscription struct {
	bus    *Bus
	topics mapset.Set[swarm.Topic]
	ch     chan message
	done   chan struct{}
	once   sync.Once
}

// Recv implements a method of the [swarm.Subscription] interface.
func (s *subscription) Recv() (swarm.Topic, []byte, error) {
	select {
	case m, ok := <-s.ch:
		if !ok {
			return "", nil, net.ErrClosed
		}
		return m.topic, m.data, nil
	case <-s.done:
		return "", nil, net.ErrClosed
	}
}

// Close implements a method of the [swarm.Subscription] interface.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.μ.Lock()
		s.bus.subs.Remove(s)
		s.bus.μ.Unlock()
		close(s.done)
	})
	return nil
}
