// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package zmq implements a swarm transport over ZeroMQ sockets.
//
// The hub binds a PULL socket for ingest and a PUB socket for broadcast.
// Peers connect a PUSH socket to the former and a SUB socket to the latter.
// Broadcast messages are framed as two parts, [topic, payload].
//
// ZeroMQ sockets may not be shared among goroutines, so each value in this
// package serializes use of its socket with a mutex. Receivers poll with a
// short timeout so that Close can interrupt a pending Recv.
package zmq

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/swarm"
	zmq4 "github.com/pebbe/zmq4"
)

// Default addresses for the hub and its peers.
const (
	DefaultIngestAddr        = "tcp://*:5555"
	DefaultBroadcastAddr     = "tcp://*:5556"
	DefaultPeerIngestAddr    = "tcp://localhost:5555"
	DefaultPeerBroadcastAddr = "tcp://localhost:5556"
)

// Options are optional settings for sockets. A nil *Options is ready for use
// and provides defaults as described.
type Options struct {
	// The high-water mark for outbound queues. If zero, 1000 is used.
	// A broadcast subscriber that falls this far behind loses messages.
	HighWater int

	// How long a Push may wait for the hub to accept a message before it is
	// dropped. If zero, 5s is used.
	SendTimeout time.Duration

	// How often a pending Recv checks whether it has been closed.
	// If zero, 100ms is used.
	PollInterval time.Duration
}

func (o *Options) highWater() int {
	if o == nil || o.HighWater <= 0 {
		return 1000
	}
	return o.HighWater
}

func (o *Options) sendTimeout() time.Duration {
	if o == nil || o.SendTimeout <= 0 {
		return 5 * time.Second
	}
	return o.SendTimeout
}

func (o *Options) pollInterval() time.Duration {
	if o == nil || o.PollInterval <= 0 {
		return 100 * time.Millisecond
	}
	return o.PollInterval
}

// socket is a ZeroMQ socket guarded by a mutex, with a close flag visible to
// a concurrent receiver.
type socket struct {
	μ      sync.Mutex
	s      *zmq4.Socket
	addr   string
	closed atomic.Bool
}

func newSocket(kind zmq4.Type, setup func(*zmq4.Socket) error) (*socket, error) {
	s, err := zmq4.NewSocket(kind)
	if err != nil {
		return nil, err
	}
	if err := setup(s); err != nil {
		s.Close()
		return nil, err
	}
	addr, _ := s.GetLastEndpoint()
	return &socket{s: s, addr: addr}, nil
}

// Addr reports the address the socket is bound or connected to.
// For a socket bound to a wildcard port, this is the port actually chosen.
func (s *socket) Addr() string { return s.addr }

// Close closes the socket. It waits for a pending receive poll to finish.
func (s *socket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.s.Close()
}

// recv blocks until a message arrives on the socket or the socket is closed.
func (s *socket) recv() ([][]byte, error) {
	for {
		if s.closed.Load() {
			return nil, net.ErrClosed
		}
		s.μ.Lock()
		if s.closed.Load() {
			s.μ.Unlock()
			return nil, net.ErrClosed
		}
		parts, err := s.s.RecvMessageBytes(0)
		s.μ.Unlock()
		if err == nil {
			return parts, nil
		}
		switch zmq4.AsErrno(err) {
		case zmq4.Errno(syscall.EAGAIN), zmq4.Errno(syscall.EINTR):
			continue // poll timeout
		case zmq4.ETERM:
			return nil, net.ErrClosed
		}
		return nil, err
	}
}

// An Ingest is the hub end of the ingest channel, a bound PULL socket.
type Ingest struct{ *socket }

// ListenIngest binds a PULL socket at addr.
func ListenIngest(addr string, opts *Options) (*Ingest, error) {
	s, err := newSocket(zmq4.PULL, func(s *zmq4.Socket) error {
		if err := s.SetRcvtimeo(opts.pollInterval()); err != nil {
			return err
		}
		return s.Bind(addr)
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %q: %w", addr, err)
	}
	return &Ingest{s}, nil
}

// Recv implements a method of the [swarm.Ingest] interface.
func (in *Ingest) Recv() ([]byte, error) {
	for {
		parts, err := in.recv()
		if err != nil {
			return nil, err
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		// Ignore multipart messages; pushers send exactly one part.
	}
}

// A Broadcast is the hub end of the broadcast channel, a bound PUB socket.
type Broadcast struct{ *socket }

// ListenBroadcast binds a PUB socket at addr.
func ListenBroadcast(addr string, opts *Options) (*Broadcast, error) {
	s, err := newSocket(zmq4.PUB, func(s *zmq4.Socket) error {
		if err := s.SetSndhwm(opts.highWater()); err != nil {
			return err
		}
		if err := s.SetLinger(0); err != nil {
			return err
		}
		return s.Bind(addr)
	})
	if err != nil {
		return nil, fmt.Errorf("broadcast %q: %w", addr, err)
	}
	return &Broadcast{s}, nil
}

// Publish implements a method of the [swarm.Broadcast] interface.
// A PUB socket never blocks: messages beyond the high-water mark of a
// subscriber are discarded without notice.
func (b *Broadcast) Publish(topic swarm.Topic, data []byte) error {
	if b.closed.Load() {
		return net.ErrClosed
	}
	b.μ.Lock()
	defer b.μ.Unlock()
	_, err := b.s.SendMessageDontwait(string(topic), data)
	if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
		return swarm.ErrDropped
	}
	return err
}

// A Pusher is the peer end of the ingest channel, a connected PUSH socket.
type Pusher struct{ *socket }

// DialIngest connects a PUSH socket to addr.
func DialIngest(addr string, opts *Options) (*Pusher, error) {
	s, err := newSocket(zmq4.PUSH, func(s *zmq4.Socket) error {
		if err := s.SetSndhwm(opts.highWater()); err != nil {
			return err
		}
		if err := s.SetSndtimeo(opts.sendTimeout()); err != nil {
			return err
		}
		if err := s.SetLinger(opts.sendTimeout()); err != nil {
			return err
		}
		return s.Connect(addr)
	})
	if err != nil {
		return nil, fmt.Errorf("push %q: %w", addr, err)
	}
	return &Pusher{s}, nil
}

// Push implements a method of the [swarm.Pusher] interface. If the hub does
// not accept the message within the send timeout, Push reports an error
// wrapping swarm.ErrDropped.
func (p *Pusher) Push(data []byte) error {
	if p.closed.Load() {
		return net.ErrClosed
	}
	p.μ.Lock()
	defer p.μ.Unlock()
	_, err := p.s.SendBytes(data, 0)
	if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
		return fmt.Errorf("push: %w", swarm.ErrDropped)
	}
	return err
}

// A Subscription is the peer end of the broadcast channel, a connected SUB
// socket.
type Subscription struct {
	*socket
	topics mapset.Set[swarm.Topic]
}

// DialBroadcast connects a SUB socket to addr, subscribed to the given topics.
func DialBroadcast(addr string, opts *Options, topics ...swarm.Topic) (*Subscription, error) {
	s, err := newSocket(zmq4.SUB, func(s *zmq4.Socket) error {
		for _, t := range topics {
			if err := s.SetSubscribe(string(t)); err != nil {
				return err
			}
		}
		if err := s.SetRcvtimeo(opts.pollInterval()); err != nil {
			return err
		}
		return s.Connect(addr)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", addr, err)
	}
	return &Subscription{socket: s, topics: mapset.New(topics...)}, nil
}

// Recv implements a method of the [swarm.Subscription] interface.
//
// ZeroMQ filters subscriptions by prefix, so Recv discards messages whose
// topic is not exactly one of those subscribed.
func (s *Subscription) Recv() (swarm.Topic, []byte, error) {
	for {
		parts, err := s.recv()
		if err != nil {
			return "", nil, err
		}
		if len(parts) != 2 || !s.topics.Has(swarm.Topic(parts[0])) {
			continue
		}
		return swarm.Topic(parts[0]), parts[1], nil
	}
}
