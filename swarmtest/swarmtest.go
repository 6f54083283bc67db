// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package swarmtest provides support code for testing a swarm in memory.
package swarmtest

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/hub"
	"github.com/creachadair/swarm/peer"
	"github.com/creachadair/swarm/transport/memory"
)

// Options are optional settings for a Local swarm. A nil *Options is ready
// for use and provides defaults as described.
type Options struct {
	// Settings for the hub. The codec of the hub is used by all peers.
	Hub *hub.Options

	// Queue depth of the memory bus. If zero, memory.DefaultDepth.
	Depth int
}

// Local is a hub and any number of peers connected by an in-memory bus,
// suitable for testing.
type Local struct {
	Bus *memory.Bus
	Hub *hub.Hub

	codec swarm.Codec

	μ     sync.Mutex
	peers map[string]*Peer
}

// A Peer is a running peer of a Local swarm, whose display is recorded.
type Peer struct {
	*peer.Client
	*Recorder
}

// NewLocal creates and starts a hub on a new memory bus.
func NewLocal(opts *Options) *Local {
	var hopts *hub.Options
	depth := 0
	if opts != nil {
		hopts, depth = opts.Hub, opts.Depth
	}
	codec := swarm.JSON
	if hopts != nil && hopts.Codec != nil {
		codec = hopts.Codec
	}
	bus := memory.New(depth)
	return &Local{
		Bus:   bus,
		Hub:   hub.New(hopts).Start(bus.Ingest(), bus.Broadcast()),
		codec: codec,
		peers: make(map[string]*Peer),
	}
}

// AddPeer creates and starts a peer with the given options, connected to the
// hub of l. The display and codec of opts are replaced.
func (l *Local) AddPeer(opts peer.Options) *Peer {
	rec := new(Recorder)
	opts.Display = rec
	opts.Codec = l.codec
	p := &Peer{Client: peer.New(opts), Recorder: rec}

	l.μ.Lock()
	l.peers[opts.Name] = p
	l.μ.Unlock()

	p.Start(l.Bus.Pusher(), l.Bus.Subscribe(swarm.TopicDefault))
	return p
}

// Peer returns the peer with the given name, or nil if there is none.
func (l *Local) Peer(name string) *Peer {
	l.μ.Lock()
	defer l.μ.Unlock()
	return l.peers[name]
}

// Stop shuts down all the peers and then the hub, and blocks until all have
// exited.
func (l *Local) Stop() error {
	l.μ.Lock()
	peers := l.peers
	l.peers = make(map[string]*Peer)
	l.μ.Unlock()

	var errs []error
	for _, p := range peers {
		errs = append(errs, p.Stop())
	}
	errs = append(errs, l.Hub.Stop())
	return errors.Join(errs...)
}

// A Recorder is a peer.Display that records the lines it is given.
// A zero Recorder is ready for use.
type Recorder struct {
	μ     sync.Mutex
	lines []string
}

// Remote implements part of the peer.Display interface.
func (r *Recorder) Remote(msg string) { r.add("", msg) }

// Local implements part of the peer.Display interface. Each line is prefixed
// with "- ".
func (r *Recorder) Local(msg string) { r.add("- ", msg) }

func (r *Recorder) add(prefix, msg string) {
	r.μ.Lock()
	defer r.μ.Unlock()
	for _, line := range strings.Split(msg, "\n") {
		r.lines = append(r.lines, prefix+line)
	}
}

// Lines returns a copy of the lines recorded so far.
func (r *Recorder) Lines() []string {
	r.μ.Lock()
	defer r.μ.Unlock()
	return slices.Clone(r.lines)
}

// Take returns the lines recorded so far, and discards them.
func (r *Recorder) Take() []string {
	r.μ.Lock()
	defer r.μ.Unlock()
	out := r.lines
	r.lines = nil
	return out
}
