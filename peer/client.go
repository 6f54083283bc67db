// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package peer implements a participant in a swarm.
//
// A Client pushes envelopes to the hub and receives the envelopes the hub
// broadcasts, handling those addressed to it. A client also interprets
// commands typed by a user, such as
//
//	say hello, everyone
//	invite bob carol
//	order coffee latte -milk
//	peer bob mood
//
// and translates them into envelopes for the hub. Output meant for the user
// is written to a Display.
package peer

import (
	"context"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/mediator"
	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"
)

// DefaultReplayDelay is the default pause between replayed letters.
const DefaultReplayDelay = 10 * time.Millisecond

// A Display shows messages to the user of a peer.
type Display interface {
	// Remote shows a message that originated elsewhere in the swarm.
	Remote(msg string)

	// Local shows a message generated by the peer itself.
	Local(msg string)
}

// Options are settings for a Client.
type Options struct {
	// The name of the peer in the swarm. It must be non-empty.
	Name string

	// Peers the client talks to initially. On start, the client catches up
	// on their history and invites them.
	Peers []string

	// If positive, send a heartbeat to the hub at this interval.
	Heartbeat time.Duration

	// The pause between letters replayed from history. If zero,
	// DefaultReplayDelay is used; if negative, letters are not paced.
	ReplayDelay time.Duration

	// Services offered by the peer, reported to a "services" query.
	Services []string

	// The codec used to encode and decode messages. If nil, swarm.JSON.
	Codec swarm.Codec

	// If set, diagnostic logs are written here.
	Logger *zerolog.Logger

	// Where to show messages to the user. If nil, messages are discarded.
	Display Display
}

// A Client is a peer of a swarm.
//
// Call Start with a pusher and a subscription to start the service routines
// for the client. Once started, a client runs until Stop is called or its
// subscription closes. Use Wait to wait for the client to exit.
type Client struct {
	name        string
	heartbeat   time.Duration
	replayDelay time.Duration
	services    []string
	codec       swarm.Codec
	log         *zerolog.Logger
	display     Display
	handlers    *mediator.Registry[*Client, *swarm.Envelope]
	commands    *mediator.Registry[*Client, []string]

	out struct {
		// Must hold the lock to push to or set p.
		sync.Mutex
		p swarm.Pusher
	}

	μ     sync.Mutex
	peers mapset.Set[string] // peers this client talks to
	push  swarm.Pusher
	sub   swarm.Subscription
	tasks *taskgroup.Group
	stop  context.CancelFunc
	err   error
}

// New constructs a new unstarted client. It panics if opts.Name == "".
func New(opts Options) *Client {
	if opts.Name == "" {
		panic("peer: empty name")
	}
	c := &Client{
		name:        opts.Name,
		heartbeat:   opts.Heartbeat,
		replayDelay: opts.ReplayDelay,
		services:    slices.Clone(opts.Services),
		codec:       opts.Codec,
		display:     opts.Display,
		handlers:    newHandlers(),
		commands:    newCommands(),
		peers:       mapset.New[string](),
	}
	if c.replayDelay == 0 {
		c.replayDelay = DefaultReplayDelay
	}
	if c.codec == nil {
		c.codec = swarm.JSON
	}
	if c.display == nil {
		c.display = nopDisplay{}
	}
	lg := swarm.LoggerOrNop(opts.Logger).With().Str("peer", opts.Name).Logger()
	c.log = &lg
	for _, p := range opts.Peers {
		if p != "" && p != opts.Name {
			c.peers.Add(p)
		}
	}
	return c
}

// Name reports the name of the client.
func (c *Client) Name() string { return c.name }

// Peers returns the names of the peers c talks to, in sorted order.
func (c *Client) Peers() []string {
	c.μ.Lock()
	defer c.μ.Unlock()
	return sortedNames(c.peers)
}

// addPeers adds the given names, other than the client itself, to the peers
// c talks to.
func (c *Client) addPeers(names ...string) {
	c.μ.Lock()
	defer c.μ.Unlock()
	for _, p := range names {
		if p != "" && p != c.name {
			c.peers.Add(p)
		}
	}
}

// Start starts the client running on the given channels. It requests the
// history of itself and its initial peers, and invites those peers. Start
// does not block; call Wait to wait for the client to exit.
//
// Start panics if c is already running.
func (c *Client) Start(out swarm.Pusher, sub swarm.Subscription) *Client {
	c.μ.Lock()
	if c.tasks != nil {
		c.μ.Unlock()
		panic("peer is already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := taskgroup.New(nil)
	c.tasks, c.stop, c.push, c.sub, c.err = g, cancel, out, sub, nil
	initial := sortedNames(c.peers)
	c.μ.Unlock()

	c.out.Lock()
	c.out.p = out
	c.out.Unlock()

	// Receive loop: handle envelopes addressed to this peer, in order.
	g.Go(func() error {
		defer cancel()
		for {
			_, data, err := sub.Recv()
			if err != nil {
				if !swarm.IsClosed(err) {
					c.μ.Lock()
					c.err = err
					c.μ.Unlock()
				}
				return nil
			}
			c.receive(ctx, data)
		}
	})

	if c.heartbeat > 0 {
		g.Go(func() error {
			t := time.NewTicker(c.heartbeat)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if err := c.Send(&swarm.Envelope{Type: swarm.TypeHeartbeat}); err != nil {
						c.log.Debug().Err(err).Msg("heartbeat failed")
					}
				}
			}
		})
	}

	// Catch up on the conversation, and let the others know we are here.
	if err := c.Send(&swarm.Envelope{
		Type:    swarm.TypeStateQuery,
		Payload: append([]string{c.name}, initial...),
		Trace:   []string{"peer.start<state>"},
	}); err != nil {
		c.log.Error().Err(err).Msg("requesting state")
	}
	if len(initial) != 0 {
		if err := c.Send(&swarm.Envelope{
			Type:    swarm.TypeInvitation,
			Payload: initial,
			Trace:   []string{"peer.start<invite>"},
		}); err != nil {
			c.log.Error().Err(err).Msg("sending invitation")
		}
	}
	c.log.Info().Strs("peers", initial).Msg("peer started")
	return c
}

// Stop closes the channels of the client and terminates it. It blocks until
// the client has exited and returns its status.
func (c *Client) Stop() error {
	c.μ.Lock()
	push, sub, stop := c.push, c.sub, c.stop
	c.μ.Unlock()
	if sub != nil {
		// N.B. Do not take the send lock here, as a send may be blocked
		// waiting for the pusher to close.
		push.Close()
		sub.Close()
		stop()
	}
	return c.Wait()
}

// Wait blocks until c terminates and reports the error that caused it to
// stop. If c stopped because its subscription closed, Wait returns nil.
// After Wait returns it is safe to restart the client with new channels.
func (c *Client) Wait() error {
	c.μ.Lock()
	g := c.tasks
	c.μ.Unlock()
	if g == nil {
		return nil // not running
	}
	g.Wait()

	c.μ.Lock()
	push := c.push
	c.tasks, c.push, c.sub = nil, nil, nil
	err := c.err
	c.μ.Unlock()
	if push != nil {
		push.Close()
	}

	c.out.Lock()
	c.out.p = nil
	c.out.Unlock()
	return err
}

// Send pushes env to the hub. Send sets the author of env to the name of c,
// and its timestamp to the current time if it is zero.
func (c *Client) Send(env *swarm.Envelope) error {
	env.Author = c.name
	if env.Timestamp == 0 {
		env.Timestamp = swarm.Now()
	}
	data, err := swarm.EncodeEnvelope(c.codec, env)
	if err != nil {
		return err
	}

	c.out.Lock()
	defer c.out.Unlock()
	if c.out.p == nil {
		return net.ErrClosed
	}
	c.log.Debug().Str("type", env.Type).Strs("recipients", env.Recipients).Msg("send")
	return c.out.p.Push(data)
}

// receive handles a single encoded envelope from the broadcast channel.
func (c *Client) receive(ctx context.Context, data []byte) {
	env, err := swarm.DecodeEnvelope(c.codec, data)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropped envelope")
		return
	} else if !env.AddressedTo(c.name) {
		return // not for us
	}

	out, err := c.handlers.Dispatch(ctx, env.Type, c, env)
	if err != nil {
		c.log.Warn().Err(err).Str("type", env.Type).Str("author", env.Author).Msg("handling envelope")
		return
	} else if out != nil {
		if err := c.Send(out); err != nil {
			c.log.Error().Err(err).Str("type", out.Type).Msg("sending reply")
		}
	}
}

func sortedNames(s mapset.Set[string]) []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

type nopDisplay struct{}

func (nopDisplay) Remote(string) {}
func (nopDisplay) Local(string)  {}

// LineDisplay returns a Display that calls emit with each message, one line
// at a time. Messages from this peer are prefixed with "- ".
func LineDisplay(emit func(line string)) Display { return lineDisplay(emit) }

type lineDisplay func(string)

func (d lineDisplay) Remote(msg string) {
	for _, line := range strings.Split(msg, "\n") {
		d(line)
	}
}

func (d lineDisplay) Local(msg string) {
	for _, line := range strings.Split(msg, "\n") {
		d("- " + line)
	}
}
