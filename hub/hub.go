// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package hub implements the central router of a swarm.
//
// A Hub reads envelopes from an ingest channel shared by all peers, routes
// each to a handler according to its type, and publishes the results on a
// broadcast channel to which every peer subscribes. The hub owns the letter
// history, the presence of peers, and the order workflow.
//
// Every envelope the hub handles is also reported as a [swarm.Log] record on
// the log topic of the broadcast channel.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/history"
	"github.com/creachadair/swarm/mediator"
	"github.com/creachadair/swarm/order"
	"github.com/creachadair/swarm/presence"
	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DefaultKeepAlive is the default interval after which a silent peer is
// considered absent.
const DefaultKeepAlive = 4 * time.Second

// logName is the name attached to log records published by the hub.
const logName = "swarm.hub"

// Options are optional settings for a Hub. A nil *Options is ready for use
// and provides defaults as described.
type Options struct {
	// The codec used to decode and encode messages. If nil, swarm.JSON.
	Codec swarm.Codec

	// A peer not seen for longer than this is evicted, and its history
	// discarded. If zero, DefaultKeepAlive is used.
	KeepAlive time.Duration

	// How often to check for peers to evict. If zero, KeepAlive is used.
	SweepInterval time.Duration

	// Settings for the letter history.
	History *history.Options

	// Settings for the order workflow.
	Orders *order.Options

	// If set, diagnostic logs are written here.
	Logger *zerolog.Logger
}

func (o *Options) codec() swarm.Codec {
	if o == nil || o.Codec == nil {
		return swarm.JSON
	}
	return o.Codec
}

func (o *Options) keepAlive() time.Duration {
	if o == nil || o.KeepAlive <= 0 {
		return DefaultKeepAlive
	}
	return o.KeepAlive
}

func (o *Options) sweepInterval() time.Duration {
	if o == nil || o.SweepInterval <= 0 {
		return o.keepAlive()
	}
	return o.SweepInterval
}

func (o *Options) historyOptions() *history.Options {
	if o == nil {
		return nil
	}
	return o.History
}

func (o *Options) orderOptions() *order.Options {
	if o == nil {
		return nil
	}
	return o.Orders
}

func (o *Options) logger() *zerolog.Logger {
	var lg *zerolog.Logger
	if o != nil {
		lg = o.Logger
	}
	out := swarm.LoggerOrNop(lg).With().Str("component", "hub").Logger()
	return &out
}

// A Hub routes envelopes among the peers of a swarm.
//
// Call Start with an ingest and a broadcast channel to start the service
// routines for the hub. Once started, a hub runs until Stop is called or the
// ingest channel closes. Use Wait to wait for the hub to exit. A Hub can be
// started only once.
type Hub struct {
	codec     swarm.Codec
	keepAlive time.Duration
	sweep     time.Duration
	log       *zerolog.Logger

	history  *history.Store
	presence *presence.Tracker
	orders   *order.Workflow
	handlers *mediator.Registry[*Hub, *swarm.Envelope]
	metrics  *hubMetrics

	out struct {
		// Must hold the lock to publish to or set bc.
		sync.Mutex
		bc swarm.Broadcast
	}

	μ       sync.Mutex
	in      swarm.Ingest
	tasks   *taskgroup.Group
	stop    context.CancelFunc
	started bool
	err     error
}

// New constructs a new unstarted hub.
func New(opts *Options) *Hub {
	h := &Hub{
		codec:     opts.codec(),
		keepAlive: opts.keepAlive(),
		sweep:     opts.sweepInterval(),
		log:       opts.logger(),
		history:   history.New(opts.historyOptions()),
		orders:    order.New(opts.orderOptions()),
		handlers:  newHandlers(),
	}
	h.presence = presence.New(&presence.Options{OnEvict: h.evict})
	h.metrics = newHubMetrics(h)
	return h
}

// History returns the letter history of h.
func (h *Hub) History() *history.Store { return h.history }

// Presence returns the presence tracker of h.
func (h *Hub) Presence() *presence.Tracker { return h.presence }

// Orders returns the order workflow of h.
func (h *Hub) Orders() *order.Workflow { return h.orders }

// Metrics returns a metrics registry for the hub. It is safe for the caller
// to register additional collectors while the hub is active.
func (h *Hub) Metrics() *prometheus.Registry { return h.metrics.reg }

// Start starts the hub running on the given channels. Start does not block;
// call Wait to wait for the hub to exit. Start panics if h was already
// started.
func (h *Hub) Start(in swarm.Ingest, out swarm.Broadcast) *Hub {
	h.μ.Lock()
	defer h.μ.Unlock()
	if h.started {
		panic("hub is already started")
	}
	h.started = true
	h.in = in
	h.out.bc = out

	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	g := taskgroup.New(nil)
	h.tasks = g

	// Receive loop: one envelope at a time, in arrival order.
	g.Go(func() error {
		defer cancel()
		for {
			data, err := in.Recv()
			if err != nil {
				if !swarm.IsClosed(err) {
					h.μ.Lock()
					h.err = err
					h.μ.Unlock()
				}
				return nil
			}
			h.ingest(ctx, data)
		}
	})

	// Sweep loop: evict silent peers.
	g.Go(func() error {
		t := time.NewTicker(h.sweep)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if gone := h.presence.Sweep(h.keepAlive); len(gone) != 0 {
					h.log.Info().Strs("peers", gone).Msg("evicted stale peers")
				}
			}
		}
	})

	h.log.Info().Str("codec", h.codec.Name()).Dur("keepAlive", h.keepAlive).Msg("hub started")
	return h
}

// Stop closes the ingest channel and terminates the hub. It blocks until the
// hub has exited and returns its status.
func (h *Hub) Stop() error {
	h.μ.Lock()
	in, stop := h.in, h.stop
	h.μ.Unlock()
	if in != nil {
		in.Close()
		stop()
	}
	return h.Wait()
}

// Wait blocks until h terminates and reports the error that caused it to
// stop. If h stopped because its ingest channel closed, Wait returns nil.
// When Wait returns, the broadcast channel has been closed and no further
// orders will advance.
func (h *Hub) Wait() error {
	h.μ.Lock()
	g := h.tasks
	h.μ.Unlock()
	if g == nil {
		return nil // not running
	}
	g.Wait()

	h.orders.Close()
	h.out.Lock()
	if h.out.bc != nil {
		h.out.bc.Close()
		h.out.bc = nil
	}
	h.out.Unlock()

	h.μ.Lock()
	defer h.μ.Unlock()
	h.in = nil
	return h.err
}

// ingest processes a single encoded envelope from the ingest channel.
// Nothing a peer sends can make ingest fail: problems are logged, and the
// offending envelope is dropped.
func (h *Hub) ingest(ctx context.Context, data []byte) {
	h.metrics.received.Inc()
	env, err := swarm.DecodeEnvelope(h.codec, data)
	if err != nil {
		h.drop(dropMalformed)
		h.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropped envelope")
		return
	}
	env.AddTrace("router")
	if h.presence.Touch(env.Author) {
		h.log.Info().Str("author", env.Author).Msg("new peer")
	}
	h.publishLog(env, "info", env.Type+" was received")

	out, err := h.handlers.Dispatch(ctx, env.Type, h, env)
	if errors.Is(err, mediator.ErrUnhandledMessageType) {
		h.drop(dropUnhandled)
		h.log.Warn().Str("type", env.Type).Str("author", env.Author).Msg("unhandled envelope type")
		return
	} else if err != nil {
		h.drop(dropFailed)
		h.log.Error().Err(err).Str("type", env.Type).Str("author", env.Author).Msg("handler failed")
		return
	} else if out == nil {
		return
	}
	h.publish(out)
}

// replyTypes are the envelope types the hub produces in response to a
// request. A reply is delivered only to recipients that are present.
var replyTypes = map[string]bool{
	swarm.TypeState:        true,
	swarm.TypePeers:        true,
	swarm.TypeOrderReceipt: true,
	swarm.TypeOrderStatus:  true,
	swarm.TypeError:        true,
	swarm.TypeSwarmQuery:   true,
	swarm.TypeQueryResults: true,
}

// checkRecipients removes recipients of env that are not present. It reports
// a *StaleClientError if none remain.
func (h *Hub) checkRecipients(env *swarm.Envelope) error {
	live := slices.DeleteFunc(slices.Clone(env.Recipients), func(r string) bool {
		return !h.presence.Present(r)
	})
	if len(live) == 0 {
		return &StaleClientError{Type: env.Type, Recipients: env.Recipients}
	}
	env.Recipients = live
	return nil
}

// publish sends env to the peers on the default topic.
func (h *Hub) publish(env *swarm.Envelope) {
	if replyTypes[env.Type] {
		if err := h.checkRecipients(env); err != nil {
			h.drop(dropStale)
			h.log.Warn().Err(err).Msg("dropped reply")
			return
		}
	}
	data, err := swarm.EncodeEnvelope(h.codec, env)
	if err != nil {
		h.drop(dropFailed)
		h.log.Error().Err(err).Str("type", env.Type).Msg("encoding envelope")
		return
	}
	if h.send(swarm.TopicDefault, data) == nil {
		h.log.Debug().Str("type", env.Type).Strs("recipients", env.Recipients).Strs("trace", env.Trace).Msg("sent")
		h.publishLog(env, "info", env.Type+" was sent")
	}
}

// publishLog publishes a log record about env on the log topic.
func (h *Hub) publishLog(env *swarm.Envelope, level, text string) {
	data, err := swarm.EncodeLog(h.codec, swarm.Log{
		Name:      logName,
		Author:    env.Author,
		Timestamp: swarm.Now(),
		Level:     level,
		Text:      text,
		Trace:     env.Trace,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("encoding log record")
		return
	}
	h.send(swarm.TopicLog, data)
}

// send publishes data on the broadcast channel, and records the outcome.
func (h *Hub) send(topic swarm.Topic, data []byte) error {
	h.out.Lock()
	defer h.out.Unlock()
	if h.out.bc == nil {
		h.drop(dropClosed)
		return net.ErrClosed
	}
	err := h.out.bc.Publish(topic, data)
	switch {
	case err == nil:
		h.metrics.published.WithLabelValues(string(topic)).Inc()
	case errors.Is(err, swarm.ErrDropped):
		h.drop(dropOverflow)
	default:
		h.drop(dropFailed)
		h.log.Error().Err(err).Str("topic", string(topic)).Msg("publish failed")
	}
	return err
}

func (h *Hub) drop(reason string) { h.metrics.dropped.WithLabelValues(reason).Inc() }

// evict is called by the presence tracker for each evicted peer.
func (h *Hub) evict(author string) {
	n := h.history.Evict(author)
	h.metrics.evicted.Inc()
	h.log.Info().Str("author", author).Int("letters", n).Msg("peer evicted")
}

func (h *Hub) String() string {
	return fmt.Sprintf("Hub(peers=%d, letters=%d, orders=%d)",
		h.presence.Len(), h.history.Len(), h.orders.Len())
}
