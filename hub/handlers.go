// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/history"
	"github.com/creachadair/swarm/mediator"
	"github.com/creachadair/swarm/order"
)

// newHandlers constructs the table of envelope types the hub consumes.
func newHandlers() *mediator.Registry[*Hub, *swarm.Envelope] {
	return mediator.New[*Hub, *swarm.Envelope]().
		Handle(swarm.TypeLetter, handleLetter).
		Handle(swarm.TypeInvitation, mediator.Payload(handleInvitation)).
		Handle(swarm.TypeStateQuery, mediator.Payload(handleStateQuery)).
		Handle(swarm.TypePeersQuery, handlePeersQuery).
		Handle(swarm.TypeOrderPlacement, mediator.Payload(handleOrderPlacement)).
		Handle(swarm.TypePeerQuery, mediator.Payload(handlePeerQuery)).
		Handle(swarm.TypePeerResults, mediator.Payload(handlePeerResults)).
		Handle(swarm.TypeHeartbeat, handleHeartbeat)
}

// reply constructs an envelope of the given type on behalf of the author of
// req, continuing its trace.
func reply(req *swarm.Envelope, typ string, recipients []string, payload any, step string) *swarm.Envelope {
	return &swarm.Envelope{
		Author:     req.Author,
		Recipients: recipients,
		Type:       typ,
		Payload:    payload,
		Timestamp:  swarm.Now(),
		Trace:      append(slices.Clone(req.Trace), step),
	}
}

// handleLetter files a letter in history and forwards it to its recipients
// and its author.
func handleLetter(_ context.Context, h *Hub, env *swarm.Envelope) (*swarm.Envelope, error) {
	env.AddTrace("hub.letter")
	if !slices.Contains(env.Recipients, env.Author) {
		env.Recipients = append(env.Recipients, env.Author)
	}
	key := h.history.Append(env.Author, env.Timestamp, env)
	h.log.Debug().Str("author", env.Author).Str("key", history.FormatKey(key)).Msg("letter filed")
	return env, nil
}

// handleInvitation adds the invitees to the roster and forwards the
// invitation to them.
func handleInvitation(ctx context.Context, h *Hub, invitees []string) (*swarm.Envelope, error) {
	env := mediator.ContextEnvelope(ctx)
	h.presence.Add(invitees...)
	h.log.Info().Str("author", env.Author).Strs("invitees", invitees).Msg("invitation")

	out := reply(env, swarm.TypeInvitation, invitees, invitees, "hub.invitation")
	out.Timestamp = env.Timestamp
	return out, nil
}

// handleStateQuery replies with the letters of the requested authors.
func handleStateQuery(ctx context.Context, h *Hub, authors []string) (*swarm.Envelope, error) {
	env := mediator.ContextEnvelope(ctx)
	var entries []history.Entry
	if len(authors) != 0 {
		entries = h.history.Query(authors...)
	}
	return reply(env, swarm.TypeState, []string{env.Author}, history.State(entries), "hub.stateQuery"), nil
}

// handlePeersQuery replies with the names of the present peers.
func handlePeersQuery(_ context.Context, h *Hub, env *swarm.Envelope) (*swarm.Envelope, error) {
	return reply(env, swarm.TypePeers, []string{env.Author}, h.presence.Peers(), "hub.peersQuery"), nil
}

// handleOrderPlacement places an order, or reports the status of orders.
// The payload is a command line: an item kind followed by its arguments.
func handleOrderPlacement(ctx context.Context, h *Hub, argv []string) (*swarm.Envelope, error) {
	env := mediator.ContextEnvelope(ctx)
	kind, args := "", argv
	if len(argv) != 0 {
		kind, args = argv[0], argv[1:]
	}
	to := []string{env.Author}
	step := fmt.Sprintf("hub.orderPlacement<%s>", kind)

	if kind == order.KindStatus {
		return reply(env, swarm.TypeOrderStatus, to, h.orders.Status(args...), step), nil
	}

	o, err := placeOrder(h.orders, kind, args)
	if err != nil {
		if !errors.Is(err, order.ErrInvalidOrder) {
			h.log.Error().Err(err).Str("author", env.Author).Msg("order failed")
		}
		return reply(env, swarm.TypeError, to, err.Error(), step), nil
	}
	h.metrics.orders.Inc()
	h.log.Info().Str("author", env.Author).Int("id", o.ID).Str("item", o.Item.Name).Msg("order placed")
	return reply(env, swarm.TypeOrderReceipt, to, o, step), nil
}

func placeOrder(w *order.Workflow, kind string, argv []string) (order.Order, error) {
	args, err := order.ParseArgs(kind, argv)
	if err != nil {
		return order.Order{}, err
	}
	return w.Place(kind, args)
}

// handlePeerQuery forwards a query to the peers it names.
func handlePeerQuery(ctx context.Context, h *Hub, pq swarm.PeerQuery) (*swarm.Envelope, error) {
	env := mediator.ContextEnvelope(ctx)
	q := pq.Query
	q.Questioner = env.Author
	return reply(env, swarm.TypeSwarmQuery, pq.Peers, q, "hub.peerQuery"), nil
}

// handlePeerResults forwards the answer to a query back to the questioner.
func handlePeerResults(ctx context.Context, h *Hub, res swarm.QueryResults) (*swarm.Envelope, error) {
	env := mediator.ContextEnvelope(ctx)
	res.Peer = env.Author
	return reply(env, swarm.TypeQueryResults, []string{res.Questioner}, res, "hub.peerResults"), nil
}

// handleHeartbeat has nothing to do: every envelope refreshes the presence of
// its author on arrival.
func handleHeartbeat(context.Context, *Hub, *swarm.Envelope) (*swarm.Envelope, error) {
	return nil, nil
}
