// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package swarm defines the envelope protocol of a swarm: a group of peers
// that talk to one another through a central hub.
//
// Peers never talk to each other directly. Each peer pushes envelopes to the
// hub over a many-to-one ingest channel, and the hub publishes envelopes to
// all peers over a one-to-many broadcast channel. Each peer keeps only the
// envelopes addressed to it.
//
// # Envelopes
//
// The unit of communication is the [Envelope]:
//
//	env := &swarm.Envelope{
//	   Author:     "alice",
//	   Recipients: []string{"bob"},
//	   Type:       swarm.TypeLetter,
//	   Payload:    "hello",
//	   Timestamp:  swarm.Now(),
//	}
//
// Envelopes are encoded with a [Codec]. The [JSON] codec is the default, and
// the [MsgPack] codec is a more compact alternative. Use [EncodeEnvelope] and
// [DecodeEnvelope] to convert envelopes for the wire; the latter reports an
// error of concrete type [*MalformedEnvelopeError] for input that is not an
// envelope.
//
// Payloads arrive from the wire as generic values. Use [Envelope.DecodePayload]
// to convert a payload to a concrete type:
//
//	var q swarm.Query
//	if err := env.DecodePayload(&q); err != nil {
//	   return err
//	}
//
// # Channels
//
// The [Ingest] and [Broadcast] interfaces are the hub ends of the channels,
// and the [Pusher] and [Subscription] interfaces are the peer ends. The
// broadcast channel is divided into topics: protocol envelopes use
// [TopicDefault], and the hub publishes diagnostic [Log] records on
// [TopicLog].
//
// The transport packages provide implementations of these interfaces over
// memory, ZeroMQ sockets, and NATS subjects.
//
// # Hub and Peers
//
// The hub package implements the router, and the peer package implements a
// participant. The swarmtest package wires a hub and any number of peers
// together in memory, for testing.
package swarm
