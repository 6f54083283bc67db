// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/creachadair/swarm"
	swarmnats "github.com/creachadair/swarm/transport/nats"
	"github.com/creachadair/swarm/transport/zmq"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// hubEnds are the hub ends of the swarm channels.
type hubEnds struct {
	ingest    swarm.Ingest
	broadcast swarm.Broadcast
	close     func()
}

// peerEnds are the peer ends of the swarm channels. The pusher is nil for
// a receive-only peer.
type peerEnds struct {
	pusher swarm.Pusher
	sub    swarm.Subscription
	close  func()
}

func connectNATS(name string) (*swarmnats.Transport, *nats.Conn, error) {
	nc, err := nats.Connect(netFlags.NATS, nats.Name(name))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %q: %w", netFlags.NATS, err)
	}
	return swarmnats.New(nc, netFlags.Prefix, 0), nc, nil
}

// listenHub opens the hub ends of the channels on the selected transport.
func listenHub(lg *zerolog.Logger) (*hubEnds, error) {
	switch netFlags.Transport {
	case "zmq":
		in, err := zmq.ListenIngest(hubFlags.Ingest, nil)
		if err != nil {
			return nil, err
		}
		out, err := zmq.ListenBroadcast(hubFlags.Broadcast, nil)
		if err != nil {
			in.Close()
			return nil, err
		}
		lg.Info().Str("ingest", in.Addr()).Str("broadcast", out.Addr()).Msg("listening")
		return &hubEnds{ingest: in, broadcast: out, close: func() {}}, nil

	case "nats":
		t, nc, err := connectNATS("swarm-hub")
		if err != nil {
			return nil, err
		}
		in, err := t.Ingest()
		if err != nil {
			nc.Close()
			return nil, err
		}
		lg.Info().Str("server", nc.ConnectedUrl()).Str("prefix", netFlags.Prefix).Msg("connected")
		return &hubEnds{ingest: in, broadcast: t.Broadcast(), close: nc.Close}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", netFlags.Transport)
}

// dialPeer opens the peer ends of the channels on the selected transport,
// subscribed to the given topics. If ingestAddr is empty and the transport
// is zmq, no pusher is opened.
func dialPeer(ingestAddr, broadcastAddr string, topics ...swarm.Topic) (*peerEnds, error) {
	switch netFlags.Transport {
	case "zmq":
		sub, err := zmq.DialBroadcast(broadcastAddr, nil, topics...)
		if err != nil {
			return nil, err
		}
		ep := &peerEnds{sub: sub, close: func() {}}
		if ingestAddr != "" {
			p, err := zmq.DialIngest(ingestAddr, nil)
			if err != nil {
				sub.Close()
				return nil, err
			}
			ep.pusher = p
		}
		return ep, nil

	case "nats":
		t, nc, err := connectNATS("swarm-peer")
		if err != nil {
			return nil, err
		}
		sub, err := t.Subscribe(topics...)
		if err != nil {
			nc.Close()
			return nil, err
		}
		return &peerEnds{pusher: t.Pusher(), sub: sub, close: nc.Close}, nil
	}
	return nil, errors.New("unknown transport " + netFlags.Transport)
}
