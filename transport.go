// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package swarm

import (
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"
)

// An Ingest is the hub end of the many-to-one ingest channel. Messages from
// a single sender are received in the order sent.
//
// Recv must be safe for use by one receiver concurrently with Close.
type Ingest interface {
	// Recv blocks until the next encoded envelope is available.
	// After Close it reports net.ErrClosed.
	Recv() ([]byte, error)

	Close() error
}

// A Broadcast is the hub end of the one-to-many broadcast channel.
type Broadcast interface {
	// Publish sends data to all subscribers of topic. Publish must not block
	// indefinitely: if the channel cannot accept the message it is dropped,
	// and Publish reports ErrDropped.
	Publish(topic Topic, data []byte) error

	Close() error
}

// A Pusher is the peer end of the ingest channel.
type Pusher interface {
	Push(data []byte) error
	Close() error
}

// A Subscription is the peer end of the broadcast channel. It delivers only
// messages for the topics it was subscribed to.
type Subscription interface {
	// Recv blocks until the next message is available.
	// After Close it reports net.ErrClosed.
	Recv() (Topic, []byte, error)

	Close() error
}

// ErrDropped is reported by a Broadcast when a message could not be queued
// for delivery.
var ErrDropped = errors.New("message dropped")

// IsClosed reports whether err indicates that a channel was closed, which is
// the normal way for a receive loop to end.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// LoggerOrNop returns *lg, or a disabled logger if lg == nil.
func LoggerOrNop(lg *zerolog.Logger) zerolog.Logger {
	if lg == nil {
		return zerolog.Nop()
	}
	return *lg
}
