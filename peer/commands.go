// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package peer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/mediator"
	"github.com/google/uuid"
)

// newCommands constructs the table of commands a peer accepts from its user.
// Each command produces at most one envelope for the hub.
func newCommands() *mediator.Registry[*Client, []string] {
	return mediator.New[*Client, []string]().
		Handle("say", cmdSay).
		Handle("invite", cmdInvite).
		Handle("order", cmdOrder).
		Handle("state", cmdState).
		Handle("peers", cmdPeers).
		Handle("peer", cmdPeer).
		Handle("wait", cmdWait)
}

// Commands returns the names of the commands c accepts, in sorted order.
func (c *Client) Commands() []string { return c.commands.Tags() }

// Command interprets a command line typed by the user, and sends the
// resulting envelope, if any, to the hub. An empty line is ignored.
//
// A command that cannot be interpreted is reported as an error of concrete
// type *CommandError, and nothing is sent.
func (c *Client) Command(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	out, err := c.commands.Dispatch(ctx, args[0], c, args[1:])
	if errors.Is(err, mediator.ErrUnhandledMessageType) {
		return &CommandError{Command: args[0], Message: "unknown command"}
	} else if err != nil {
		return err
	} else if out == nil {
		return nil
	}
	return c.Send(out)
}

func cmdSay(_ context.Context, c *Client, args []string) (*swarm.Envelope, error) {
	if len(args) == 0 {
		return nil, &CommandError{Command: "say", Message: "say what?"}
	}
	return &swarm.Envelope{
		Type:       swarm.TypeLetter,
		Recipients: c.Peers(),
		Payload:    strings.Join(args, " "),
		Trace:      []string{"peer.command<say>"},
	}, nil
}

func cmdInvite(_ context.Context, c *Client, args []string) (*swarm.Envelope, error) {
	if len(args) == 0 {
		return nil, &CommandError{Command: "invite", Message: "invite whom?"}
	}
	c.addPeers(args...)
	return &swarm.Envelope{
		Type:    swarm.TypeInvitation,
		Payload: args,
		Trace:   []string{"peer.command<invite>"},
	}, nil
}

func cmdOrder(_ context.Context, _ *Client, args []string) (*swarm.Envelope, error) {
	if len(args) == 0 {
		return nil, &CommandError{Command: "order", Message: "order what?"}
	}
	return &swarm.Envelope{
		Type:    swarm.TypeOrderPlacement,
		Payload: args,
		Trace:   []string{"peer.command<order>"},
	}, nil
}

// cmdState requests the letters of the named authors. With no arguments, it
// requests the letters of this peer and the peers it talks to.
func cmdState(_ context.Context, c *Client, args []string) (*swarm.Envelope, error) {
	if len(args) == 0 {
		args = append([]string{c.name}, c.Peers()...)
	}
	return &swarm.Envelope{
		Type:    swarm.TypeStateQuery,
		Payload: args,
		Trace:   []string{"peer.command<state>"},
	}, nil
}

// cmdPeers shows the peers this peer talks to. With the argument "all", it
// asks the hub for every peer present in the swarm.
func cmdPeers(_ context.Context, c *Client, args []string) (*swarm.Envelope, error) {
	switch {
	case len(args) == 0:
		c.display.Local(formatList("Invited peers:", c.Peers()))
		return nil, nil
	case len(args) == 1 && args[0] == "all":
		return &swarm.Envelope{
			Type:  swarm.TypePeersQuery,
			Trace: []string{"peer.command<peers>"},
		}, nil
	}
	return nil, &CommandError{Command: "peers", Message: "usage: peers [all]"}
}

// cmdPeer asks another peer a question: peer <name> <query> [args...].
func cmdPeer(_ context.Context, c *Client, args []string) (*swarm.Envelope, error) {
	if len(args) < 2 {
		return nil, &CommandError{Command: "peer", Message: "query not formatted correctly"}
	}
	return &swarm.Envelope{
		Type: swarm.TypePeerQuery,
		Payload: swarm.PeerQuery{
			Peers: []string{args[0]},
			Query: swarm.Query{
				ID:         uuid.NewString(),
				Name:       args[1],
				Questioner: c.name,
				Payload:    args[2:],
			},
		},
		Trace: []string{"peer.command<peer>"},
	}, nil
}

// cmdWait pauses for a number of seconds or a duration such as "1.5s", so
// that scripted input can give the swarm time to answer.
func cmdWait(ctx context.Context, _ *Client, args []string) (*swarm.Envelope, error) {
	if len(args) != 1 {
		return nil, &CommandError{Command: "wait", Message: "usage: wait <seconds>"}
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		sec, serr := strconv.ParseFloat(args[0], 64)
		if serr != nil || sec < 0 {
			return nil, &CommandError{Command: "wait", Message: "invalid duration " + strconv.Quote(args[0])}
		}
		d = time.Duration(sec * float64(time.Second))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	}
}
