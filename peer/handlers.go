// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package peer

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/mds/value"
	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/history"
	"github.com/creachadair/swarm/mediator"
	"github.com/creachadair/swarm/order"
)

// Names of the queries a peer answers.
const (
	QueryStats    = "stats"
	QueryMood     = "mood"
	QueryService  = "service"
	QueryServices = "services"
	QueryStatus   = "status"

	// QueryInvalid is the name of the results for a query the peer does not
	// know how to answer.
	QueryInvalid = "invalid"
)

// newHandlers constructs the table of envelope types a peer receives.
func newHandlers() *mediator.Registry[*Client, *swarm.Envelope] {
	return mediator.New[*Client, *swarm.Envelope]().
		Handle(swarm.TypeLetter, handleLetter).
		Handle(swarm.TypeInvitation, handleInvitation).
		Handle(swarm.TypeState, mediator.PayloadFunc(handleState)).
		Handle(swarm.TypePeers, mediator.PayloadFunc(handlePeers)).
		Handle(swarm.TypeOrderReceipt, mediator.PayloadFunc(handleOrderReceipt)).
		Handle(swarm.TypeOrderStatus, mediator.PayloadFunc(handleOrderStatus)).
		Handle(swarm.TypeError, handleError).
		Handle(swarm.TypeSwarmQuery, mediator.Payload(handleSwarmQuery)).
		Handle(swarm.TypeQueryResults, mediator.PayloadFunc(handleQueryResults))
}

// FormatLetter renders a letter for display.
func FormatLetter(env *swarm.Envelope) string {
	return fmt.Sprintf("%s: %v", env.Author, env.Payload)
}

// handleLetter shows a letter from another peer, and remembers its author
// as someone to talk to.
func handleLetter(_ context.Context, c *Client, env *swarm.Envelope) (*swarm.Envelope, error) {
	c.addPeers(env.Author)
	if env.Author != c.name {
		c.display.Remote(FormatLetter(env))
	}
	return nil, nil
}

func handleInvitation(_ context.Context, c *Client, env *swarm.Envelope) (*swarm.Envelope, error) {
	if env.Author == c.name {
		return nil, nil // our own invitation
	}
	c.addPeers(env.Author)
	c.display.Remote(env.Author + " invited you")
	return nil, nil
}

// handleState replays letters from history, oldest first. Only letters
// addressed to this peer are shown.
func handleState(_ context.Context, c *Client, state map[string]*swarm.Envelope) error {
	first := true
	for _, env := range history.Replay(state) {
		if !env.AddressedTo(c.name) {
			continue
		}
		if !first && c.replayDelay > 0 {
			time.Sleep(c.replayDelay)
		}
		first = false
		c.display.Remote(FormatLetter(env))
	}
	return nil
}

func handlePeers(_ context.Context, c *Client, peers []string) error {
	c.display.Remote(formatList("All peers:", peers))
	return nil
}

func handleOrderReceipt(_ context.Context, c *Client, o order.Order) error {
	c.display.Remote("Your receipt:\n" + formatOrder(o))
	return nil
}

func handleOrderStatus(_ context.Context, c *Client, status map[string]string) error {
	ids := make([]string, 0, len(status))
	for id := range status {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)

	var sb strings.Builder
	sb.WriteString("Status:")
	for _, id := range ids {
		fmt.Fprintf(&sb, "\n  %s: %s", id, status[id])
	}
	c.display.Remote(sb.String())
	return nil
}

func handleError(_ context.Context, c *Client, env *swarm.Envelope) (*swarm.Envelope, error) {
	c.display.Remote(fmt.Sprint(env.Payload))
	return nil, nil
}

// handleSwarmQuery answers a query from another peer.
func handleSwarmQuery(ctx context.Context, c *Client, q swarm.Query) (*swarm.Envelope, error) {
	env := mediator.ContextEnvelope(ctx)
	c.display.Remote(fmt.Sprintf("- %s is asking about you", q.Questioner))

	var res swarm.QueryResults
	switch q.Name {
	case QueryStats:
		res = q.Reply(c.name, localStats())
	case QueryMood:
		res = q.Reply(c.name, "happy")
	case QueryService:
		res = q.Reply(c.name, "Performed service")
	case QueryServices:
		res = q.Reply(c.name, value.Cond(c.services == nil, []string{}, c.services))
	case QueryStatus:
		res = q.Reply(c.name, "alive")
	default:
		res = q.Reply(c.name, q.Name)
		res.Name = QueryInvalid
	}
	return &swarm.Envelope{
		Type:    swarm.TypePeerResults,
		Payload: res,
		Trace:   append(slices.Clone(env.Trace), fmt.Sprintf("peer.query<%s>", q.Name)),
	}, nil
}

// handleQueryResults shows the answer to a query this peer asked.
func handleQueryResults(_ context.Context, c *Client, res swarm.QueryResults) error {
	c.display.Remote(FormatResults(res))
	return nil
}

// FormatResults renders query results for display.
func FormatResults(res swarm.QueryResults) string {
	switch res.Name {
	case QueryStats:
		stats, _ := res.Payload.(map[string]any)
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s <statistics>:", res.Peer)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n    %s: %v", k, stats[k])
		}
		return sb.String()

	case QueryMood, QueryService, QueryStatus:
		return fmt.Sprint(res.Payload)

	case QueryServices:
		services, _ := res.Payload.([]any)
		if len(services) == 0 {
			return res.Peer + " did not provide any services."
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s <services>:", res.Peer)
		for _, s := range services {
			fmt.Fprintf(&sb, "\n    %v", s)
		}
		return sb.String()

	case QueryInvalid:
		return fmt.Sprintf("%s didn't know how to answer %q", res.Peer, fmt.Sprint(res.Payload))
	}
	return fmt.Sprintf("Got results for %s from %s, but don't know what for.", res.Name, res.Peer)
}

// localStats reports statistics about the running process.
func localStats() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return map[string]any{
		"cpus":       runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"memory_mb":  ms.Sys >> 20,
		"go":         runtime.Version(),
	}
}

func formatList(title string, names []string) string {
	var sb strings.Builder
	sb.WriteString(title)
	for _, name := range names {
		sb.WriteString("\n    " + name)
	}
	return sb.String()
}

func formatOrder(o order.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  id: %d\n", o.ID)
	fmt.Fprintf(&sb, "  item: %d %s", o.Item.Quantity, o.Item.Name)
	switch o.Item.Type {
	case order.KindCoffee:
		fmt.Fprintf(&sb, " (%s%s)", o.Item.Size, value.Cond(o.Item.Milk, ", milk", ""))
	case order.KindChocolate:
		fmt.Fprintf(&sb, " (%s)", o.Item.Shade)
	}
	fmt.Fprintf(&sb, "\n  location: %s\n", o.Location)
	fmt.Fprintf(&sb, "  cost: %.2f\n", o.Cost)
	fmt.Fprintf(&sb, "  status: %s", o.Status)
	return sb.String()
}

// compareIDs orders order IDs numerically when possible.
func compareIDs(a, b string) int {
	x, xerr := strconv.Atoi(a)
	y, yerr := strconv.Atoi(b)
	if xerr == nil && yerr == nil {
		return cmp.Compare(x, y)
	}
	return cmp.Compare(a, b)
}
