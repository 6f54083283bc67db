// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package order implements the simulated ordering service offered by a hub.
//
// Peers place orders for coffee or chocolate. Chocolate is served as soon as
// it is ordered; coffee moves through a sequence of states on timers:
//
//	ordered -> being-prepared -> in-progress -> served
//
// Orders are retained for the lifetime of the Workflow and may be queried by
// ID at any time.
package order

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/creachadair/mds/value"
	"github.com/creachadair/swarm"
	"github.com/rs/zerolog"
)

// Item kinds accepted by Place.
const (
	KindCoffee    = "coffee"
	KindChocolate = "chocolate"

	// KindStatus is not an item, but the hub accepts it in place of an item
	// kind to query the status of existing orders.
	KindStatus = "status"
)

// A Status is the state of an order.
type Status string

// The possible states of an order.
const (
	Ordered       Status = "ordered"
	BeingPrepared Status = "being-prepared"
	InProgress    Status = "in-progress"
	Served        Status = "served"
)

// NotFound is the status reported for an ID that does not name an order.
const NotFound = "no order found"

// Unit prices by item kind.
var prices = map[string]float64{
	KindCoffee:    2.10,
	KindChocolate: 0.30,
}

var (
	coffeeNames = []string{"cappuccino", "latte", "frappe"}
	coffeeSizes = []string{"small", "regular", "large"}
	shades      = []string{"dark", "white"}
)

// An Item is the thing ordered.
type Item struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`

	// Coffee only.
	Milk bool   `json:"milk,omitempty"`
	Size string `json:"size,omitempty"`

	// Chocolate only.
	Shade string `json:"shade,omitempty"`
}

// An Order is a snapshot of an order placed with a Workflow.
type Order struct {
	ID       int     `json:"id"`
	Item     Item    `json:"item"`
	Location string  `json:"location"`
	Cost     float64 `json:"cost"`
	Payment  any     `json:"payment"`
	Status   Status  `json:"status"`
}

// Options are optional settings for a Workflow. A nil *Options is ready for
// use and provides defaults as described.
type Options struct {
	// How long a coffee spends being prepared before it is in progress.
	// If zero, 10s is used.
	PrepareDelay time.Duration

	// How long a coffee spends in progress before it is served.
	// If zero, 30s is used.
	ServeDelay time.Duration

	// If set, status transitions are logged here.
	Logger *zerolog.Logger
}

func (o *Options) prepareDelay() time.Duration {
	if o == nil || o.PrepareDelay <= 0 {
		return 10 * time.Second
	}
	return o.PrepareDelay
}

func (o *Options) serveDelay() time.Duration {
	if o == nil || o.ServeDelay <= 0 {
		return 30 * time.Second
	}
	return o.ServeDelay
}

func (o *Options) logger() *zerolog.Logger {
	var lg *zerolog.Logger
	if o != nil {
		lg = o.Logger
	}
	out := swarm.LoggerOrNop(lg)
	return &out
}

// A Workflow tracks orders and advances them through their states.
// A Workflow is safe for concurrent use by multiple goroutines.
type Workflow struct {
	prepare, serve time.Duration
	log            *zerolog.Logger

	μ      sync.Mutex
	orders map[int]*Order
	timers map[int]*time.Timer // pending transitions, by order ID
	closed bool
}

// New constructs a new Workflow with no orders.
func New(opts *Options) *Workflow {
	return &Workflow{
		prepare: opts.prepareDelay(),
		serve:   opts.serveDelay(),
		log:     opts.logger(),
		orders:  make(map[int]*Order),
		timers:  make(map[int]*time.Timer),
	}
}

// Place places an order for an item of the given kind described by args,
// and returns a snapshot of the new order. If the order is not valid, Place
// reports an error of concrete type *InvalidOrderError.
func (w *Workflow) Place(kind string, args Args) (Order, error) {
	item, err := args.item(kind)
	if err != nil {
		return Order{}, err
	}

	w.μ.Lock()
	defer w.μ.Unlock()
	if w.closed {
		return Order{}, errClosed
	}
	id := 0
	for w.orders[id] != nil {
		id++
	}
	o := &Order{
		ID:       id,
		Item:     item,
		Location: value.Cond(args.Takeaway, "takeaway", "in-house"),
		Cost:     math.Round(prices[kind]*float64(item.Quantity)*100) / 100,
		Status:   Ordered,
	}
	w.orders[id] = o

	switch kind {
	case KindChocolate:
		o.Status = Served // self-serve
		return *o, nil

	case KindCoffee:
		snap := *o
		o.Status = BeingPrepared
		w.timers[id] = time.AfterFunc(w.prepare, func() {
			w.advance(id, BeingPrepared, InProgress, w.serve)
		})
		return snap, nil
	}
	panic("unreachable")
}

// advance moves order id from status from to status to if it is still
// pending. If next > 0, it schedules the following transition.
func (w *Workflow) advance(id int, from, to Status, next time.Duration) {
	w.μ.Lock()
	defer w.μ.Unlock()
	o := w.orders[id]
	if w.closed || o == nil || o.Status != from {
		return
	}
	o.Status = to
	w.log.Debug().Int("id", id).Str("status", string(to)).Msg("order status changed")
	if next > 0 {
		w.timers[id] = time.AfterFunc(next, func() {
			w.advance(id, InProgress, Served, 0)
		})
	} else {
		delete(w.timers, id)
	}
}

// Get returns a snapshot of the order with the given ID, and reports whether
// it exists.
func (w *Workflow) Get(id int) (Order, bool) {
	w.μ.Lock()
	defer w.μ.Unlock()
	if o := w.orders[id]; o != nil {
		return *o, true
	}
	return Order{}, false
}

// Len reports the number of orders that have been placed.
func (w *Workflow) Len() int {
	w.μ.Lock()
	defer w.μ.Unlock()
	return len(w.orders)
}

// Status returns a map from each of the given order IDs to the current status
// of that order. An ID that does not name an order maps to NotFound. If no
// IDs are given, Status reports all orders.
func (w *Workflow) Status(ids ...string) map[string]string {
	w.μ.Lock()
	defer w.μ.Unlock()

	out := make(map[string]string)
	if len(ids) == 0 {
		for id, o := range w.orders {
			out[strconv.Itoa(id)] = string(o.Status)
		}
		return out
	}
	for _, s := range ids {
		out[s] = NotFound
		if id, err := strconv.Atoi(s); err == nil {
			if o := w.orders[id]; o != nil {
				out[s] = string(o.Status)
			}
		}
	}
	return out
}

// Close stops all pending transitions. Orders placed before Close remain in
// whatever state they had reached. After Close, Place reports an error.
func (w *Workflow) Close() {
	w.μ.Lock()
	defer w.μ.Unlock()
	w.closed = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

var errClosed = errors.New("order workflow is closed")

// ErrInvalidOrder is matched by errors reported for orders that cannot be
// filled. Use errors.Is to check for it.
var ErrInvalidOrder = errors.New("invalid order")

// InvalidOrderError is the concrete type of errors reported for orders that
// cannot be filled.
type InvalidOrderError struct {
	Message string
}

// Error satisfies the error interface.
func (e *InvalidOrderError) Error() string { return e.Message }

// Is reports whether target is ErrInvalidOrder.
func (e *InvalidOrderError) Is(target error) bool { return target == ErrInvalidOrder }

func invalidf(msg string, args ...any) error {
	return &InvalidOrderError{Message: fmt.Sprintf(msg, args...)}
}

// item validates a and constructs the item it describes.
func (a Args) item(kind string) (Item, error) {
	qty := value.Cond(a.Quantity == 0, 1, a.Quantity)
	if qty < 1 {
		return Item{}, invalidf("Sorry, we can't make %d of anything", qty)
	}
	switch kind {
	case KindCoffee:
		if !slices.Contains(coffeeNames, a.Name) {
			return Item{}, invalidf("Sorry, we don't have %q", a.Name)
		}
		size := value.Cond(a.Size == "", "regular", a.Size)
		if !slices.Contains(coffeeSizes, size) {
			return Item{}, invalidf("Sorry, we can't make the size %q", size)
		}
		return Item{Type: kind, Name: a.Name, Quantity: qty, Milk: a.Milk, Size: size}, nil

	case KindChocolate:
		shade := value.Cond(a.Shade == "", "dark", a.Shade)
		if !slices.Contains(shades, shade) {
			return Item{}, invalidf("Sorry, we don't have %q chocolate", shade)
		}
		name := value.Cond(a.Name == "", KindChocolate, a.Name)
		return Item{Type: kind, Name: name, Quantity: qty, Shade: shade}, nil
	}
	return Item{}, invalidf("Could not order %q", kind)
}
