// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package hub

import "github.com/prometheus/client_golang/prometheus"

// Reasons an envelope may be dropped, used as the "reason" label of the
// dropped counter.
const (
	dropMalformed = "malformed" // could not be decoded
	dropUnhandled = "unhandled" // no handler for its type
	dropFailed    = "failed"    // the handler reported an error
	dropStale     = "stale"     // no recipient is present
	dropOverflow  = "overflow"  // the broadcast channel was full
	dropClosed    = "closed"    // the broadcast channel was closed
)

// hubMetrics record hub activity counters.
type hubMetrics struct {
	received  prometheus.Counter
	published *prometheus.CounterVec // by topic
	dropped   *prometheus.CounterVec // by reason
	orders    prometheus.Counter     // orders successfully placed
	evicted   prometheus.Counter     // peers evicted by a sweep

	reg *prometheus.Registry
}

func newHubMetrics(h *Hub) *hubMetrics {
	m := &hubMetrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "envelopes_received_total",
			Help:      "Number of envelopes read from the ingest channel.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "envelopes_published_total",
			Help:      "Number of messages published on the broadcast channel.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "envelopes_dropped_total",
			Help:      "Number of envelopes discarded by the hub.",
		}, []string{"reason"}),
		orders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "orders_placed_total",
			Help:      "Number of orders accepted.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "peers_evicted_total",
			Help:      "Number of peers evicted for inactivity.",
		}),
		reg: prometheus.NewRegistry(),
	}
	m.reg.MustRegister(
		m.received, m.published, m.dropped, m.orders, m.evicted,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "peers_present",
			Help:      "Number of peers currently present.",
		}, func() float64 { return float64(h.presence.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "history_entries",
			Help:      "Number of letters retained in history.",
		}, func() float64 { return float64(h.history.Len()) }),
	)
	return m
}
