// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks live websocket connections by principal class.
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active websocket connections",
		},
		[]string{"class"},
	)

	// MessagesTotal tracks persisted messages by immediate delivery outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"delivery"},
	)

	// TransitionsTotal tracks conversation lifecycle transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_transitions_total",
			Help: "Total conversation status transitions",
		},
		[]string{"to"},
	)

	// CapacityRejections counts accepts refused by the admission check.
	CapacityRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_rejections_total",
			Help: "Accept attempts refused because the responder was at capacity",
		},
	)

	// RespondersByStatus tracks responder presence as seen by the tracker.
	RespondersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "responders_by_status",
			Help: "Responders per presence status",
		},
		[]string{"status"},
	)
)
