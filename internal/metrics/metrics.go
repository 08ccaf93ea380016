// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SendsTotal counts individual message sends by outcome
	// (success, failure, rejected).
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devbot_sends_total",
		Help: "Message send attempts by outcome.",
	}, []string{"outcome"})

	// ReconnectsTotal counts session reconnections by kind
	// (soft, repair, forced).
	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devbot_reconnects_total",
		Help: "Session reconnections by kind.",
	}, []string{"kind"})

	// DeliveryAttemptsTotal counts scheduled delivery attempts by outcome.
	DeliveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devbot_delivery_attempts_total",
		Help: "Scheduled delivery attempts by outcome.",
	}, []string{"outcome"})

	// ConnectionState is 1 while the transport session is open, 0 otherwise.
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devbot_connection_open",
		Help: "Whether the transport session is open.",
	})
)
