// Package metrics wires the Prometheus counters the operators watch: booking
// volume, transition churn, payout outcomes, webhook traffic, sweep results.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachbook_bookings_created_total",
		Help: "Bookings created, by type and dedup outcome.",
	}, []string{"type", "outcome"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachbook_state_transitions_total",
		Help: "State transitions applied, by field and new value.",
	}, []string{"field", "to"})

	Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachbook_payouts_total",
		Help: "Payout guard invocations, by result.",
	}, []string{"result"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachbook_webhook_events_total",
		Help: "Provider webhook deliveries, by kind and result.",
	}, []string{"kind", "result"})

	SweepProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachbook_sweep_processed_total",
		Help: "Bookings processed by the auto-resolution sweep, by pass and result.",
	}, []string{"pass", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coachbook_http_requests_total",
		Help: "HTTP requests, by method, path and status.",
	}, []string{"method", "path", "status"})
)
