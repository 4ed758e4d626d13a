package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvoicesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_invoices_created_total",
		Help: "Total number of invoices created, labelled by provider and source.",
	}, []string{"provider", "source"})

	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_payment_transitions_total",
		Help: "Total number of persisted payment status transitions, labelled by new status and source.",
	}, []string{"status", "source"})

	ReconcileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_reconcile_errors_total",
		Help: "Total number of provider status queries that failed, labelled by source.",
	}, []string{"source"})

	ReconcileSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "satsfox_reconcile_sweep_duration_ms",
		Help:    "Duration of one reconciliation sweep in milliseconds.",
		Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_events_broadcast_total",
		Help: "Total number of pay events broadcast, labelled by type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_events_dropped_total",
		Help: "Total number of pay events dropped for a slow subscriber.",
	}, []string{"subscriber"})

	ListenerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_listener_failures_total",
		Help: "Total number of event listener errors or panics.",
	}, []string{"subscriber"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "satsfox_event_subscribers",
		Help: "Current number of event hub subscribers.",
	})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_webhooks_received_total",
		Help: "Total number of provider webhooks, labelled by provider and outcome.",
	}, []string{"provider", "outcome"})

	LnurlAuthResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_lnurl_auth_results_total",
		Help: "LNURL-auth verification results, labelled by status and reason.",
	}, []string{"status", "reason"})

	LnurlWithdrawResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsfox_lnurl_withdraw_results_total",
		Help: "LNURL-withdraw settlement results, labelled by status and reason.",
	}, []string{"status", "reason"})
)
