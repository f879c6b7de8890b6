package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "immigration_helper"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and charged usage type",
		},
		[]string{"method", "route", "usage_type", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route", "usage_type"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Quota metrics (no user label to avoid cardinality)
var (
	QuotaDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Gate decisions for authenticated callers",
		},
		[]string{"usage_type", "tier", "outcome"}, // outcome: allowed or the deny reason
	)

	AnonymousDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anonymous_decisions_total",
			Help:      "Gate decisions for anonymous callers",
		},
		[]string{"usage_type", "outcome"},
	)

	UsageRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_recorded_total",
			Help:      "Usage records committed after a successful guarded request",
		},
		[]string{"usage_type"},
	)

	QuotaFailOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_fail_open_total",
			Help:      "Requests allowed because quota state could not be read",
		},
		[]string{"usage_type"},
	)

	QuotaCommitFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_commit_failures_total",
			Help:      "Usage or anonymous counter commits that failed after a successful request",
		},
		[]string{"usage_type", "caller"}, // caller: "user" or "anonymous"
	)

	AnonymousCommitsRefusedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anonymous_commits_refused_total",
			Help:      "Anonymous requests served after concurrent requests used up the limit",
		},
		[]string{"usage_type"},
	)
)

// Subscription and retention metrics
var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stripe_webhook_events_total",
			Help:      "Stripe webhook events by type and result",
		},
		[]string{"type", "result"},
	)

	UsageRecordsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_pruned_total",
			Help:      "Usage records deleted by retention pruning",
		},
	)
)
