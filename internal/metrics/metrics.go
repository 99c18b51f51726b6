// Package metrics holds the Prometheus collectors shared by the server,
// the workers and the CLI.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "moneyflow"

// RecurringRuns counts RunDueRules calls by scope kind and result.
var RecurringRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "runs_total",
	Help:      "Recurring rule runs by scope (all, owner) and result (ok, error).",
}, []string{"scope", "result"})

// RecurringOutcomes counts per-rule outcomes.
var RecurringOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "rule_outcomes_total",
	Help:      "Per-rule outcomes of recurring runs (generated, skipped, duplicate, failed).",
}, []string{"status"})

var RecurringRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "run_duration_seconds",
	Help:      "Wall time of one recurring run.",
	Buckets:   prometheus.DefBuckets,
})

// RecurringCollapsed counts runs that joined an in-flight run for the same scope.
var RecurringCollapsed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "collapsed_runs_total",
	Help:      "Runs served by an already in-flight run for the same scope.",
})

var BalanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "balance",
	Name:      "compute_duration_seconds",
	Help:      "Time to derive one account balance from the ledger.",
	Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
})

var LedgerEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Ledger events handed to the broker, by event and result.",
}, []string{"event", "result"})

var ExportProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "export",
	Name:      "processed_total",
	Help:      "Ledger events processed by the export worker, by result (exported, skipped, error).",
}, []string{"result"})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route pattern, method and status code.",
}, []string{"route", "method", "code"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})
