package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jakechorley/live-schedule/pkg/core/scheduler"
)

var (
	// GenerationRuns counts generation runs by result (ok, cancelled, locked, error).
	GenerationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_schedule_generation_runs_total",
		Help: "Total number of schedule generation runs by result",
	}, []string{"result"})

	// GenerationDuration records how long generation runs take.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_schedule_generation_duration_seconds",
		Help:    "Schedule generation run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// AccountOutcomes counts processed accounts by outcome kind.
	AccountOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_schedule_account_outcomes_total",
		Help: "Total number of accounts processed by outcome",
	}, []string{"outcome"})

	// SlotOutcomes counts slots by outcome kind.
	SlotOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_schedule_slot_outcomes_total",
		Help: "Total number of slots by outcome",
	}, []string{"outcome"})

	// CohostsAssigned counts co-hosts attached to schedule rows.
	CohostsAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_schedule_cohosts_assigned_total",
		Help: "Total number of co-hosts assigned",
	})

	// HTTPRequests counts API requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_schedule_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration records API latency by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "live_schedule_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Run results used as the GenerationRuns label
const (
	ResultOK        = "ok"
	ResultCancelled = "cancelled"
	ResultLocked    = "locked"
	ResultError     = "error"
)

// RecordSummary adds a finished run's counts to the generation metrics
func RecordSummary(summary *scheduler.Summary) {
	if summary == nil {
		return
	}

	for _, account := range summary.Accounts {
		AccountOutcomes.WithLabelValues(string(account.Kind)).Inc()
	}
	SlotOutcomes.WithLabelValues(string(scheduler.OutcomeFilled)).Add(float64(summary.SlotsFilled))
	for _, skipped := range summary.SlotsSkipped {
		SlotOutcomes.WithLabelValues(string(skipped.Kind)).Inc()
	}
	CohostsAssigned.Add(float64(summary.CohostsAssigned))

	if !summary.FinishedAt.IsZero() {
		GenerationDuration.Observe(summary.Duration().Seconds())
	}
}

// ObserveRequest records one HTTP request
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
