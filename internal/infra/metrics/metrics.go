// Package metrics provides Prometheus metrics for weft — counters, gauges,
// and histograms covering requests, tasks, and the offload pool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── HTTP ───────────────────────────────────────────────────────────────────

// RequestLatency tracks request duration per route in seconds.
var RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "weft",
	Name:      "request_latency_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

// RequestsTotal tracks served requests per route and delay mode.
var RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "weft",
	Name:      "requests_total",
	Help:      "Total HTTP requests served.",
}, []string{"route", "mode"})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksActive tracks tasks currently owned by the dispatcher.
var TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "weft",
	Name:      "tasks_active",
	Help:      "Number of tasks submitted but not yet terminal.",
})

// TasksCompleted tracks tasks that reached a terminal state, by outcome.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "weft",
	Name:      "tasks_completed_total",
	Help:      "Total tasks by terminal state.",
}, []string{"state"})

// TaskResumeSeconds tracks how long a single resumption held the loop.
// Inline blocking calls show up here as multi-second resumes.
var TaskResumeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "weft",
	Name:      "task_resume_seconds",
	Help:      "Time the dispatcher loop spent inside one task resumption.",
	Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
})

// ─── Offload Pool ───────────────────────────────────────────────────────────

// OffloadQueueDepth tracks jobs waiting for a free worker.
var OffloadQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "weft",
	Name:      "offload_queue_depth",
	Help:      "Jobs queued in the offload pool pending queue.",
})

// OffloadJobs tracks retired offload jobs by outcome.
var OffloadJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "weft",
	Name:      "offload_jobs_total",
	Help:      "Total offload jobs retired.",
}, []string{"outcome"})

// OffloadWaitSeconds tracks time from submission to execution start.
var OffloadWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "weft",
	Name:      "offload_wait_seconds",
	Help:      "Time an offload job waited for a worker.",
	Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
})
