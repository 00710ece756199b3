// Package metrics defines every custom Prometheus metric of the todo API.
// It is the single source of truth for metric names, labels and help
// strings. promauto registers them with the default registry on import;
// the server exposes that registry at GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "todo"

// ── HTTP metrics ──────────────────────────────────────────────────────────────

// HTTPRequestsTotal counts finished requests.
// Labels:
//   - method: HTTP verb
//   - route:  chi route pattern, e.g. "/users/{userId}/tasks/{taskId}"
//   - status: response status code, e.g. "201"
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests, by method, route pattern and status.",
	},
	[]string{"method", "route", "status"},
)

// HTTPRequestDuration measures handler latency.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

// RateLimitedTotal counts requests rejected with 429.
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter, by route pattern.",
	},
	[]string{"route"},
)

// ── Auth metrics ──────────────────────────────────────────────────────────────

// AuthAttemptsTotal counts register/login outcomes.
// Labels:
//   - action: "register" or "login"
//   - result: "success", "conflict", "invalid_credentials" or "error"
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of registration and login attempts, by outcome.",
	},
	[]string{"action", "result"},
)

// ── Task metrics ──────────────────────────────────────────────────────────────

// TaskOperationsTotal counts successful task mutations.
// Label:
//   - operation: "create", "update", "toggle" or "delete"
var TaskOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_operations_total",
		Help:      "Total number of successful task mutations, by operation.",
	},
	[]string{"operation"},
)

// EventPublishFailuresTotal counts dropped task events: refused by a full
// publish buffer or not accepted by the broker.
var EventPublishFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_publish_failures_total",
		Help:      "Total number of task events that could not be published, by event type.",
	},
	[]string{"type"},
)
