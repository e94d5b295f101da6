// Package metrics provides the shared Prometheus registerer for the IS24 client.
// Metrics are defined in their respective packages (client, ratelimit, pagination)
// and registered against Registry via promauto.With to avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by this module.
const Namespace = "is24"

// Registry is the Prometheus registerer used by the IS24 client.
// It defaults to the global registerer so that promhttp.Handler exposes
// client metrics without further wiring.
var Registry prometheus.Registerer = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - is24_requests_total{endpoint, status} (Counter): Requests by endpoint template and HTTP status
//   - is24_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint template
//   - is24_errors_total{class} (Counter): Errors by class (network, decode, rate_limit)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - is24_rate_limited_total (Counter): HTTP 503 responses received
//   - is24_pacing_wait_seconds (Histogram): Time spent waiting for the client-side pacer
//
// Pagination Metrics (pkg/pagination):
//   - is24_pages_fetched_total (Counter): Listing pages fetched while aggregating
//
// Endpoint labels are path templates with numeric segments replaced by {id},
// e.g. "user/me/realestate/{id}/attachment".
//
// Example Prometheus Queries:
//
//   # Rate limit hits per minute
//   rate(is24_rate_limited_total[1m]) * 60
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(is24_request_duration_seconds_bucket[5m]))
//
//   # Network error rate
//   rate(is24_errors_total{class="network"}[5m])
