// Package metrics exposes the Prometheus registry of the aggregator.
// Metrics are defined next to the code they measure (client, pagination,
// resolve, health, server) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Upstream requests (pkg/client):
//   - swapi_upstream_requests_total{endpoint, status} (Counter)
//   - swapi_upstream_request_duration_seconds{endpoint} (Histogram)
//   - swapi_upstream_errors_total{class} (Counter): client, server, network, decode
//
// Pagination (pkg/pagination):
//   - swapi_collection_fetches_total{outcome} (Counter): complete, failed
//   - swapi_pages_fetched_total (Counter)
//   - swapi_collection_fetch_duration_seconds (Histogram)
//
// Reference resolution (pkg/resolve):
//   - swapi_references_resolved_total{field} (Counter)
//
// Status tracking (pkg/health):
//   - swapi_upstream_consecutive_failures{collection} (Gauge)
//   - swapi_status_write_errors_total (Counter)
//
// HTTP surface (internal/server):
//   - swapi_http_requests_total{route, status} (Counter)
//   - swapi_http_request_duration_seconds{route} (Histogram)
//   - swapi_aggregation_failures_total{collection} (Counter)
//
// Example Prometheus Queries:
//
//	# 503 rate on /people
//	rate(swapi_http_requests_total{route="/people",status="503"}[5m])
//
//	# Upstream errors by class
//	sum by (class) (rate(swapi_upstream_errors_total[5m]))
//
//	# P95 full collection fetch
//	histogram_quantile(0.95, rate(swapi_collection_fetch_duration_seconds_bucket[5m]))
