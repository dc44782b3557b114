// Package metrics provides Prometheus metrics for the CardzCheck backend.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardz_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Comps Metrics
	CompsSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_comps_searches_total",
			Help: "Comps searches by outcome",
		},
		[]string{"result"}, // "ok", "empty", "fallback", "upstream_error", "cached"
	)

	CompsListingsHidden = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardz_comps_listings_hidden_total",
			Help: "Listings dropped below the relevance cutoff",
		},
	)

	GradeCmvMethodTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_grade_cmv_method_total",
			Help: "Grade CMV computations by reduction method",
		},
		[]string{"method"}, // "median", "trimmedMean", "none"
	)

	// Listing Source Metrics
	ListingSourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_listing_source_requests_total",
			Help: "Listing source fetches by source and result",
		},
		[]string{"source", "result"},
	)

	ListingSourceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardz_listing_source_latency_seconds",
			Help:    "Listing source fetch latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	CatalogQuotaRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardz_catalog_quota_remaining",
			Help: "Remaining catalog API requests for today",
		},
	)

	CatalogQuotaLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardz_catalog_quota_limit",
			Help: "Daily catalog API request limit",
		},
	)

	// CMV Worker Metrics
	CmvUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_cmv_updates_total",
			Help: "CMV computations by resulting status",
		},
		[]string{"status"}, // "ready", "unavailable", "failed"
	)

	CmvQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardz_cmv_queue_size",
			Help: "Number of collection items waiting for a CMV computation",
		},
	)

	CmvComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardz_cmv_compute_duration_seconds",
			Help:    "Time taken to compute and persist one CMV",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	CmvSweepRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardz_cmv_sweep_requeued_total",
			Help: "Collection items re-enqueued by the periodic sweep",
		},
	)

	// Collection Metrics
	CollectionCardsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardz_collection_cards_total",
			Help: "Total number of cards across all collections",
		},
	)

	CollectionValueUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardz_collection_value_usd",
			Help: "Total display value across all collections in USD",
		},
	)

	WatchlistAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardz_watchlist_alerts_total",
			Help: "Watchlist items that crossed below their target price",
		},
	)

	// Cache Metrics
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_cache_requests_total",
			Help: "Cache lookups by backend and result",
		},
		[]string{"backend", "result"}, // result: "hit", "miss", "error"
	)

	// Gemini Metrics
	GeminiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_gemini_requests_total",
			Help: "Total Gemini API requests by purpose",
		},
		[]string{"purpose"}, // "assistant", "identify"
	)

	GeminiAPILatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardz_gemini_api_latency_seconds",
			Help:    "Gemini API call latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	GeminiErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_gemini_errors_total",
			Help: "Gemini API errors by type",
		},
		[]string{"type"}, // "network", "read", "api", "parse", "empty"
	)

	IdentityWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardz_identity_warnings_total",
			Help: "Normalizer warnings by tag",
		},
		[]string{"warning"},
	)
)
