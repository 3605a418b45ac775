// Package metrics provides Prometheus metrics for the card cataloguer.
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
			Name: "cataloguer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Scraper Metrics
	ScrapeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cataloguer_scrape_requests_total",
			Help: "Total number of pricing site page fetches",
		},
		[]string{"kind"}, // "search" or "product"
	)

	ScrapeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cataloguer_scrape_errors_total",
			Help: "Total number of failed pricing site fetches",
		},
	)

	ScrapeCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cataloguer_scrape_cache_hits_total",
			Help: "Total number of scrape results served from the TTL cache",
		},
	)

	// Metadata API Metrics
	MetadataRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cataloguer_metadata_requests_total",
			Help: "Total number of metadata API requests made",
		},
	)

	MetadataMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cataloguer_metadata_matches_total",
			Help: "Metadata match attempts by outcome",
		},
		[]string{"outcome"}, // "matched", "no_match", "error"
	)

	// Refresh Job Metrics
	RefreshJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cataloguer_refresh_jobs_total",
			Help: "Completed refresh jobs by category and final status",
		},
		[]string{"category", "status"},
	)

	RefreshItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cataloguer_refresh_items_total",
			Help: "Items processed by refresh jobs, by category and outcome",
		},
		[]string{"category", "outcome"}, // outcome: "succeeded" or "failed"
	)

	RefreshJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cataloguer_refresh_job_duration_seconds",
			Help:    "Wall-clock duration of refresh jobs",
			Buckets: []float64{1, 5, 15, 60, 120, 300, 600},
		},
		[]string{"category"},
	)

	RefreshJobRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cataloguer_refresh_job_running",
			Help: "1 while a refresh job of the category is running, else 0",
		},
		[]string{"category"},
	)

	// Collection Metrics
	CollectionCards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cataloguer_collection_cards",
			Help: "Total number of cards in the collection (sum of quantities)",
		},
	)

	CollectionValueCents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cataloguer_collection_value_cents",
			Help: "Estimated collection value in cents, from latest ungraded prices",
		},
	)
)
