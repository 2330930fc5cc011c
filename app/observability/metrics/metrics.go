package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the location engine's metric instruments.
type AppMetrics struct {
	SearchRequestsTotal    metric.Int64Counter
	SourceDurationSeconds  metric.Float64Histogram
	SourceErrorsTotal      metric.Int64Counter
	CacheHitsTotal         metric.Int64Counter
	CacheMissesTotal       metric.Int64Counter
	DbQueryDurationSeconds metric.Float64Histogram
	DbQueryErrorsTotal     metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the instruments ONLY ONCE from the global
// MeterProvider. Install the provider (tracer.InitTracingAndMetrics) first,
// otherwise the instruments are bound to the no-op provider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("LocationResolver")
		var err error
		m := &AppMetrics{}

		m.SearchRequestsTotal, err = meter.Int64Counter(
			"location_search_requests_total",
			metric.WithDescription("Total number of location searches, labelled by outcome"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create location_search_requests_total: %v", err)
		}

		m.SourceDurationSeconds, err = meter.Float64Histogram(
			"location_source_duration_seconds",
			metric.WithDescription("Duration of a single source call in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create location_source_duration_seconds: %v", err)
		}

		m.SourceErrorsTotal, err = meter.Int64Counter(
			"location_source_errors_total",
			metric.WithDescription("Total number of failed source calls"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create location_source_errors_total: %v", err)
		}

		m.CacheHitsTotal, err = meter.Int64Counter(
			"location_cache_hits_total",
			metric.WithDescription("Total number of engine cache hits"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create location_cache_hits_total: %v", err)
		}

		m.CacheMissesTotal, err = meter.Int64Counter(
			"location_cache_misses_total",
			metric.WithDescription("Total number of engine cache misses"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create location_cache_misses_total: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		m.DbQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the initialized AppMetrics, initializing against the current
// global MeterProvider if nobody did so yet.
func Get() *AppMetrics {
	if appMetrics == nil {
		InitAppMetrics()
	}
	return appMetrics
}
