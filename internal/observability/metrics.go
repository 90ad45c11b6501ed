package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/location-forecast-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 on /weather, which scales with saved locations.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap forecast call rate by HTTP outcome. Watch for: error vs success ratio.
	ForecastAPICallsTotal *prometheus.CounterVec

	// Upstream latency per call. Watch for: p99 approaching forecast.timeout.
	ForecastAPIDuration *prometheus.HistogramVec

	// Retry attempts for forecast calls. Watch for: high retries = unstable upstream.
	ForecastAPIRetriesTotal prometheus.Counter

	// Aggregated entries by outcome ("success" or an error category). One per saved location per refresh.
	ForecastEntriesTotal *prometheus.CounterVec

	// Location CRUD by op (add, update, delete) and result (success, validation, not_found, quota, error).
	LocationMutationsTotal *prometheus.CounterVec

	// Circuit breaker state: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
	storageGaugesOnce   sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ForecastAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastApiCallsTotal",
			Help: "Total number of OpenWeatherMap forecast API calls",
		},
		[]string{"status"},
	)
	ForecastAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastApiDurationSeconds",
			Help:    "OpenWeatherMap forecast API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	ForecastAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastApiRetriesTotal",
			Help: "Total number of retry attempts for forecast API calls",
		},
	)
	ForecastEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastEntriesTotal",
			Help: "Forecast entries produced by aggregation, by outcome",
		},
		[]string{"outcome"},
	)
	LocationMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationMutationsTotal",
			Help: "Location add/update/delete requests by result",
		},
		[]string{"op", "result"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ForecastAPICallsTotal, ForecastAPIDuration, ForecastAPIRetriesTotal,
		ForecastEntriesTotal, LocationMutationsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow. Uses same window as lifecycle.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Admitted plus denied /weather requests in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// PoolStats is the subset of connection pool statistics exported as gauges.
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
}

// RegisterStorageGauges exports connection pool occupancy. stat is called on every scrape.
func RegisterStorageGauges(stat func() PoolStats) {
	storageGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{Name: "storagePoolAcquiredConns", Help: "Connections currently checked out"},
				func() float64 { return float64(stat().Acquired) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{Name: "storagePoolIdleConns", Help: "Idle connections in the pool"},
				func() float64 { return float64(stat().Idle) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{Name: "storagePoolTotalConns", Help: "Total connections in the pool"},
				func() float64 { return float64(stat().Total) },
			),
		)
	})
}

// RecordForecastEntry counts one aggregated entry. outcome is "success" or an error category.
func RecordForecastEntry(outcome string) {
	ForecastEntriesTotal.WithLabelValues(outcome).Inc()
}

// RecordLocationMutation counts one location add/update/delete attempt.
func RecordLocationMutation(op, result string) {
	LocationMutationsTotal.WithLabelValues(op, result).Inc()
}

// RecordCircuitBreakerTransition counts a state change for component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the current state value for component.
func SetCircuitBreakerStateGauge(component string, value float64) {
	CircuitBreakerState.WithLabelValues(component).Set(value)
}

// CircuitBreakerStateValue converts a circuitbreaker.State ordinal to the gauge value.
func CircuitBreakerStateValue(state int) float64 {
	return float64(state)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
