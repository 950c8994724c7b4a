package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"reviewsync/internal/domain"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviewsync", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviewsync", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviewsync", Name: "external_requests_total", Help: "Outbound provider requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviewsync", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviewsync", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	RefreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviewsync", Name: "refresh_cycles_total", Help: "Refresh cycles by mode and result."},
		[]string{"mode", "result"}, // mode: replace|delta, result: ok|error|skipped
	)
	RefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviewsync", Name: "refresh_cycle_duration_seconds",
			Help:    "Refresh cycle duration seconds.",
			Buckets: []float64{.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)
	AdapterReviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviewsync", Name: "adapter_reviews_total", Help: "Reviews yielded per source."},
		[]string{"source", "outcome"}, // outcome: ok|partial|failed
	)
)

// Serve exposes reg on a dedicated listener; an empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		RefreshCycles, RefreshDuration, AdapterReviews)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveRefresh(mode, result string, dur time.Duration) {
	RefreshCycles.WithLabelValues(mode, result).Inc()
	if result != "skipped" {
		RefreshDuration.WithLabelValues(mode).Observe(dur.Seconds())
	}
}

func ObserveAdapter(source, outcome string, n int) {
	AdapterReviews.WithLabelValues(source, outcome).Add(float64(n))
}

// LabelErr buckets an error into a bounded metric label.
func LabelErr(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	}
	return "other"
}
