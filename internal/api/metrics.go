package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultgate_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	accessDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_access_decisions_total",
		Help: "Per-path access decisions by outcome.",
	}, []string{"outcome"})

	credentialsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vaultgate_credentials_total",
		Help: "Number of issued credentials.",
	})

	authRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultgate_auth_rejections_total",
		Help: "Requests rejected by the authentication gate.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, accessDecisionsTotal, credentialsTotal, authRejectionsTotal)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start)
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur.Seconds())

		log.Debug().
			Str("request_id", requestIDFromCtx(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rr.statusCode).
			Dur("duration", dur).
			Msg("request")
	})
}
