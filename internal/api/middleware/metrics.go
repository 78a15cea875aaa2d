// metrics.go — Prometheus HTTP метрики для QR Module.
// Регистрирует метрики: qr_http_requests_total, qr_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики QR Module
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qr_http_requests_total",
			Help: "Общее количество HTTP-запросов к QR Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qr_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к QR Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет fingerprint в пути на {fingerprint}.
// /api/v1/qr-codes/3f9a... → /api/v1/qr-codes/{fingerprint}
// /api/v1/qr-codes/3f9a.../image → /api/v1/qr-codes/{fingerprint}/image
// Неизвестные пути сворачиваются в "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/qr-codes", "/api/v1/openapi.yaml":
		return path
	}

	const prefix = "/api/v1/qr-codes/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok || rest == "" {
		return "other"
	}

	_, suffix, _ := strings.Cut(rest, "/")
	switch suffix {
	case "":
		return prefix + "{fingerprint}"
	case "image", "retry":
		return prefix + "{fingerprint}/" + suffix
	default:
		return "other"
	}
}
