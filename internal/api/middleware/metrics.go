// metrics.go — Prometheus HTTP метрики File Server.
// Регистрирует метрики: fs_http_requests_total, fs_http_request_duration_seconds.
// Бизнес-метрики (fs_cleanup_*, fs_consistency_*, fs_cache_*)
// регистрируются в сервисном слое.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_http_requests_total",
			Help: "Общее количество HTTP-запросов к File Server",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к File Server в секундах",
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

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath сворачивает переменные сегменты пути в плейсхолдеры,
// чтобы предотвратить взрывной рост кардинальности метрик: пути файлов
// и UUID ссылок произвольны.
func normalizePath(path string) string {
	// Статические маршруты внутри /api/v1/files/ не сворачиваются
	switch path {
	case "/api/v1/files/search", "/api/v1/files/upload", "/api/v1/files/move":
		return path
	}

	// Префиксы с произвольным хвостом-путём файла
	wildcardPrefixes := []string{
		"/api/v1/files/meta/",
		"/api/v1/files/download/",
		"/api/v1/files/permission/",
		"/api/v1/files/lock/",
		"/api/v1/files/",
		"/api/v1/directories/permission/",
		"/api/v1/directories/lock/",
		"/api/v1/directories/info/",
	}
	for _, prefix := range wildcardPrefixes {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{path}"
		}
	}
	if strings.HasPrefix(path, "/api/v1/shares/") && len(path) > len("/api/v1/shares/") {
		return "/api/v1/shares/{id}"
	}
	return path
}
