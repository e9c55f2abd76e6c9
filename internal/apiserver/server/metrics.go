// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 包含所有 API Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 业务指标
	ConsultationsCreated prometheus.Counter
	ConsultationsByState *prometheus.GaugeVec
	AuthAttemptsTotal    *prometheus.CounterVec
}

// NewMetrics 创建指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ConsultationsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consultations_created_total",
				Help:      "Total consultations submitted by patients",
			},
		),
		ConsultationsByState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consultations_total",
				Help:      "Consultations by status",
			},
			[]string{"status"},
		),
		AuthAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Authentication attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 规范化路径，将 ID 替换为占位符，避免高基数
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/user/") && path != "/user/my":
		return "/user/{id}"
	case strings.HasPrefix(path, "/doctor/assign/"):
		return "/doctor/assign/{id}"
	case strings.HasPrefix(path, "/doctor/solve/"):
		return "/doctor/solve/{id}"
	case strings.HasPrefix(path, "/doctor/consultation/"):
		return "/doctor/consultation/{id}"
	case strings.HasPrefix(path, "/admin/users/"):
		return "/admin/users/{id}"
	case strings.HasPrefix(path, "/admin/doctors/verify/"):
		return "/admin/doctors/verify/{id}"
	case strings.HasPrefix(path, "/admin/doctors/"):
		return "/admin/doctors/{id}"
	case strings.HasPrefix(path, "/admin/consultations/assign/"):
		return "/admin/consultations/assign/{id}"
	case strings.HasPrefix(path, "/admin/consultations/"):
		return "/admin/consultations/{id}"
	default:
		return path
	}
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthAttempt 记录认证尝试
func (m *Metrics) RecordAuthAttempt(operation, outcome string) {
	m.AuthAttemptsTotal.WithLabelValues(operation, outcome).Inc()
}

// SetConsultationsCount 设置各状态病例数量
func (m *Metrics) SetConsultationsCount(status string, count int) {
	m.ConsultationsByState.WithLabelValues(status).Set(float64(count))
}
