package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "LineGuard/pkg/logger"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

var (
	defaultHTTPMetrics     *httpMetrics
	defaultHTTPMetricsOnce sync.Once
)

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	if reg == nil {
		defaultHTTPMetricsOnce.Do(func() {
			defaultHTTPMetrics = buildHTTPMetrics(prometheus.DefaultRegisterer)
		})
		return defaultHTTPMetrics
	}
	return buildHTTPMetrics(reg)
}

func buildHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"route", "method", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
			},
			[]string{"route", "method", "class"},
		),
		inFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "http_in_flight_requests", Help: "Current number of in-flight HTTP requests"},
			[]string{"route", "method"},
		),
		size: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{200, 500, 1_000, 2_000, 5_000, 10_000, 50_000, 100_000, 500_000, 1_000_000},
			},
			[]string{"route", "method", "class"},
		),
	}
}

// Metrics records request metrics labelled by the matched route template,
// and logs 5xx and slow requests.
func Metrics(reg prometheus.Registerer, l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	m := newHTTPMetrics(reg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.inFlight.WithLabelValues(route, method).Inc()
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			dur := time.Since(start)
			m.inFlight.WithLabelValues(route, method).Dec()

			code := c.Response().Status
			status := strconv.Itoa(code)
			class := statusClass(code)
			m.requests.WithLabelValues(route, method, status).Inc()
			m.duration.WithLabelValues(route, method, class).Observe(dur.Seconds())
			m.size.WithLabelValues(route, method, class).Observe(float64(c.Response().Size))

			if l != nil {
				fields := []applogger.Field{
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.String("status", status),
					applogger.Duration("duration_ms", dur),
					applogger.Int64("bytes", c.Response().Size),
				}
				switch {
				case code >= 500:
					l.Error("http request failed", fields...)
				case slowThreshold > 0 && dur >= slowThreshold:
					l.Warn("http request slow", fields...)
				}
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
