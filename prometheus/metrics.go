package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are rebuilt by InitMetrics; handlers read them at call time.
var (
	HTTPRequestCounter *prometheus.CounterVec
	// type is e.g. "missing_token", "invalid_token", "login_failure"
	AuthErrorCounter     *prometheus.CounterVec
	LoginCounter         prometheus.Counter
	RegisterCounter      prometheus.Counter
	UploadCounter        *prometheus.CounterVec
	UploadBytes          prometheus.Counter
	AIRequestCounter     *prometheus.CounterVec
	ExtractionJobCounter *prometheus.CounterVec

	RequestDuration     *prometheus.HistogramVec
	DBOperationDuration *prometheus.HistogramVec
	AIRequestDuration   *prometheus.HistogramVec

	InfoGauge *prometheus.GaugeVec

	registry *prometheus.Registry
)

const Version = "1.0.0"

func init() {
	InitMetrics("docvision")
}

// InitMetrics creates every collector under the given name prefix on a fresh
// registry, together with the Go runtime and process collectors. An empty
// prefix leaves metric names bare. Call it once at startup.
func InitMetrics(prefix string) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	HTTPRequestCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and status",
	}, []string{"endpoint", "method", "status"})

	AuthErrorCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "auth_errors_total",
		Help:      "Total number of authentication errors",
	}, []string{"type"})

	LoginCounter = factory.NewCounter(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "login_total",
		Help:      "Total number of successful token grants",
	})

	RegisterCounter = factory.NewCounter(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "register_total",
		Help:      "Total number of user registrations",
	})

	UploadCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "uploads_total",
		Help:      "Total number of file uploads by outcome",
	}, []string{"outcome"})

	UploadBytes = factory.NewCounter(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "upload_bytes_total",
		Help:      "Total number of bytes stored",
	})

	AIRequestCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "ai_requests_total",
		Help:      "Total number of AI provider calls",
	}, []string{"provider", "outcome"})

	// outcome is "processed", "requeued", "dead_lettered", "skipped" or "interrupted"
	ExtractionJobCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: prefix,
		Name:      "extraction_jobs_total",
		Help:      "Total number of document extraction jobs by outcome",
	}, []string{"outcome"})

	RequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: prefix,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status"})

	DBOperationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: prefix,
		Name:      "db_operation_duration_seconds",
		Help:      "Duration of database operations in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	AIRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: prefix,
		Name:      "ai_request_duration_seconds",
		Help:      "Duration of AI provider calls in seconds",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"provider"})

	InfoGauge = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: prefix,
		Name:      "info",
		Help:      "Information about the service",
	}, []string{"version"})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	InfoGauge.With(prometheus.Labels{"version": Version}).Set(1)
	registry = reg
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(time.Since(startTime).Seconds())
	}
}

// TrackAIRequest measures one provider call and records its outcome
func TrackAIRequest(provider string) func(err error) {
	startTime := time.Now()
	return func(err error) {
		AIRequestDuration.With(prometheus.Labels{"provider": provider}).Observe(time.Since(startTime).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		AIRequestCounter.With(prometheus.Labels{"provider": provider, "outcome": outcome}).Inc()
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordUpload records an upload attempt and, on success, its size
func RecordUpload(outcome string, size int64) {
	UploadCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
	if outcome == "success" {
		UploadBytes.Add(float64(size))
	}
}

// RecordExtractionJob records the outcome of a document extraction job
func RecordExtractionJob(outcome string) {
	ExtractionJobCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}
