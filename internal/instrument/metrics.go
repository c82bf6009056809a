package instrument

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	chartsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_field_charts_total",
		Help: "Field analyses by resulting chart type or reason.",
	}, []string{"outcome"})

	optionRecordsRenamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_option_rename_records_total",
		Help: "Lead records rewritten by dropdown option renames.",
	})

	fieldsRenumbered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_field_renumbered_rows_total",
		Help: "Field definitions whose column_order was rewritten by the renumbering pass.",
	})

	snapshotLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_snapshot_loads_total",
		Help: "Record snapshot lookups by result (hit, miss, stale, bypass, error).",
	}, []string{"result"})
)

// RecordChart counts one field analysis outcome.
func RecordChart(outcome string) { chartsBuilt.WithLabelValues(outcome).Inc() }

// RecordOptionRenames counts lead records rewritten by an option rename.
func RecordOptionRenames(n int) { optionRecordsRenamed.Add(float64(n)) }

// RecordRenumbered counts definitions moved by the renumbering pass.
func RecordRenumbered(n int) { fieldsRenumbered.Add(float64(n)) }

// RecordSnapshot counts a snapshot cache lookup.
func RecordSnapshot(result string) { snapshotLoads.WithLabelValues(result).Inc() }

// MetricsMiddleware records request counts and latency per matched route.
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		httpRequests.WithLabelValues(route, c.Method(), strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route, c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
