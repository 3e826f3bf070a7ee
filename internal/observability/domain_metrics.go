package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chartSelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportdesk_chart_selections_total",
			Help: "Total number of chart template selections by template and rule.",
		},
		[]string{"template", "rule"},
	)
	specMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reportdesk_spec_mismatch_total",
			Help: "Total number of chart specs that referenced a missing column.",
		},
	)
	dashboardTilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportdesk_dashboard_tiles_total",
			Help: "Total number of rendered dashboard tiles by status and error kind.",
		},
		[]string{"status", "kind"},
	)
	upstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportdesk_upstream_calls_total",
			Help: "Total number of translator and warehouse calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	upstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportdesk_upstream_latency_ms",
			Help:    "Translator and warehouse call latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"op"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportdesk_exports_total",
			Help: "Total number of report exports by format and destination.",
		},
		[]string{"format", "destination"},
	)
)

func init() {
	prometheus.MustRegister(
		chartSelectionsTotal,
		specMismatchTotal,
		dashboardTilesTotal,
		upstreamCallsTotal,
		upstreamLatencyMs,
		exportsTotal,
	)
}

func ObserveChartSelection(template, rule string) {
	chartSelectionsTotal.WithLabelValues(template, rule).Inc()
}

func IncrementSpecMismatch() {
	specMismatchTotal.Inc()
}

// ObserveDashboardTile counts one tile. kind is empty for tiles that rendered.
func ObserveDashboardTile(status, kind string) {
	dashboardTilesTotal.WithLabelValues(status, kind).Inc()
}

func ObserveUpstreamCall(op string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamCallsTotal.WithLabelValues(op, outcome).Inc()
	upstreamLatencyMs.WithLabelValues(op).Observe(float64(elapsed.Milliseconds()))
}

func ObserveExport(format, destination string) {
	exportsTotal.WithLabelValues(format, destination).Inc()
}
