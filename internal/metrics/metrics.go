package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climadash_queries_total",
			Help: "Total warehouse queries executed",
		},
		[]string{"status"},
	)

	QueryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "climadash_query_latency_seconds",
			Help:    "Warehouse query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climadash_query_cache_lookups_total",
			Help: "Query result cache lookups by outcome",
		},
		[]string{"result"},
	)

	PanelRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climadash_panel_renders_total",
			Help: "Dashboard panel renders by visualization kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ForecastFits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climadash_forecast_fits_total",
			Help: "ARIMA model fits by status",
		},
		[]string{"status"},
	)

	ForecastFitLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "climadash_forecast_fit_latency_seconds",
			Help:    "ARIMA model fit latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
	)

	RowsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climadash_rows_imported_total",
			Help: "Rows imported into the warehouse tables",
		},
		[]string{"table"},
	)

	ValuesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climadash_values_flagged_total",
			Help: "Imported values nulled by range validation",
		},
		[]string{"flag"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "climadash_active_sessions",
			Help: "Dashboard sessions currently held in memory",
		},
	)
)
