package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, auto-registered with the default Prometheus registry
// and exposed by the monitor's /metrics endpoint.
var (
	TicksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_ticks_received_total",
			Help: "Ticks received from the feed per instrument",
		},
		[]string{"stock_code"},
	)

	TicksDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_ticks_dropped_total",
			Help: "Ticks dropped because they could not be parsed or published",
		},
		[]string{"stock_code", "reason"},
	)

	SnapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_window_snapshots_published_total",
			Help: "Bar window snapshots published to the shared store",
		},
		[]string{"stock_code"},
	)

	MonitorCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_monitor_cycles_total",
			Help: "Monitor cycles by outcome (ok, skipped, error)",
		},
		[]string{"stock_code", "result"},
	)

	MonitorCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breakout_monitor_cycle_duration_seconds",
			Help:    "Duration of completed monitor cycles",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"stock_code"},
	)

	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_alerts_fired_total",
			Help: "Breakout and breakdown alerts fired",
		},
		[]string{"stock_code", "signal"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_notification_failures_total",
			Help: "Notification deliveries that failed",
		},
		[]string{"notifier"},
	)

	ActivePipelines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_active_pipelines",
			Help: "Number of running collector/monitor pipelines",
		},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
