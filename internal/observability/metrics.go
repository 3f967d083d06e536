package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement engine.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	BatchSkipped *prometheus.CounterVec

	// --- Pool accounting ---
	OpenMatches   prometheus.Gauge
	StakesPlaced  prometheus.Counter
	StakedAmount  prometheus.Counter
	FeesCollected prometheus.Counter
	PayoutsTotal  prometheus.Counter
	DustRetained  prometheus.Counter

	// --- Notification pipeline ---
	NotificationSeq     prometheus.Gauge
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Channel utilization ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec

	// --- Persistence ---
	PersistRowsWritten  prometheus.Counter
	PersistBatchDur     prometheus.Histogram
	PersistBatchSize    prometheus.Histogram
	PersistErrors       *prometheus.CounterVec
	PersistRetry        prometheus.Counter
	PersistLastSequence prometheus.Gauge

	// --- Scheduler commands (NATS) ---
	CommandsReceived *prometheus.CounterVec
	CommandErrors    *prometheus.CounterVec

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// --- Query side ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_engine_ops_applied_total",
			Help: "Settlement operations successfully applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_engine_ops_rejected_total",
			Help: "Settlement operations rejected (validation, state conflict)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pari_engine_op_duration_seconds",
			Help:    "Time to apply a single settlement operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		BatchSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_engine_batch_skipped_total",
			Help: "Batch entries skipped with a recorded reason",
		}, []string{"op", "reason"}),

		OpenMatches: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pari_open_matches",
			Help: "Matches currently open or closed but unsettled",
		}),

		StakesPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_stakes_placed_total",
			Help: "Stakes recorded",
		}),

		StakedAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_staked_amount_total",
			Help: "Total amount staked (smallest currency unit)",
		}),

		FeesCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_fees_collected_total",
			Help: "Platform fees fixed at resolution",
		}),

		PayoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_payouts_total",
			Help: "Amount paid out to claimants",
		}),

		DustRetained: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_dust_retained_total",
			Help: "Floor-division remainders retained at resolution",
		}),

		NotificationSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pari_notification_sequence",
			Help: "Last assigned notification sequence",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_publish_drops_total",
			Help: "Notifications dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pari_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pari_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pari_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PersistRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_persist_rows_written_total",
			Help: "Notification rows written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pari_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pari_persist_batch_size",
			Help:    "Notifications per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pari_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pari_persist_last_sequence",
			Help: "Last persisted notification sequence",
		}),

		CommandsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_commands_received_total",
			Help: "Scheduler commands received from NATS",
		}, []string{"command"}),

		CommandErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_command_errors_total",
			Help: "Scheduler commands rejected (parse/validation)",
		}, []string{"command", "reason"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"handler", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pari_http_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"handler"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pari_query_requests_total",
			Help: "Read-side query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pari_query_duration_seconds",
			Help:    "Read-side query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
