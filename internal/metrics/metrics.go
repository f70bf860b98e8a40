package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track mirrored volume
var (
	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmirror_sync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"outcome"},
	)

	EventsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainmirror_events_stored_total",
			Help: "Total number of events stored by event name",
		},
		[]string{"event_name"},
	)

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainmirror_decode_failures_total",
		Help: "Total number of logs skipped because decoding failed",
	})

	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainmirror_fetch_failures_total",
		Help: "Total number of failed log fetch attempts, including retried ones",
	})
)

// Performance metrics - Track cycle latency
var (
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainmirror_sync_cycle_duration_seconds",
		Help:    "Time taken to run a single sync cycle",
		Buckets: prometheus.DefBuckets,
	})
)

// State metrics - Track current mirror state
var (
	CheckpointBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainmirror_checkpoint_block",
		Help: "Last processed block recorded in the sync checkpoint",
	})

	ChainHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainmirror_chain_head",
		Help: "Chain head block observed in the most recent cycle",
	})

	SyncLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainmirror_sync_lag_blocks",
		Help: "Number of blocks between the checkpoint and the chain head",
	})
)
