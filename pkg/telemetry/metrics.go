package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Marshaler metrics
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uisync",
			Subsystem: "marshal",
			Name:      "calls_total",
			Help:      "Total number of UI operations executed, by path (inline or queued)",
		},
		[]string{"path"},
	)

	CallLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "uisync",
			Subsystem: "marshal",
			Name:      "queued_call_seconds",
			Help:      "Time a foreign thread spent blocked on a marshaled call",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		},
	)

	AttachedThreads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uisync",
			Subsystem: "marshal",
			Name:      "attached_threads",
			Help:      "Number of threads holding a thread context",
		},
	)

	// Main loop metrics
	IdleQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "uisync",
			Subsystem: "loop",
			Name:      "idle_queue_depth",
			Help:      "Idle tasks waiting for the UI loop, by priority",
		},
		[]string{"priority"},
	)

	PumpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uisync",
			Subsystem: "mutex",
			Name:      "ui_pumps_total",
			Help:      "Times the UI thread pumped pending work instead of blocking on a mutex",
		},
	)

	// Named event metrics
	BrokersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uisync",
			Subsystem: "broker",
			Name:      "active",
			Help:      "Number of named-event brokers running in this process",
		},
	)

	BrokerPeers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "uisync",
			Subsystem: "broker",
			Name:      "peers",
			Help:      "Connections currently held by a broker",
		},
		[]string{"name"},
	)

	BrokerOpcodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uisync",
			Subsystem: "broker",
			Name:      "opcodes_total",
			Help:      "Opcodes processed by brokers",
		},
		[]string{"opcode"},
	)

	NamedWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uisync",
			Subsystem: "client",
			Name:      "waits_total",
			Help:      "Named-event waits by resulting status",
		},
		[]string{"status"},
	)
)
