package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netvend"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	serverConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Accepted protocol connections.",
		},
	)
	serverPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "packets_total",
			Help:      "Protocol packets handled, by packet type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	executorCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "commands_total",
			Help:      "Commands executed, by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
	executorBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "batch_duration_seconds",
			Help:      "Command batch execution time, by completion status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"completion"},
	)
	feeSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "sweeps_total",
			Help:      "Completed upkeep fee sweeps.",
		},
	)
	feeFilesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "files_deleted_total",
			Help:      "Files deleted because their pocket could not pay upkeep.",
		},
	)
	feeCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "credit_collected_total",
			Help:      "Credit debited by upkeep sweeps.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			serverConnections, serverPackets,
			executorCommands, executorBatchDuration,
			feeSweeps, feeFilesDeleted, feeCollected,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnection() {
	RegisterMetrics()
	serverConnections.Inc()
}

// RecordPacket counts one packet. packetType is "handshake", "batch" or
// "unknown"; outcome is free-form ("ok", "decode_error", "auth_failed").
func RecordPacket(packetType, outcome string) {
	RegisterMetrics()
	serverPackets.WithLabelValues(packetType, outcome).Inc()
}

func RecordCommand(command string, ok bool) {
	RegisterMetrics()
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	executorCommands.WithLabelValues(command, outcome).Inc()
}

func RecordBatch(completion string, duration time.Duration) {
	RegisterMetrics()
	executorBatchDuration.WithLabelValues(completion).Observe(duration.Seconds())
}

func RecordFeeSweep(filesDeleted int, collected uint64) {
	RegisterMetrics()
	feeSweeps.Inc()
	if filesDeleted > 0 {
		feeFilesDeleted.Add(float64(filesDeleted))
	}
	if collected > 0 {
		feeCollected.Add(float64(collected))
	}
}
