package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "strokectl"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)

	transportStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "state_changes_total",
			Help:      "Connection state transitions per channel.",
		},
		[]string{"channel", "state"},
	)
	transportReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts per channel.",
		},
		[]string{"channel"},
	)
	transportMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "messages_total",
			Help:      "Messages sent, received or dropped per channel.",
		},
		[]string{"channel", "direction"},
	)

	bridgeCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Relay commands forwarded to or dropped before the hardware endpoint.",
		},
		[]string{"kind", "outcome"},
	)
	bridgeAcks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "acks_total",
			Help:      "Hardware acknowledgments reported to the relay.",
		},
	)
	bridgeHardwareErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "hardware_errors_total",
			Help:      "Error responses from the hardware endpoint.",
		},
		[]string{"code"},
	)
	bridgeSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "device_selections_total",
			Help:      "Device selection outcomes.",
		},
		[]string{"policy", "outcome"},
	)

	motionCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "motion",
			Name:      "commands_total",
			Help:      "Motion steps emitted or suppressed by the controller.",
		},
		[]string{"model", "outcome"},
	)
	motionAckLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "motion",
			Name:      "ack_latency_seconds",
			Help:      "Round trip from command send to command_ok.",
			Buckets:   []float64{.01, .025, .05, .1, .2, .4, .8, 1.6, 3.2},
		},
		[]string{"model"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			transportStates, transportReconnects, transportMessages,
			bridgeCommands, bridgeAcks, bridgeHardwareErrors, bridgeSelections,
			motionCommands, motionAckLatency,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransportState(channel, state string) {
	RegisterMetrics()
	transportStates.WithLabelValues(channel, state).Inc()
}

func RecordReconnectAttempt(channel string) {
	RegisterMetrics()
	transportReconnects.WithLabelValues(channel).Inc()
}

// RecordTransportMessage counts one frame; direction is sent, received or dropped.
func RecordTransportMessage(channel, direction string) {
	RegisterMetrics()
	transportMessages.WithLabelValues(channel, direction).Inc()
}

func RecordBridgeCommand(kind, outcome string) {
	RegisterMetrics()
	bridgeCommands.WithLabelValues(kind, outcome).Inc()
}

func RecordBridgeAck() {
	RegisterMetrics()
	bridgeAcks.Inc()
}

func RecordHardwareError(code int) {
	RegisterMetrics()
	bridgeHardwareErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

func RecordDeviceSelection(policy, outcome string) {
	RegisterMetrics()
	bridgeSelections.WithLabelValues(policy, outcome).Inc()
}

func RecordMotionCommand(model, outcome string) {
	RegisterMetrics()
	motionCommands.WithLabelValues(model, outcome).Inc()
}

func RecordAckLatency(model string, d time.Duration) {
	RegisterMetrics()
	motionAckLatency.WithLabelValues(model).Observe(d.Seconds())
}
