// Package observability exposes prometheus instrumentation for the
// communication core. Counters are package-level and registered on the
// default registry; cmd/core serves them on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TelemetryReceived counts raw telemetry messages taken off the broker.
	TelemetryReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_telemetry_received_total",
		Help: "Raw telemetry messages received from the broker.",
	})

	// TelemetryDropped counts telemetry messages dropped as malformed.
	TelemetryDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_telemetry_dropped_total",
		Help: "Telemetry messages dropped due to validation failure.",
	})

	// TelemetryForwarded counts records accepted by the administrative API.
	TelemetryForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_telemetry_forwarded_total",
		Help: "Telemetry records forwarded to the administrative API.",
	})

	// UnknownFieldsCataloged counts unknown-field observations.
	UnknownFieldsCataloged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_unknown_fields_cataloged_total",
		Help: "Unknown payload field observations recorded by the cataloger.",
	})

	// CommandsEnqueued counts commands accepted into the queue.
	CommandsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_commands_enqueued_total",
		Help: "Device commands accepted into the priority queue.",
	})

	// CommandsPublished counts commands successfully handed to the broker.
	CommandsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_commands_published_total",
		Help: "Device commands published to their device topic.",
	})

	// CommandsFailed counts commands that reached terminal failure.
	CommandsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_commands_failed_total",
		Help: "Device commands that reached FAILED state.",
	})

	// AcksProcessed counts valid acknowledgments folded into command state.
	AcksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_acks_processed_total",
		Help: "Valid command acknowledgments processed.",
	})

	// AcksDropped counts malformed acknowledgments dropped on arrival.
	AcksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_acks_dropped_total",
		Help: "Malformed command acknowledgments dropped.",
	})

	// BroadcastsSent counts realtime events delivered to at least one room.
	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "core_broadcasts_sent_total",
		Help: "Realtime events broadcast to connected sessions.",
	})

	// QueueDepth tracks commands waiting in priority buckets.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "core_command_queue_depth",
		Help: "Commands currently queued across all priority buckets.",
	})

	// QueueProcessing tracks commands handed to the dispatcher.
	QueueProcessing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "core_command_queue_processing",
		Help: "Commands currently in PROCESSING state.",
	})

	// QueueFailed tracks commands retained in the failed set.
	QueueFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "core_command_queue_failed",
		Help: "Commands currently in the failed set.",
	})

	// RealtimeConnections tracks live websocket sessions.
	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "core_realtime_connections",
		Help: "Currently connected realtime sessions.",
	})
)
