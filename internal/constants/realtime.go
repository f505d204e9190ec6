package constants

import "time"

// Client to server realtime message types
const (
	EventTelemetrySubscribe   = "telemetry:subscribe"
	EventTelemetryUnsubscribe = "telemetry:unsubscribe"
	EventAlarmsSubscribe      = "alarms:subscribe"
	EventSystemStats          = "system:stats"
)

// Server to client realtime event types
const (
	EventConnectionSuccess   = "connection:success"
	EventTelemetryData       = "telemetry:data"
	EventAlarmNew            = "alarm:new"
	EventCreditAlert         = "credit:alert"
	EventDeviceStatus        = "device:status"
	EventSystemNotification  = "system:notification"
	EventCommandStatusUpdate = "command-status-update"
	EventError               = "error"
)

// Roles allowed to subscribe to the all-devices telemetry room
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Realtime connection tuning
const (
	// DefaultSendBufferSize is the per-connection outbound message buffer
	DefaultSendBufferSize = 64
	// DefaultWriteWait bounds a single websocket write
	DefaultWriteWait = 10 * time.Second
	// DefaultPongWait is how long to wait for a pong before dropping the connection
	DefaultPongWait = 60 * time.Second
	// DefaultPingInterval must be shorter than DefaultPongWait
	DefaultPingInterval = 30 * time.Second
	// DefaultStatsInterval is how often system stats are broadcast
	DefaultStatsInterval = 30 * time.Second
)
