package realtime

import (
	"encoding/json"
	"time"
)

// Event is the server-to-client push envelope.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// clientMessage is the client-to-server message envelope.
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// telemetrySubscribeRequest selects device-telemetry rooms: an explicit id
// list, or every device for privileged roles.
type telemetrySubscribeRequest struct {
	DeviceIDs []string `json:"device_ids,omitempty"`
	All       bool     `json:"all,omitempty"`
}

// alarmsSubscribeRequest selects alarm rooms by severity; empty means the
// client-wide alarm room.
type alarmsSubscribeRequest struct {
	Severities []string `json:"severities,omitempty"`
}

// Room names. Each room is a distinct audience; one event may legitimately
// reach several rooms.
const (
	allDevicesRoom    = "devices:all"
	systemMonitorRoom = "system:monitor"
)

func deviceRoom(deviceID string) string {
	return "device:" + deviceID
}

func clientRoom(clientID string) string {
	return "client:" + clientID
}

func alarmRoom(clientID string) string {
	return "alarms:" + clientID
}

func alarmSeverityRoom(clientID, severity string) string {
	return "alarms:" + clientID + ":" + severity
}
