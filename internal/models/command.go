package models

import (
	"encoding/json"
	"time"
)

// DeviceCommand represents an outbound command for a field device. The
// payload is immutable; lifecycle metadata lives in QueuedCommand.
type DeviceCommand struct {
	CommandID string          `json:"command_id"`           // Unique command identifier
	DeviceID  string          `json:"device_id"`            // Target device
	Type      string          `json:"type"`                 // Command type understood by the device
	Payload   json.RawMessage `json:"payload,omitempty"`    // Opaque command arguments
	Priority  string          `json:"priority"`             // CRITICAL, HIGH, MEDIUM or LOW
	Timestamp time.Time       `json:"timestamp"`            // When the command was created
	ExpiresAt *time.Time      `json:"expires_at,omitempty"` // Optional hard expiry
}

// IsExpired reports whether the command is past its expiry at the given time.
func (c *DeviceCommand) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// QueuedCommand wraps a DeviceCommand with queue lifecycle state.
type QueuedCommand struct {
	Command    *DeviceCommand `json:"command"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	RetryCount int            `json:"retry_count"`
	Status     string         `json:"status"`
}

// CommandStatusUpdate is the status change pushed to the administrative API
// for a (device, command) pair.
type CommandStatusUpdate struct {
	Status        string                 `json:"status"`
	Message       string                 `json:"message,omitempty"`
	ExecutionData map[string]interface{} `json:"execution_data,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}
