package models

import "time"

// CommandAcknowledgment is a device's report on a previously dispatched
// command. It is transient: validated, folded into the command's terminal
// state, then discarded.
type CommandAcknowledgment struct {
	DeviceID      string                 `json:"device_id"`
	CommandID     string                 `json:"command_id"`
	Status        string                 `json:"status"` // RECEIVED, EXECUTING, COMPLETED, FAILED or TIMEOUT
	Message       string                 `json:"message,omitempty"`
	ExecutionData map[string]interface{} `json:"execution_data,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}
