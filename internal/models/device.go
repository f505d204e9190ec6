package models

import "time"

// Device is the administrative API's view of a registered device, fetched
// best-effort for catalog context.
type Device struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"client_id"`
	Name            string     `json:"name,omitempty"`
	Type            string     `json:"type,omitempty"`
	Model           string     `json:"model,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	InstallDate     *time.Time `json:"install_date,omitempty"`
}

// Alarm is an alarm raised by the administrative API's evaluation of a
// telemetry record, mirrored to realtime subscribers.
type Alarm struct {
	ID        string                 `json:"id"`
	DeviceID  string                 `json:"device_id"`
	ClientID  string                 `json:"client_id"`
	Severity  string                 `json:"severity"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
