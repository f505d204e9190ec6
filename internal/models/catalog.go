package models

import "time"

// DeviceContext is a best-effort snapshot of the device that produced an
// unknown field, captured at observation time.
type DeviceContext struct {
	DeviceID        string     `json:"device_id"`
	ClientID        string     `json:"client_id,omitempty"`
	Type            string     `json:"type,omitempty"`
	Model           string     `json:"model,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	InstallDate     *time.Time `json:"install_date,omitempty"`
	ObservedAt      time.Time  `json:"observed_at"`
}

// UnknownFieldEntry is a catalog row for one unrecognized payload field.
// It accumulates across observations and is never auto-deleted.
type UnknownFieldEntry struct {
	FieldName       string          `json:"field_name"`
	OccurrenceCount int64           `json:"occurrence_count"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
	SampleValues    []interface{}   `json:"sample_values,omitempty"`
	DeviceContexts  []DeviceContext `json:"device_contexts,omitempty"`
}
