package constants

import "time"

// Ingestion defaults
const (
	// DefaultMaxConcurrentForwards caps in-flight telemetry forwards to the admin API
	DefaultMaxConcurrentForwards = 10
	// DefaultShutdownDrainTimeout bounds how long shutdown waits for in-flight forwards
	DefaultShutdownDrainTimeout = 30 * time.Second
	// DefaultDeviceContextTimeout bounds best-effort device metadata lookups
	DefaultDeviceContextTimeout = 5 * time.Second
	// DefaultAdminAPITimeout is the general admin API call timeout
	DefaultAdminAPITimeout = 15 * time.Second
	// DefaultTelemetrySubmitTimeout is the telemetry submission timeout
	DefaultTelemetrySubmitTimeout = 30 * time.Second
)

// Unknown-field catalog bounds
const (
	// MaxCatalogValueSamples caps distinct sample values retained per unknown field
	MaxCatalogValueSamples = 10
	// MaxCatalogContextSnapshots caps device-context snapshots retained per unknown field
	MaxCatalogContextSnapshots = 5
)
