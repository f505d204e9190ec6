package models

import (
	"encoding/json"
	"time"
)

// TelemetryRecord is the canonical snapshot of one device reading. All
// measurements are optional pointers so unresolved fields stay absent from
// the serialized record instead of being persisted as nulls. Raw keeps the
// original payload verbatim; UnknownFields holds every key the transformer
// did not recognize.
type TelemetryRecord struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	// Electrical measurements
	VoltageV         *float64 `json:"voltage_v,omitempty"`
	CurrentA         *float64 `json:"current_a,omitempty"`
	PowerW           *float64 `json:"power_w,omitempty"`
	ApparentPowerVA  *float64 `json:"apparent_power_va,omitempty"`
	ReactivePowerVAR *float64 `json:"reactive_power_var,omitempty"`
	PowerFactor      *float64 `json:"power_factor,omitempty"`
	FrequencyHz      *float64 `json:"frequency_hz,omitempty"`
	EnergyKWh        *float64 `json:"energy_kwh,omitempty"`
	EnergyImportKWh  *float64 `json:"energy_import_kwh,omitempty"`
	EnergyExportKWh  *float64 `json:"energy_export_kwh,omitempty"`

	// Per-phase measurements for three-phase meters
	PhaseAVoltageV *float64 `json:"phase_a_voltage_v,omitempty"`
	PhaseBVoltageV *float64 `json:"phase_b_voltage_v,omitempty"`
	PhaseCVoltageV *float64 `json:"phase_c_voltage_v,omitempty"`
	PhaseACurrentA *float64 `json:"phase_a_current_a,omitempty"`
	PhaseBCurrentA *float64 `json:"phase_b_current_a,omitempty"`
	PhaseCCurrentA *float64 `json:"phase_c_current_a,omitempty"`

	// Environmental measurements
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
	PressureHPa  *float64 `json:"pressure_hpa,omitempty"`

	// Water and gas metering
	FlowRateLpm  *float64 `json:"flow_rate_lpm,omitempty"`
	VolumeL      *float64 `json:"volume_l,omitempty"`
	VolumeTotalL *float64 `json:"volume_total_l,omitempty"`

	// Device health
	BatteryV         *float64 `json:"battery_v,omitempty"`
	BatteryPct       *float64 `json:"battery_pct,omitempty"`
	SignalRSSIDBm    *float64 `json:"signal_rssi_dbm,omitempty"`
	SignalQualityPct *float64 `json:"signal_quality_pct,omitempty"`
	UptimeS          *float64 `json:"uptime_s,omitempty"`
	MemoryFreePct    *float64 `json:"memory_free_pct,omitempty"`
	CPULoadPct       *float64 `json:"cpu_load_pct,omitempty"`

	// Prepaid billing counters
	CreditRemaining *float64 `json:"credit_remaining,omitempty"`
	CreditConsumed  *float64 `json:"credit_consumed,omitempty"`
	TariffRate      *float64 `json:"tariff_rate,omitempty"`

	// Binary states
	RelayOn        *bool `json:"relay_on,omitempty"`
	ValveOpen      *bool `json:"valve_open,omitempty"`
	TamperDetected *bool `json:"tamper_detected,omitempty"`
	DoorOpen       *bool `json:"door_open,omitempty"`
	PowerOutage    *bool `json:"power_outage,omitempty"`

	// Device descriptors
	FirmwareVersion *string `json:"firmware_version,omitempty"`
	ICCID           *string `json:"iccid,omitempty"`
	OperatorName    *string `json:"operator_name,omitempty"`

	Raw           json.RawMessage        `json:"raw,omitempty"`
	UnknownFields map[string]interface{} `json:"unknown_fields,omitempty"`
}
