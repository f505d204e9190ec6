package telemetry

import "github.com/sensorgrid/iot-core/internal/models"

type fieldKind int

const (
	numberField fieldKind = iota
	boolField
	stringField
)

// canonicalField describes one allow-listed measurement: its modern flat
// payload key, the metric name used by the legacy nested generation, and
// how to assign it onto the canonical record.
type canonicalField struct {
	Key    string
	Legacy string
	Kind   fieldKind
	assign func(r *models.TelemetryRecord, v interface{}) bool
}

func setNumber(target func(r *models.TelemetryRecord) **float64) func(*models.TelemetryRecord, interface{}) bool {
	return func(r *models.TelemetryRecord, v interface{}) bool {
		f, ok := v.(float64)
		if !ok {
			return false
		}
		*target(r) = &f
		return true
	}
}

func setBool(target func(r *models.TelemetryRecord) **bool) func(*models.TelemetryRecord, interface{}) bool {
	return func(r *models.TelemetryRecord, v interface{}) bool {
		switch t := v.(type) {
		case bool:
			*target(r) = &t
			return true
		case float64:
			// Devices commonly report binary states as 0/1
			if t == 0 || t == 1 {
				b := t == 1
				*target(r) = &b
				return true
			}
		}
		return false
	}
}

func setString(target func(r *models.TelemetryRecord) **string) func(*models.TelemetryRecord, interface{}) bool {
	return func(r *models.TelemetryRecord, v interface{}) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		*target(r) = &s
		return true
	}
}

// allowList is the closed set of canonical fields. Any payload key not in
// this list (and not part of the envelope) is an unknown field.
var allowList = []canonicalField{
	{Key: "voltage_v", Legacy: "voltage", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.VoltageV })},
	{Key: "current_a", Legacy: "current", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.CurrentA })},
	{Key: "power_w", Legacy: "power", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PowerW })},
	{Key: "apparent_power_va", Legacy: "apparent_power", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.ApparentPowerVA })},
	{Key: "reactive_power_var", Legacy: "reactive_power", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.ReactivePowerVAR })},
	{Key: "power_factor", Legacy: "power_factor", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PowerFactor })},
	{Key: "frequency_hz", Legacy: "frequency", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.FrequencyHz })},
	{Key: "energy_kwh", Legacy: "energy", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.EnergyKWh })},
	{Key: "energy_import_kwh", Legacy: "energy_import", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.EnergyImportKWh })},
	{Key: "energy_export_kwh", Legacy: "energy_export", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.EnergyExportKWh })},
	{Key: "phase_a_voltage_v", Legacy: "phase_a_voltage", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PhaseAVoltageV })},
	{Key: "phase_b_voltage_v", Legacy: "phase_b_voltage", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PhaseBVoltageV })},
	{Key: "phase_c_voltage_v", Legacy: "phase_c_voltage", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PhaseCVoltageV })},
	{Key: "phase_a_current_a", Legacy: "phase_a_current", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PhaseACurrentA })},
	{Key: "phase_b_current_a", Legacy: "phase_b_current", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PhaseBCurrentA })},
	{Key: "phase_c_current_a", Legacy: "phase_c_current", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PhaseCCurrentA })},
	{Key: "temperature_c", Legacy: "temperature", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.TemperatureC })},
	{Key: "humidity_pct", Legacy: "humidity", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.HumidityPct })},
	{Key: "pressure_hpa", Legacy: "pressure", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.PressureHPa })},
	{Key: "flow_rate_lpm", Legacy: "flow_rate", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.FlowRateLpm })},
	{Key: "volume_l", Legacy: "volume", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.VolumeL })},
	{Key: "volume_total_l", Legacy: "volume_total", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.VolumeTotalL })},
	{Key: "battery_v", Legacy: "battery_voltage", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.BatteryV })},
	{Key: "battery_pct", Legacy: "battery", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.BatteryPct })},
	{Key: "signal_rssi_dbm", Legacy: "rssi", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.SignalRSSIDBm })},
	{Key: "signal_quality_pct", Legacy: "signal_quality", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.SignalQualityPct })},
	{Key: "uptime_s", Legacy: "uptime", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.UptimeS })},
	{Key: "memory_free_pct", Legacy: "memory_free", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.MemoryFreePct })},
	{Key: "cpu_load_pct", Legacy: "cpu_load", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.CPULoadPct })},
	{Key: "credit_remaining", Legacy: "credit", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.CreditRemaining })},
	{Key: "credit_consumed", Legacy: "credit_consumed", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.CreditConsumed })},
	{Key: "tariff_rate", Legacy: "tariff", Kind: numberField, assign: setNumber(func(r *models.TelemetryRecord) **float64 { return &r.TariffRate })},
	{Key: "relay_on", Legacy: "relay", Kind: boolField, assign: setBool(func(r *models.TelemetryRecord) **bool { return &r.RelayOn })},
	{Key: "valve_open", Legacy: "valve", Kind: boolField, assign: setBool(func(r *models.TelemetryRecord) **bool { return &r.ValveOpen })},
	{Key: "tamper_detected", Legacy: "tamper", Kind: boolField, assign: setBool(func(r *models.TelemetryRecord) **bool { return &r.TamperDetected })},
	{Key: "door_open", Legacy: "door", Kind: boolField, assign: setBool(func(r *models.TelemetryRecord) **bool { return &r.DoorOpen })},
	{Key: "power_outage", Legacy: "outage", Kind: boolField, assign: setBool(func(r *models.TelemetryRecord) **bool { return &r.PowerOutage })},
	{Key: "firmware_version", Legacy: "firmware", Kind: stringField, assign: setString(func(r *models.TelemetryRecord) **string { return &r.FirmwareVersion })},
	{Key: "iccid", Legacy: "iccid", Kind: stringField, assign: setString(func(r *models.TelemetryRecord) **string { return &r.ICCID })},
	{Key: "operator_name", Legacy: "operator", Kind: stringField, assign: setString(func(r *models.TelemetryRecord) **string { return &r.OperatorName })},
}

var (
	byModernKey = make(map[string]*canonicalField, len(allowList))
	byLegacyKey = make(map[string]*canonicalField, len(allowList))
)

func init() {
	for i := range allowList {
		f := &allowList[i]
		byModernKey[f.Key] = f
		byLegacyKey[f.Legacy] = f
	}
}

// IsCanonical reports whether key is a modern allow-listed payload key.
func IsCanonical(key string) bool {
	_, ok := byModernKey[key]
	return ok
}
