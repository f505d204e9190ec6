package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/models"
)

// Envelope keys that are part of the payload structure itself and therefore
// neither canonical measurements nor unknown fields.
var envelopeKeys = map[string]struct{}{
	"device_id": {},
	"timestamp": {},
	"ts":        {},
	"metrics":   {},
}

// Transformer normalizes raw device payloads into canonical telemetry
// records. It supports two payload generations: the modern flat shape with
// suffix-named keys, and the legacy shape nesting measurements under
// "metrics" as {name: {"value": x}}. When both describe the same metric the
// modern value wins.
type Transformer struct {
	logger zerolog.Logger
}

// NewTransformer creates a Transformer.
func NewTransformer(logger zerolog.Logger) *Transformer {
	return &Transformer{
		logger: logger.With().Str("component", "transformer").Logger(),
	}
}

// Transform validates and normalizes one raw payload for the given device.
// It returns the canonical record and the unknown-field bag, or a validation
// error when the payload is structurally unusable. Individual malformed
// metrics are skipped, not fatal.
func (t *Transformer) Transform(deviceID string, payload []byte) (*models.TelemetryRecord, map[string]interface{}, error) {
	if deviceID == "" {
		return nil, nil, fmt.Errorf("telemetry payload has no device id")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("payload is empty")
	}

	record := &models.TelemetryRecord{
		DeviceID:  deviceID,
		Timestamp: t.extractTimestamp(raw),
		Raw:       json.RawMessage(payload),
	}
	unknown := make(map[string]interface{})

	// Legacy generation first so modern flat keys override it.
	if metrics, ok := raw["metrics"].(map[string]interface{}); ok {
		t.applyLegacy(record, metrics, unknown)
	}

	for key, value := range raw {
		if _, isEnvelope := envelopeKeys[key]; isEnvelope {
			continue
		}
		field, ok := byModernKey[key]
		if !ok {
			unknown[key] = value
			continue
		}
		if !field.assign(record, value) {
			t.logger.Debug().Str("device_id", deviceID).Str("field", key).
				Interface("value", value).Msg("Skipping malformed canonical field")
		}
	}

	if len(unknown) > 0 {
		record.UnknownFields = unknown
	}
	return record, unknown, nil
}

// applyLegacy maps legacy nested metrics onto the record. A metric value may
// be a {"value": x} object or a bare scalar. Legacy metric names outside the
// allow-list are cataloged under a "metrics." prefix to keep them
// distinguishable from top-level unknowns.
func (t *Transformer) applyLegacy(record *models.TelemetryRecord, metrics map[string]interface{}, unknown map[string]interface{}) {
	for name, entry := range metrics {
		value := entry
		if obj, ok := entry.(map[string]interface{}); ok {
			v, present := obj["value"]
			if !present {
				t.logger.Debug().Str("device_id", record.DeviceID).Str("metric", name).
					Msg("Legacy metric has no value key, skipping")
				continue
			}
			value = v
		}

		field, ok := byLegacyKey[name]
		if !ok {
			unknown["metrics."+name] = value
			continue
		}
		if !field.assign(record, value) {
			t.logger.Debug().Str("device_id", record.DeviceID).Str("metric", name).
				Interface("value", value).Msg("Skipping malformed legacy metric")
		}
	}
}

// extractTimestamp resolves the reading time from the envelope: "timestamp"
// as RFC3339 or epoch seconds, "ts" as epoch milliseconds, falling back to
// the ingestion time.
func (t *Transformer) extractTimestamp(raw map[string]interface{}) time.Time {
	if v, ok := raw["timestamp"]; ok {
		switch ts := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				return parsed
			}
		case float64:
			return time.Unix(int64(ts), 0).UTC()
		}
	}
	if v, ok := raw["ts"].(float64); ok {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Now().UTC()
}
