package telemetry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransformer() *Transformer {
	return NewTransformer(zerolog.Nop())
}

func TestTransform_ModernFlatPayload(t *testing.T) {
	tr := newTestTransformer()

	record, unknown, err := tr.Transform("meter-001", []byte(`{
		"voltage_v": 231.5,
		"current_a": 4.2,
		"relay_on": true,
		"firmware_version": "2.4.1"
	}`))

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "meter-001", record.DeviceID)
	require.NotNil(t, record.VoltageV)
	assert.Equal(t, 231.5, *record.VoltageV)
	require.NotNil(t, record.CurrentA)
	assert.Equal(t, 4.2, *record.CurrentA)
	require.NotNil(t, record.RelayOn)
	assert.True(t, *record.RelayOn)
	require.NotNil(t, record.FirmwareVersion)
	assert.Equal(t, "2.4.1", *record.FirmwareVersion)
	assert.Empty(t, unknown)
}

func TestTransform_LegacyNestedPayload(t *testing.T) {
	tr := newTestTransformer()

	record, unknown, err := tr.Transform("meter-002", []byte(`{
		"metrics": {
			"voltage": {"value": 229.8},
			"power": {"value": 950},
			"relay": {"value": 1}
		}
	}`))

	require.NoError(t, err)
	require.NotNil(t, record.VoltageV)
	assert.Equal(t, 229.8, *record.VoltageV)
	require.NotNil(t, record.PowerW)
	assert.Equal(t, 950.0, *record.PowerW)
	require.NotNil(t, record.RelayOn)
	assert.True(t, *record.RelayOn)
	assert.Empty(t, unknown)
}

func TestTransform_LegacyAndModernProduceSameCanonicalField(t *testing.T) {
	tr := newTestTransformer()

	legacy, _, err := tr.Transform("m1", []byte(`{"metrics":{"voltage":{"value":230.0}}}`))
	require.NoError(t, err)
	modern, _, err := tr.Transform("m1", []byte(`{"voltage_v":230.0}`))
	require.NoError(t, err)

	require.NotNil(t, legacy.VoltageV)
	require.NotNil(t, modern.VoltageV)
	assert.Equal(t, *legacy.VoltageV, *modern.VoltageV)
}

func TestTransform_ModernOverridesLegacy(t *testing.T) {
	tr := newTestTransformer()

	record, _, err := tr.Transform("m1", []byte(`{
		"voltage_v": 231.0,
		"metrics": {"voltage": {"value": 215.0}}
	}`))

	require.NoError(t, err)
	require.NotNil(t, record.VoltageV)
	assert.Equal(t, 231.0, *record.VoltageV)
}

func TestTransform_LegacyBareScalarValue(t *testing.T) {
	tr := newTestTransformer()

	record, _, err := tr.Transform("m1", []byte(`{"metrics":{"temperature": 21.5}}`))

	require.NoError(t, err)
	require.NotNil(t, record.TemperatureC)
	assert.Equal(t, 21.5, *record.TemperatureC)
}

func TestTransform_UnknownFieldsKeptVerbatim(t *testing.T) {
	tr := newTestTransformer()

	record, unknown, err := tr.Transform("m1", []byte(`{
		"voltage_v": 230.0,
		"harmonics_thd": 3.2,
		"vendor_blob": {"a": 1}
	}`))

	require.NoError(t, err)
	assert.Equal(t, 3.2, unknown["harmonics_thd"])
	assert.Contains(t, unknown, "vendor_blob")
	assert.NotContains(t, unknown, "voltage_v")
	assert.Equal(t, unknown, record.UnknownFields)
}

func TestTransform_UnknownLegacyMetricGetsPrefix(t *testing.T) {
	tr := newTestTransformer()

	_, unknown, err := tr.Transform("m1", []byte(`{"metrics":{"harmonics": {"value": 2.1}}}`))

	require.NoError(t, err)
	assert.Equal(t, 2.1, unknown["metrics.harmonics"])
	assert.NotContains(t, unknown, "harmonics")
}

func TestTransform_EnvelopeKeysAreNeverUnknown(t *testing.T) {
	tr := newTestTransformer()

	_, unknown, err := tr.Transform("m1", []byte(`{
		"device_id": "m1",
		"timestamp": "2026-08-24T10:00:00Z",
		"ts": 1756029600000,
		"metrics": {},
		"voltage_v": 230.0
	}`))

	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestTransform_RejectsMissingDeviceID(t *testing.T) {
	tr := newTestTransformer()

	_, _, err := tr.Transform("", []byte(`{"voltage_v": 230.0}`))
	assert.Error(t, err)
}

func TestTransform_RejectsNonObjectPayload(t *testing.T) {
	tr := newTestTransformer()

	for _, payload := range []string{`[1,2,3]`, `"text"`, `not json`, `null`} {
		_, _, err := tr.Transform("m1", []byte(payload))
		assert.Error(t, err, "payload %s should be rejected", payload)
	}
}

func TestTransform_MalformedCanonicalValueIsSkippedNotFatal(t *testing.T) {
	tr := newTestTransformer()

	record, unknown, err := tr.Transform("m1", []byte(`{
		"voltage_v": "not-a-number",
		"current_a": 3.1
	}`))

	require.NoError(t, err)
	assert.Nil(t, record.VoltageV)
	require.NotNil(t, record.CurrentA)
	assert.Equal(t, 3.1, *record.CurrentA)
	// A malformed value for a known key is skipped, not treated as unknown.
	assert.NotContains(t, unknown, "voltage_v")
}

func TestTransform_BoolAcceptsZeroOne(t *testing.T) {
	tr := newTestTransformer()

	record, _, err := tr.Transform("m1", []byte(`{"relay_on": 0, "valve_open": 1}`))

	require.NoError(t, err)
	require.NotNil(t, record.RelayOn)
	assert.False(t, *record.RelayOn)
	require.NotNil(t, record.ValveOpen)
	assert.True(t, *record.ValveOpen)
}

func TestTransform_SparsePayloadLeavesOthersUnset(t *testing.T) {
	tr := newTestTransformer()

	record, _, err := tr.Transform("m1", []byte(`{"voltage_v": 230.0}`))

	require.NoError(t, err)
	assert.Nil(t, record.CurrentA)
	assert.Nil(t, record.PowerW)
	assert.Nil(t, record.RelayOn)
	assert.Nil(t, record.FirmwareVersion)
}

func TestTransform_TimestampSources(t *testing.T) {
	tr := newTestTransformer()

	record, _, err := tr.Transform("m1", []byte(`{"timestamp": "2026-08-24T10:30:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC), record.Timestamp)

	record, _, err = tr.Transform("m1", []byte(`{"timestamp": 1756031400}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1756031400), record.Timestamp.Unix())

	record, _, err = tr.Transform("m1", []byte(`{"ts": 1756031400123}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1756031400123), record.Timestamp.UnixMilli())

	before := time.Now().UTC()
	record, _, err = tr.Transform("m1", []byte(`{"voltage_v": 230.0}`))
	require.NoError(t, err)
	assert.False(t, record.Timestamp.Before(before))
}

func TestTransform_PreservesRawPayload(t *testing.T) {
	tr := newTestTransformer()
	payload := []byte(`{"voltage_v": 230.0, "oddball": 7}`)

	record, _, err := tr.Transform("m1", payload)

	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(record.Raw))
}

func TestIsCanonical(t *testing.T) {
	assert.True(t, IsCanonical("voltage_v"))
	assert.True(t, IsCanonical("tamper_detected"))
	assert.False(t, IsCanonical("voltage"))
	assert.False(t, IsCanonical("harmonics_thd"))
}
