package catalog

import (
	"context"
	"fmt"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/sensorgrid/iot-core/pkg/adminapi"
)

// Cataloger records metadata about unrecognized payload fields. It is purely
// advisory schema-evolution infrastructure: context-fetch failures do not
// fail cataloging, and cataloging failures never reach the ingestion path.
type Cataloger struct {
	entries cmap.ConcurrentMap[string, *models.UnknownFieldEntry]
	api     adminapi.Client
	logger  zerolog.Logger
}

// NewCataloger creates a Cataloger backed by the administrative API.
func NewCataloger(api adminapi.Client, logger zerolog.Logger) *Cataloger {
	return &Cataloger{
		entries: cmap.New[*models.UnknownFieldEntry](),
		api:     api,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

// Observe upserts a catalog entry for every unknown field in one telemetry
// payload. The device context is fetched best-effort once per observation.
func (c *Cataloger) Observe(ctx context.Context, deviceID string, fields map[string]interface{}) {
	if len(fields) == 0 {
		return
	}

	deviceCtx := c.fetchDeviceContext(ctx, deviceID)
	now := time.Now().UTC()

	for name, value := range fields {
		snapshot := c.upsert(name, value, deviceCtx, now)
		if err := c.api.SubmitUnknownField(ctx, snapshot); err != nil {
			c.logger.Warn().Err(err).Str("field", name).Msg("Failed to submit unknown-field entry")
		}
	}
}

// upsert applies one observation under the shard lock. Entries are
// copy-on-write: the stored pointer is never mutated after publication, so
// readers need no further locking.
func (c *Cataloger) upsert(name string, value interface{}, deviceCtx *models.DeviceContext, now time.Time) *models.UnknownFieldEntry {
	var snapshot *models.UnknownFieldEntry

	c.entries.Upsert(name, nil, func(exists bool, current, _ *models.UnknownFieldEntry) *models.UnknownFieldEntry {
		next := &models.UnknownFieldEntry{
			FieldName: name,
			FirstSeen: now,
			LastSeen:  now,
		}
		if exists && current != nil {
			next.FirstSeen = current.FirstSeen
			next.OccurrenceCount = current.OccurrenceCount
			next.SampleValues = append([]interface{}(nil), current.SampleValues...)
			next.DeviceContexts = append([]models.DeviceContext(nil), current.DeviceContexts...)
		}
		next.OccurrenceCount++

		if len(next.SampleValues) < constants.MaxCatalogValueSamples && !containsValue(next.SampleValues, value) {
			next.SampleValues = append(next.SampleValues, value)
		}
		if deviceCtx != nil && len(next.DeviceContexts) < constants.MaxCatalogContextSnapshots {
			next.DeviceContexts = append(next.DeviceContexts, *deviceCtx)
		}

		snapshot = next
		return next
	})

	return snapshot
}

// fetchDeviceContext resolves device metadata with a short timeout. A nil
// return means the observation is recorded without context.
func (c *Cataloger) fetchDeviceContext(ctx context.Context, deviceID string) *models.DeviceContext {
	if deviceID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DefaultDeviceContextTimeout)
	defer cancel()

	device, err := c.api.GetDevice(ctx, deviceID)
	if err != nil {
		c.logger.Debug().Err(err).Str("device_id", deviceID).Msg("Device context lookup failed, cataloging without context")
		return &models.DeviceContext{
			DeviceID:   deviceID,
			ObservedAt: time.Now().UTC(),
		}
	}

	return &models.DeviceContext{
		DeviceID:        device.ID,
		ClientID:        device.ClientID,
		Type:            device.Type,
		Model:           device.Model,
		FirmwareVersion: device.FirmwareVersion,
		InstallDate:     device.InstallDate,
		ObservedAt:      time.Now().UTC(),
	}
}

// Snapshot returns every catalog entry for introspection.
func (c *Cataloger) Snapshot() []models.UnknownFieldEntry {
	entries := make([]models.UnknownFieldEntry, 0, c.entries.Count())
	for item := range c.entries.IterBuffered() {
		entries = append(entries, *item.Val)
	}
	return entries
}

// Count returns the number of distinct unknown fields seen.
func (c *Cataloger) Count() int {
	return c.entries.Count()
}

func containsValue(samples []interface{}, value interface{}) bool {
	needle := fmt.Sprint(value)
	for _, s := range samples {
		if fmt.Sprint(s) == needle {
			return true
		}
	}
	return false
}
