package adminapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/models"
)

// Client defines the administrative API operations consumed by the
// communication core. All calls carry the service credential.
type Client interface {
	SubmitTelemetry(ctx context.Context, record *models.TelemetryRecord) error
	EvaluateAlarms(ctx context.Context, record *models.TelemetryRecord) ([]models.Alarm, error)
	UpdateCommandStatus(ctx context.Context, deviceID, commandID string, update models.CommandStatusUpdate) error
	SubmitUnknownField(ctx context.Context, entry *models.UnknownFieldEntry) error
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
}

// HTTPClient implements Client over the administrative REST API.
type HTTPClient struct {
	rest   *resty.Client
	logger zerolog.Logger
}

// NewHTTPClient creates an administrative API client. Transient failures on
// idempotent calls are retried twice with backoff; anything beyond that is
// the caller's policy.
func NewHTTPClient(baseURL, serviceKey string, logger zerolog.Logger) *HTTPClient {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-Service-Key", serviceKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &HTTPClient{
		rest:   rest,
		logger: logger.With().Str("component", "adminapi").Logger(),
	}
}

// SubmitTelemetry persists a processed telemetry record.
func (c *HTTPClient) SubmitTelemetry(ctx context.Context, record *models.TelemetryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTelemetrySubmitTimeout)
	defer cancel()

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(record).
		Post("/internal/telemetry")
	if err != nil {
		return fmt.Errorf("telemetry submit failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telemetry submit rejected with status %d", resp.StatusCode())
	}
	return nil
}

// EvaluateAlarms asks the administrative API to evaluate alarm rules against
// a record and returns any alarms it raised.
func (c *HTTPClient) EvaluateAlarms(ctx context.Context, record *models.TelemetryRecord) ([]models.Alarm, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultAdminAPITimeout)
	defer cancel()

	var alarms []models.Alarm
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(record).
		SetResult(&alarms).
		Post("/internal/alarms/evaluate")
	if err != nil {
		return nil, fmt.Errorf("alarm evaluation failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("alarm evaluation rejected with status %d", resp.StatusCode())
	}
	return alarms, nil
}

// UpdateCommandStatus pushes a command status change keyed by device and
// command id.
func (c *HTTPClient) UpdateCommandStatus(ctx context.Context, deviceID, commandID string, update models.CommandStatusUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultAdminAPITimeout)
	defer cancel()

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(update).
		SetPathParams(map[string]string{
			"deviceId":  deviceID,
			"commandId": commandID,
		}).
		Put("/internal/devices/{deviceId}/commands/{commandId}/status")
	if err != nil {
		return fmt.Errorf("command status update failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("command status update rejected with status %d", resp.StatusCode())
	}
	return nil
}

// SubmitUnknownField upserts an unknown-field catalog entry.
func (c *HTTPClient) SubmitUnknownField(ctx context.Context, entry *models.UnknownFieldEntry) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultAdminAPITimeout)
	defer cancel()

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(entry).
		Post("/internal/catalog/unknown-fields")
	if err != nil {
		return fmt.Errorf("unknown-field submit failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("unknown-field submit rejected with status %d", resp.StatusCode())
	}
	return nil
}

// GetDevice fetches device metadata. Callers treat failures as best-effort.
func (c *HTTPClient) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultDeviceContextTimeout)
	defer cancel()

	var device models.Device
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&device).
		SetPathParam("deviceId", deviceID).
		Get("/internal/devices/{deviceId}")
	if err != nil {
		return nil, fmt.Errorf("device lookup failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("device lookup rejected with status %d", resp.StatusCode())
	}
	return &device, nil
}
