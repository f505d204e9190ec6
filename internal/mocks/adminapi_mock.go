package mocks

import (
	"context"

	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockAdminAPI is a mock implementation of the administrative API client.
type MockAdminAPI struct {
	mock.Mock
}

func (m *MockAdminAPI) SubmitTelemetry(ctx context.Context, record *models.TelemetryRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAdminAPI) EvaluateAlarms(ctx context.Context, record *models.TelemetryRecord) ([]models.Alarm, error) {
	args := m.Called(ctx, record)
	if alarms, ok := args.Get(0).([]models.Alarm); ok {
		return alarms, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAdminAPI) UpdateCommandStatus(ctx context.Context, deviceID, commandID string, update models.CommandStatusUpdate) error {
	args := m.Called(ctx, deviceID, commandID, update)
	return args.Error(0)
}

func (m *MockAdminAPI) SubmitUnknownField(ctx context.Context, entry *models.UnknownFieldEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAdminAPI) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	args := m.Called(ctx, deviceID)
	if device, ok := args.Get(0).(*models.Device); ok {
		return device, args.Error(1)
	}
	return nil, args.Error(1)
}
