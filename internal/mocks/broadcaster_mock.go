package mocks

import (
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockBroadcaster is a mock implementation of the realtime push surface.
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) BroadcastTelemetry(deviceID string, record *models.TelemetryRecord) {
	m.Called(deviceID, record)
}

func (m *MockBroadcaster) BroadcastAlarm(alarm *models.Alarm) {
	m.Called(alarm)
}

func (m *MockBroadcaster) BroadcastCommandStatus(deviceID, commandID, status, message string) {
	m.Called(deviceID, commandID, status, message)
}

func (m *MockBroadcaster) BroadcastDeviceStatus(deviceID, clientID, status string) {
	m.Called(deviceID, clientID, status)
}

func (m *MockBroadcaster) BroadcastCreditAlert(clientID string, payload map[string]interface{}) {
	m.Called(clientID, payload)
}

func (m *MockBroadcaster) BroadcastNotification(clientID string, payload map[string]interface{}) {
	m.Called(clientID, payload)
}

func (m *MockBroadcaster) BroadcastSystemStats(stats interface{}) {
	m.Called(stats)
}
