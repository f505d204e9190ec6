package mocks

import (
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockCommandPublisher is a mock implementation of the outbound command
// publisher.
type MockCommandPublisher struct {
	mock.Mock
}

func (m *MockCommandPublisher) Publish(cmd *models.DeviceCommand) error {
	args := m.Called(cmd)
	return args.Error(0)
}

func (m *MockCommandPublisher) QueueSize() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockCommandPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
