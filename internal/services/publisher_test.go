package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/mocks"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPublish_UsesPerDeviceTopic(t *testing.T) {
	mqttClient := new(mocks.MockMQTTClient)
	p := NewMQTTCommandPublisher("devices", 1, mqttClient, zerolog.Nop())

	var captured []byte
	mqttClient.On("Publish", "devices/meter-001/commands", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(3).([]byte)
		}).Return(nil)

	cmd := &models.DeviceCommand{
		CommandID: "cmd-1", DeviceID: "meter-001", Type: "relay_control", Priority: "HIGH",
	}
	require.NoError(t, p.Publish(cmd))

	mqttClient.AssertExpectations(t)
	var decoded models.DeviceCommand
	require.NoError(t, json.Unmarshal(captured, &decoded))
	assert.Equal(t, "cmd-1", decoded.CommandID)
	assert.Equal(t, "relay_control", decoded.Type)
}

func TestPublish_PropagatesBrokerError(t *testing.T) {
	mqttClient := new(mocks.MockMQTTClient)
	p := NewMQTTCommandPublisher("devices", 1, mqttClient, zerolog.Nop())
	mqttClient.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable"))

	err := p.Publish(&models.DeviceCommand{CommandID: "cmd-1", DeviceID: "meter-001", Type: "ping"})
	assert.Error(t, err)
	assert.Equal(t, 0, p.QueueSize())
}

func TestPublisher_Close(t *testing.T) {
	p := NewMQTTCommandPublisher("devices", 1, new(mocks.MockMQTTClient), zerolog.Nop())
	assert.NoError(t, p.Close())
}
