package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/commandqueue"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/mocks"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newDispatchFixture() (*CommandDispatchService, *commandqueue.Queue, *mocks.MockCommandPublisher, *mocks.MockMQTTClient) {
	mqttClient := new(mocks.MockMQTTClient)
	publisher := new(mocks.MockCommandPublisher)
	queue := commandqueue.NewQueue(zerolog.Nop())
	svc := NewCommandDispatchService("platform/commands/queue", 1, time.Second,
		mqttClient, queue, publisher, zerolog.Nop())
	return svc, queue, publisher, mqttClient
}

func enqueuePayload(t *testing.T, svc *CommandDispatchService, cmd models.DeviceCommand) {
	t.Helper()
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)
	svc.HandleEnqueue(nil, mocks.NewMockMessage("platform/commands/queue", payload))
}

func TestHandleEnqueue_ValidCommand(t *testing.T) {
	svc, queue, _, _ := newDispatchFixture()

	enqueuePayload(t, svc, models.DeviceCommand{
		CommandID: "cmd-1",
		DeviceID:  "meter-001",
		Type:      "relay_control",
		Priority:  "HIGH",
	})

	stats := queue.Stats()
	assert.Equal(t, 1, stats.QueuedTotal)
	assert.Equal(t, 1, stats.Queued[constants.PriorityHigh])
}

func TestHandleEnqueue_GeneratesMissingCommandID(t *testing.T) {
	svc, queue, _, _ := newDispatchFixture()

	enqueuePayload(t, svc, models.DeviceCommand{
		DeviceID: "meter-001",
		Type:     "relay_control",
		Priority: "LOW",
	})

	qc := queue.Dequeue()
	require.NotNil(t, qc)
	assert.NotEmpty(t, qc.Command.CommandID)
	assert.False(t, qc.Command.Timestamp.IsZero())
}

func TestHandleEnqueue_NormalizesPriority(t *testing.T) {
	svc, queue, _, _ := newDispatchFixture()

	enqueuePayload(t, svc, models.DeviceCommand{
		CommandID: "cmd-lc", DeviceID: "meter-001", Type: "ping", Priority: "critical",
	})
	enqueuePayload(t, svc, models.DeviceCommand{
		CommandID: "cmd-odd", DeviceID: "meter-001", Type: "ping", Priority: "WHENEVER",
	})

	stats := queue.Stats()
	assert.Equal(t, 1, stats.Queued[constants.PriorityCritical])
	assert.Equal(t, 1, stats.Queued[constants.PriorityMedium])
}

func TestHandleEnqueue_DropsInvalidCommands(t *testing.T) {
	svc, queue, _, _ := newDispatchFixture()

	svc.HandleEnqueue(nil, mocks.NewMockMessage("platform/commands/queue", []byte("not json")))
	enqueuePayload(t, svc, models.DeviceCommand{CommandID: "no-device", Type: "ping"})
	enqueuePayload(t, svc, models.DeviceCommand{CommandID: "no-type", DeviceID: "meter-001"})

	assert.Equal(t, 0, queue.Stats().QueuedTotal)
}

func TestDispatchNext_PublishesAndCompletes(t *testing.T) {
	svc, queue, publisher, _ := newDispatchFixture()
	publisher.On("Publish", mock.Anything).Return(nil)

	enqueuePayload(t, svc, models.DeviceCommand{
		CommandID: "cmd-1", DeviceID: "meter-001", Type: "relay_control", Priority: "HIGH",
	})
	svc.dispatchNext()

	publisher.AssertNumberOfCalls(t, "Publish", 1)
	stats := queue.Stats()
	assert.Equal(t, 0, stats.QueuedTotal)
	assert.Equal(t, 0, stats.Processing)
	assert.Equal(t, 0, stats.Failed)
}

func TestDispatchNext_EmptyQueueIsNoOp(t *testing.T) {
	svc, _, publisher, _ := newDispatchFixture()

	svc.dispatchNext()

	publisher.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestDispatchNext_PublishFailureRetriesHighPriority(t *testing.T) {
	svc, queue, publisher, _ := newDispatchFixture()
	publisher.On("Publish", mock.Anything).Return(errors.New("broker unavailable")).Once()
	publisher.On("Publish", mock.Anything).Return(nil).Once()

	enqueuePayload(t, svc, models.DeviceCommand{
		CommandID: "cmd-retry", DeviceID: "meter-001", Type: "relay_control", Priority: "HIGH",
	})

	svc.dispatchNext()
	assert.Equal(t, 1, queue.Stats().QueuedTotal, "failed HIGH command should be requeued")

	svc.dispatchNext()
	assert.Equal(t, 0, queue.Stats().QueuedTotal)
	assert.Equal(t, 0, queue.Stats().Failed)
	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestDispatchNext_PublishFailureDoesNotRetryLowPriority(t *testing.T) {
	svc, queue, publisher, _ := newDispatchFixture()
	publisher.On("Publish", mock.Anything).Return(errors.New("broker unavailable"))

	enqueuePayload(t, svc, models.DeviceCommand{
		CommandID: "cmd-low", DeviceID: "meter-001", Type: "ping", Priority: "LOW",
	})
	svc.dispatchNext()

	stats := queue.Stats()
	assert.Equal(t, 0, stats.QueuedTotal)
	assert.Equal(t, 1, stats.Failed)
	publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestDispatchNext_ExpiredCommandIsNeverPublished(t *testing.T) {
	svc, queue, publisher, _ := newDispatchFixture()

	past := time.Now().Add(-time.Minute)
	enqueuePayload(t, svc, models.DeviceCommand{
		CommandID: "cmd-stale", DeviceID: "meter-001", Type: "ping", Priority: "CRITICAL",
		ExpiresAt: &past,
	})
	svc.dispatchNext()

	publisher.AssertNotCalled(t, "Publish", mock.Anything)
	assert.Equal(t, 1, queue.Stats().Failed)
}

func TestStartStop_Lifecycle(t *testing.T) {
	svc, _, publisher, mqttClient := newDispatchFixture()
	mqttClient.On("Subscribe", "platform/commands/queue", byte(1), mock.Anything).Return(nil)
	mqttClient.On("Unsubscribe", []string{"platform/commands/queue"}).Return(nil)
	publisher.On("Close").Return(nil)

	require.NoError(t, svc.Start())
	assert.True(t, svc.Running())
	// A second start is a no-op.
	require.NoError(t, svc.Start())
	mqttClient.AssertNumberOfCalls(t, "Subscribe", 1)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.Running())
	require.NoError(t, svc.Stop())
	mqttClient.AssertNumberOfCalls(t, "Unsubscribe", 1)
	publisher.AssertNumberOfCalls(t, "Close", 1)
}

func TestStart_SubscribeFailurePropagates(t *testing.T) {
	svc, _, _, mqttClient := newDispatchFixture()
	mqttClient.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	assert.Error(t, svc.Start())
	assert.False(t, svc.Running())
}
