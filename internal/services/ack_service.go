package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/commandqueue"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/sensorgrid/iot-core/internal/observability"
	"github.com/sensorgrid/iot-core/internal/realtime"
	"github.com/sensorgrid/iot-core/pkg/adminapi"
	"github.com/sensorgrid/iot-core/pkg/mqtt"
)

var terminalAckStatuses = map[string]struct{}{
	constants.AckStatusCompleted: {},
	constants.AckStatusFailed:    {},
	constants.AckStatusTimeout:   {},
}

var validAckStatuses = map[string]struct{}{
	constants.AckStatusReceived:  {},
	constants.AckStatusExecuting: {},
	constants.AckStatusCompleted: {},
	constants.AckStatusFailed:    {},
	constants.AckStatusTimeout:   {},
}

// AckService validates inbound command acknowledgments and folds them into
// command state. Malformed acks are dropped without retry: redelivery of
// the same bytes cannot succeed.
type AckService struct {
	// Configuration fields
	subTopic string
	qos      int

	// Dependencies
	mqttClient mqtt.Client
	adminAPI   adminapi.Client
	queue      *commandqueue.Queue
	hub        realtime.Broadcaster
	logger     zerolog.Logger

	// Internal state management
	stopChan chan struct{}
	mu       sync.Mutex
}

// NewAckService initializes a new AckService.
func NewAckService(subTopic string, qos int, mqttClient mqtt.Client, adminAPI adminapi.Client,
	queue *commandqueue.Queue, hub realtime.Broadcaster, logger zerolog.Logger) *AckService {

	return &AckService{
		subTopic:   subTopic,
		qos:        qos,
		mqttClient: mqttClient,
		adminAPI:   adminAPI,
		queue:      queue,
		hub:        hub,
		stopChan:   make(chan struct{}),
		logger:     logger.With().Str("service", "ack").Logger(),
	}
}

// Start subscribes to the acknowledgment topic filter.
func (s *AckService) Start() error {
	s.logger.Info().Str("topic", s.subTopic).Msg("Starting AckService and subscribing to ack topic")
	if err := s.mqttClient.Subscribe(s.subTopic, byte(s.qos), s.HandleAck); err != nil {
		s.logger.Error().Err(err).Str("topic", s.subTopic).Msg("Failed to subscribe to ack topic")
		return err
	}
	return nil
}

// Stop unsubscribes from the acknowledgment topic.
func (s *AckService) Stop() error {
	s.mu.Lock()
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.mu.Unlock()

	if err := s.mqttClient.Unsubscribe(s.subTopic); err != nil {
		s.logger.Error().Err(err).Str("topic", s.subTopic).Msg("Failed to unsubscribe from ack topic")
		return err
	}
	s.logger.Info().Msg("AckService stopped")
	return nil
}

// HandleAck processes one acknowledgment message: validate, push the status
// update downstream, settle the queue entry for terminal statuses, and
// attempt a realtime broadcast. Broadcast failure never fails the ack.
func (s *AckService) HandleAck(client MQTT.Client, msg MQTT.Message) {
	select {
	case <-s.stopChan:
		s.logger.Warn().Msg("Received ack but service is stopping, ignoring message")
		return
	default:
	}

	ack, ok := s.parseAck(msg.Payload())
	if !ok {
		observability.AcksDropped.Inc()
		return
	}

	update := models.CommandStatusUpdate{
		Status:        ack.Status,
		Message:       ack.Message,
		ExecutionData: ack.ExecutionData,
		Timestamp:     ack.Timestamp,
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}

	if err := s.adminAPI.UpdateCommandStatus(context.Background(), ack.DeviceID, ack.CommandID, update); err != nil {
		s.logger.Error().Err(err).Str("command_id", ack.CommandID).
			Msg("Failed to push command status update")
	}

	if _, terminal := terminalAckStatuses[ack.Status]; terminal {
		if ack.Status == constants.AckStatusCompleted {
			s.queue.MarkCompleted(ack.CommandID)
		} else {
			s.queue.MarkFailed(ack.CommandID, "device reported "+ack.Status, false)
		}
	}

	s.broadcastStatus(ack)
	observability.AcksProcessed.Inc()
}

// parseAck validates the raw acknowledgment shape. Invalid acks are logged
// and dropped.
func (s *AckService) parseAck(payload []byte) (*models.CommandAcknowledgment, bool) {
	var ack models.CommandAcknowledgment
	if err := json.Unmarshal(payload, &ack); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed acknowledgment payload")
		return nil, false
	}
	if ack.DeviceID == "" || ack.CommandID == "" {
		s.logger.Warn().Msg("Dropping acknowledgment without device id or command id")
		return nil, false
	}
	if _, ok := validAckStatuses[ack.Status]; !ok {
		s.logger.Warn().Str("status", ack.Status).Str("command_id", ack.CommandID).
			Msg("Dropping acknowledgment with unrecognized status")
		return nil, false
	}
	return &ack, true
}

// broadcastStatus mirrors the change to realtime subscribers, isolating any
// failure from the ack path.
func (s *AckService) broadcastStatus(ack *models.CommandAcknowledgment) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("command_id", ack.CommandID).
				Msg("Command status broadcast failed")
		}
	}()
	s.hub.BroadcastCommandStatus(ack.DeviceID, ack.CommandID, ack.Status, ack.Message)
}
