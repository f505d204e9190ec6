package services

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/sensorgrid/iot-core/pkg/mqtt"
)

// CommandPublisher owns the outbound broker path for device commands.
type CommandPublisher interface {
	Publish(cmd *models.DeviceCommand) error
	QueueSize() int
	Close() error
}

// MQTTCommandPublisher publishes commands to per-device topics over the
// shared broker connection.
type MQTTCommandPublisher struct {
	topicPrefix string
	qos         int
	mqttClient  mqtt.Client
	inFlight    int32
	logger      zerolog.Logger
}

// NewMQTTCommandPublisher creates a publisher. topicPrefix is typically
// "devices"; commands go to <prefix>/<deviceId>/commands.
func NewMQTTCommandPublisher(topicPrefix string, qos int, mqttClient mqtt.Client, logger zerolog.Logger) *MQTTCommandPublisher {
	return &MQTTCommandPublisher{
		topicPrefix: topicPrefix,
		qos:         qos,
		mqttClient:  mqttClient,
		logger:      logger.With().Str("component", "publisher").Logger(),
	}
}

// Publish sends one command to its device topic, blocking until the broker
// accepts or rejects it.
func (p *MQTTCommandPublisher) Publish(cmd *models.DeviceCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to serialize command %s: %w", cmd.CommandID, err)
	}

	topic := fmt.Sprintf("%s/%s/commands", p.topicPrefix, cmd.DeviceID)
	atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)

	if err := p.mqttClient.Publish(topic, byte(p.qos), false, payload); err != nil {
		p.logger.Error().Err(err).Str("command_id", cmd.CommandID).Str("topic", topic).
			Msg("Failed to publish command")
		return err
	}

	p.logger.Debug().Str("command_id", cmd.CommandID).Str("topic", topic).Msg("Command published")
	return nil
}

// QueueSize reports publishes currently waiting on the broker.
func (p *MQTTCommandPublisher) QueueSize() int {
	return int(atomic.LoadInt32(&p.inFlight))
}

// Close releases the publisher. The broker connection is shared and owned
// by main, so there is nothing to flush here.
func (p *MQTTCommandPublisher) Close() error {
	p.logger.Info().Msg("Command publisher closed")
	return nil
}
