package services

import (
	"context"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/catalog"
	"github.com/sensorgrid/iot-core/internal/observability"
	"github.com/sensorgrid/iot-core/internal/realtime"
	"github.com/sensorgrid/iot-core/internal/telemetry"
	"github.com/sensorgrid/iot-core/internal/utils"
	"github.com/sensorgrid/iot-core/pkg/adminapi"
	"github.com/sensorgrid/iot-core/pkg/mqtt"
)

// IngestionService consumes device telemetry from the broker, normalizes it
// and forwards it downstream. The broker callback never blocks: all heavy
// work runs on the bounded dispatch queue so one slow admin API call cannot
// stall subsequent messages.
type IngestionService struct {
	// Configuration fields
	subTopic     string
	qos          int
	drainTimeout time.Duration

	// Dependencies
	mqttClient    mqtt.Client
	transformer   *telemetry.Transformer
	cataloger     *catalog.Cataloger
	adminAPI      adminapi.Client
	hub           realtime.Broadcaster
	dispatchQueue *utils.DispatchQueue
	logger        zerolog.Logger

	// Internal state management
	stopChan chan struct{}
	mu       sync.Mutex
}

// NewIngestionService initializes a new IngestionService.
func NewIngestionService(subTopic string, qos int, drainTimeout time.Duration, mqttClient mqtt.Client,
	transformer *telemetry.Transformer, cataloger *catalog.Cataloger, adminAPI adminapi.Client,
	hub realtime.Broadcaster, dispatchQueue *utils.DispatchQueue, logger zerolog.Logger) *IngestionService {

	if drainTimeout == 0 {
		drainTimeout = 30 * time.Second
	}

	return &IngestionService{
		subTopic:      subTopic,
		qos:           qos,
		drainTimeout:  drainTimeout,
		mqttClient:    mqttClient,
		transformer:   transformer,
		cataloger:     cataloger,
		adminAPI:      adminAPI,
		hub:           hub,
		dispatchQueue: dispatchQueue,
		stopChan:      make(chan struct{}),
		logger:        logger.With().Str("service", "ingestion").Logger(),
	}
}

// Start subscribes to the telemetry topic filter.
func (s *IngestionService) Start() error {
	s.logger.Info().Str("topic", s.subTopic).Msg("Starting IngestionService and subscribing to telemetry topic")
	if err := s.mqttClient.Subscribe(s.subTopic, byte(s.qos), s.HandleTelemetry); err != nil {
		s.logger.Error().Err(err).Str("topic", s.subTopic).Msg("Failed to subscribe to telemetry topic")
		return err
	}
	s.logger.Info().Str("topic", s.subTopic).Msg("Successfully subscribed to telemetry topic")
	return nil
}

// Stop stops accepting broker messages first, then drains in-flight
// forwards bounded by the drain timeout.
func (s *IngestionService) Stop() error {
	s.mu.Lock()
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.mu.Unlock()

	if err := s.mqttClient.Unsubscribe(s.subTopic); err != nil {
		s.logger.Error().Err(err).Str("topic", s.subTopic).Msg("Failed to unsubscribe from telemetry topic")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.dispatchQueue.Drain(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Dispatch queue drain timed out, abandoning in-flight forwards")
	}

	s.logger.Info().Msg("IngestionService stopped")
	return nil
}

// HandleTelemetry is the broker callback. It copies the message and defers
// everything else to the dispatch queue.
func (s *IngestionService) HandleTelemetry(client MQTT.Client, msg MQTT.Message) {
	select {
	case <-s.stopChan:
		s.logger.Warn().Msg("Received telemetry but service is stopping, ignoring message")
		return
	default:
	}

	observability.TelemetryReceived.Inc()

	deviceID := deviceIDFromTopic(msg.Topic())
	payload := append([]byte(nil), msg.Payload()...)

	s.dispatchQueue.Submit(func() error {
		return s.process(deviceID, payload)
	})
}

// process validates, transforms and forwards one payload. A validation
// failure drops the single message; side-channel failures (cataloging,
// alarm evaluation, broadcast) never fail the forward.
func (s *IngestionService) process(deviceID string, payload []byte) error {
	record, unknown, err := s.transformer.Transform(deviceID, payload)
	if err != nil {
		observability.TelemetryDropped.Inc()
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Dropping malformed telemetry payload")
		return nil
	}

	ctx := context.Background()

	if err := s.adminAPI.SubmitTelemetry(ctx, record); err != nil {
		return err
	}
	observability.TelemetryForwarded.Inc()

	alarms, err := s.adminAPI.EvaluateAlarms(ctx, record)
	if err != nil {
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("Alarm evaluation failed")
	}
	for i := range alarms {
		s.hub.BroadcastAlarm(&alarms[i])
	}

	if len(unknown) > 0 {
		observability.UnknownFieldsCataloged.Add(float64(len(unknown)))
		s.cataloger.Observe(ctx, deviceID, unknown)
	}

	s.hub.BroadcastTelemetry(deviceID, record)
	return nil
}

// deviceIDFromTopic extracts the device id from a
// devices/<id>/telemetry topic.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
