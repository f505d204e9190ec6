package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/commandqueue"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/sensorgrid/iot-core/internal/observability"
	"github.com/sensorgrid/iot-core/pkg/mqtt"
)

// CommandDispatchService accepts administrative command enqueues from the
// broker and drains the priority queue with a single self-rescheduling
// dispatch worker. The loop polls instead of blocking, trading up to one
// interval of latency for simple cancellation.
type CommandDispatchService struct {
	// Configuration fields
	queueTopic string
	qos        int
	interval   time.Duration

	// Dependencies
	mqttClient mqtt.Client
	queue      *commandqueue.Queue
	publisher  CommandPublisher
	logger     zerolog.Logger

	// Internal state management
	mu      sync.Mutex
	wg      sync.WaitGroup
	ctxDone chan struct{}
	running bool
}

// NewCommandDispatchService initializes a new CommandDispatchService.
func NewCommandDispatchService(queueTopic string, qos int, interval time.Duration, mqttClient mqtt.Client,
	queue *commandqueue.Queue, publisher CommandPublisher, logger zerolog.Logger) *CommandDispatchService {

	if interval == 0 {
		interval = constants.DefaultDispatchInterval
	}

	return &CommandDispatchService{
		queueTopic: queueTopic,
		qos:        qos,
		interval:   interval,
		mqttClient: mqttClient,
		queue:      queue,
		publisher:  publisher,
		logger:     logger.With().Str("service", "command_dispatch").Logger(),
	}
}

// Start subscribes to the enqueue topic and launches the dispatch loop.
// Starting an already-running service is a no-op.
func (s *CommandDispatchService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn().Msg("CommandDispatchService is already running")
		return nil
	}

	if err := s.queue.Start(); err != nil {
		return err
	}
	if err := s.mqttClient.Subscribe(s.queueTopic, byte(s.qos), s.HandleEnqueue); err != nil {
		s.logger.Error().Err(err).Str("topic", s.queueTopic).Msg("Failed to subscribe to command queue topic")
		_ = s.queue.Shutdown()
		return err
	}

	s.ctxDone = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.runDispatchLoop(s.ctxDone)

	s.logger.Info().Str("topic", s.queueTopic).Dur("interval", s.interval).
		Msg("CommandDispatchService started")
	return nil
}

// Stop cancels the pending reschedule, then shuts down the queue and the
// publisher concurrently, returning once both report completion. Stopping
// an already-stopped service is a no-op.
func (s *CommandDispatchService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("CommandDispatchService is not running")
		return nil
	}
	s.running = false
	close(s.ctxDone)
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.mqttClient.Unsubscribe(s.queueTopic); err != nil {
		s.logger.Error().Err(err).Str("topic", s.queueTopic).Msg("Failed to unsubscribe from command queue topic")
	}

	var queueErr, publisherErr error
	var shutdownWg sync.WaitGroup
	shutdownWg.Add(2)
	go func() {
		defer shutdownWg.Done()
		queueErr = s.queue.Shutdown()
	}()
	go func() {
		defer shutdownWg.Done()
		publisherErr = s.publisher.Close()
	}()
	shutdownWg.Wait()

	s.logger.Info().Msg("CommandDispatchService stopped")
	return errors.Join(queueErr, publisherErr)
}

// HandleEnqueue decodes an administrative DeviceCommand and inserts it into
// the priority queue. Malformed commands are logged and dropped.
func (s *CommandDispatchService) HandleEnqueue(client MQTT.Client, msg MQTT.Message) {
	var cmd models.DeviceCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed command payload")
		return
	}
	if cmd.DeviceID == "" || cmd.Type == "" {
		s.logger.Warn().Str("command_id", cmd.CommandID).Msg("Dropping command without device id or type")
		return
	}

	if cmd.CommandID == "" {
		cmd.CommandID = uuid.New().String()
	}
	cmd.Priority = normalizePriority(cmd.Priority)
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	if err := s.queue.Enqueue(&cmd); err != nil {
		s.logger.Warn().Err(err).Str("command_id", cmd.CommandID).Msg("Failed to enqueue command")
		return
	}
	observability.CommandsEnqueued.Inc()
	s.updateQueueGauges()
}

// runDispatchLoop reschedules itself after every iteration, hit or miss,
// bounding both CPU use and dispatch latency.
func (s *CommandDispatchService) runDispatchLoop(done chan struct{}) {
	defer s.wg.Done()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-timer.C:
			s.dispatchNext()
			timer.Reset(s.interval)
		}
	}
}

// dispatchNext hands at most one ready command to the publisher. Publish
// failures retry only for HIGH and CRITICAL priorities; expiry is a
// non-retryable failure regardless of priority.
func (s *CommandDispatchService) dispatchNext() {
	qc := s.queue.Dequeue()
	if qc == nil {
		return
	}
	cmd := qc.Command

	if cmd.IsExpired(time.Now()) {
		s.logger.Warn().Str("command_id", cmd.CommandID).Msg("Command expired before dispatch")
		s.queue.MarkFailed(cmd.CommandID, "command expired", false)
		observability.CommandsFailed.Inc()
		s.updateQueueGauges()
		return
	}

	if err := s.publisher.Publish(cmd); err != nil {
		shouldRetry := cmd.Priority == constants.PriorityHigh || cmd.Priority == constants.PriorityCritical
		s.logger.Error().Err(err).Str("command_id", cmd.CommandID).Bool("retry", shouldRetry).
			Msg("Command publish failed")
		s.queue.MarkFailed(cmd.CommandID, err.Error(), shouldRetry)
		if !shouldRetry {
			observability.CommandsFailed.Inc()
		}
		s.updateQueueGauges()
		return
	}

	// An acknowledgment, if one arrives later, may still refine the
	// downstream status; the queue's work for this command is done.
	s.queue.MarkCompleted(cmd.CommandID)
	observability.CommandsPublished.Inc()
	s.updateQueueGauges()
}

func (s *CommandDispatchService) updateQueueGauges() {
	stats := s.queue.Stats()
	observability.QueueDepth.Set(float64(stats.QueuedTotal))
	observability.QueueProcessing.Set(float64(stats.Processing))
	observability.QueueFailed.Set(float64(stats.Failed))
}

// Running reports whether the dispatch loop is active.
func (s *CommandDispatchService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// normalizePriority upper-cases and validates a priority, defaulting to
// MEDIUM for anything unrecognized.
func normalizePriority(priority string) string {
	switch strings.ToUpper(priority) {
	case constants.PriorityCritical:
		return constants.PriorityCritical
	case constants.PriorityHigh:
		return constants.PriorityHigh
	case constants.PriorityMedium:
		return constants.PriorityMedium
	case constants.PriorityLow:
		return constants.PriorityLow
	default:
		return constants.PriorityMedium
	}
}
