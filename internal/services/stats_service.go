package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/catalog"
	"github.com/sensorgrid/iot-core/internal/commandqueue"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/realtime"
	"github.com/sensorgrid/iot-core/internal/utils"
)

// SystemStats is the introspection snapshot exposed on /stats and pushed to
// realtime monitors.
type SystemStats struct {
	Running            bool               `json:"running"`
	UptimeSeconds      float64            `json:"uptime_seconds"`
	CommandQueue       commandqueue.Stats `json:"command_queue"`
	PublisherQueueSize int                `json:"publisher_queue_size"`
	DispatchPending    int                `json:"dispatch_pending"`
	DispatchInFlight   int                `json:"dispatch_in_flight"`
	Connections        int                `json:"connections"`
	UnknownFields      int                `json:"unknown_fields"`
	Timestamp          time.Time          `json:"timestamp"`
}

// StatsService periodically broadcasts system stats to realtime monitors
// and serves on-demand snapshots.
type StatsService struct {
	Interval time.Duration

	queue         *commandqueue.Queue
	dispatchQueue *utils.DispatchQueue
	publisher     CommandPublisher
	hub           *realtime.Hub
	cataloger     *catalog.Cataloger
	logger        zerolog.Logger

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewStatsService initializes a new StatsService.
func NewStatsService(interval time.Duration, queue *commandqueue.Queue, dispatchQueue *utils.DispatchQueue,
	publisher CommandPublisher, hub *realtime.Hub, cataloger *catalog.Cataloger, logger zerolog.Logger) *StatsService {

	if interval == 0 {
		interval = constants.DefaultStatsInterval
	}

	return &StatsService{
		Interval:      interval,
		queue:         queue,
		dispatchQueue: dispatchQueue,
		publisher:     publisher,
		hub:           hub,
		cataloger:     cataloger,
		logger:        logger.With().Str("service", "stats").Logger(),
	}
}

// Start launches the stats loop in a separate goroutine.
func (s *StatsService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.logger.Warn().Msg("StatsService is already running")
		return errors.New("stats service is already running")
	}

	s.startedAt = time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func(ctx context.Context) {
		defer s.wg.Done()
		s.runStatsLoop(ctx)
	}(s.ctx)

	s.logger.Info().Dur("interval", s.Interval).Msg("StatsService started successfully")
	return nil
}

// Stop gracefully stops the stats service.
func (s *StatsService) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		s.logger.Warn().Msg("StatsService is not running")
		return errors.New("stats service is not running")
	}
	cancel := s.cancel
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info().Msg("StatsService stopped successfully")
	return nil
}

// Snapshot assembles the current introspection view.
func (s *StatsService) Snapshot() SystemStats {
	s.mu.Lock()
	running := s.ctx != nil
	startedAt := s.startedAt
	s.mu.Unlock()

	uptime := 0.0
	if running {
		uptime = time.Since(startedAt).Seconds()
	}

	return SystemStats{
		Running:            running,
		UptimeSeconds:      uptime,
		CommandQueue:       s.queue.Stats(),
		PublisherQueueSize: s.publisher.QueueSize(),
		DispatchPending:    s.dispatchQueue.Depth(),
		DispatchInFlight:   s.dispatchQueue.InFlight(),
		Connections:        s.hub.ConnectionCount(),
		UnknownFields:      s.cataloger.Count(),
		Timestamp:          time.Now().UTC(),
	}
}

// runStatsLoop pushes a snapshot to the monitor room at every tick.
func (s *StatsService) runStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.hub.BroadcastSystemStats(s.Snapshot())
		case <-ctx.Done():
			s.logger.Info().Msg("StatsService stopping gracefully")
			return
		}
	}
}
