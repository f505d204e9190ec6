package commandqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/models"
)

// priorityOrder lists the buckets in scan order, highest priority first.
var priorityOrder = []string{
	constants.PriorityCritical,
	constants.PriorityHigh,
	constants.PriorityMedium,
	constants.PriorityLow,
}

// Stats is an introspection snapshot of the queue.
type Stats struct {
	Queued      map[string]int `json:"queued"`
	QueuedTotal int            `json:"queued_total"`
	Processing  int            `json:"processing"`
	Failed      int            `json:"failed"`
}

// Queue is the in-memory priority-ordered store of pending device commands.
// All state lives behind one mutex; commands are lost on restart by design.
type Queue struct {
	mu         sync.Mutex
	buckets    map[string][]*models.QueuedCommand
	active     map[string]*models.QueuedCommand // commands currently in a bucket
	processing map[string]*models.QueuedCommand
	failed     map[string]*models.QueuedCommand

	maxRetries    int
	maxAge        time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewQueue creates a Queue with default retry and expiry policy. The expiry
// sweeper does not run until Start is called.
func NewQueue(logger zerolog.Logger) *Queue {
	q := &Queue{
		buckets:       make(map[string][]*models.QueuedCommand, len(priorityOrder)),
		active:        make(map[string]*models.QueuedCommand),
		processing:    make(map[string]*models.QueuedCommand),
		failed:        make(map[string]*models.QueuedCommand),
		maxRetries:    constants.DefaultMaxRetries,
		maxAge:        constants.DefaultMaxCommandAge,
		sweepInterval: constants.DefaultSweepInterval,
		now:           time.Now,
		logger:        logger.With().Str("component", "commandqueue").Logger(),
	}
	for _, p := range priorityOrder {
		q.buckets[p] = nil
	}
	return q
}

// Start launches the periodic expiry sweep. Calling Start twice is an error.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx != nil {
		return fmt.Errorf("command queue sweeper is already running")
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.wg.Add(1)
	go q.runSweepLoop(q.ctx)

	q.logger.Info().Dur("interval", q.sweepInterval).Msg("Command queue sweeper started")
	return nil
}

// Shutdown stops the expiry sweep. Queued commands are deliberately not
// persisted anywhere.
func (q *Queue) Shutdown() error {
	q.mu.Lock()
	if q.ctx == nil {
		q.mu.Unlock()
		return nil
	}
	cancel := q.cancel
	q.ctx = nil
	q.cancel = nil
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	q.logger.Info().Msg("Command queue sweeper stopped")
	return nil
}

// Enqueue inserts a command into the bucket matching its priority, FIFO
// within the bucket. Unrecognized priorities fall back to MEDIUM. A command
// id already present anywhere in the queue is rejected.
func (q *Queue) Enqueue(cmd *models.DeviceCommand) error {
	if cmd == nil || cmd.CommandID == "" {
		return fmt.Errorf("command has no id")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[cmd.CommandID]; ok {
		return fmt.Errorf("command %s is already queued", cmd.CommandID)
	}
	if _, ok := q.processing[cmd.CommandID]; ok {
		return fmt.Errorf("command %s is already processing", cmd.CommandID)
	}

	priority := cmd.Priority
	if _, ok := q.buckets[priority]; !ok {
		q.logger.Warn().Str("command_id", cmd.CommandID).Str("priority", priority).
			Msg("Unrecognized priority, defaulting to MEDIUM")
		priority = constants.PriorityMedium
		cmd.Priority = priority
	}

	qc := &models.QueuedCommand{
		Command:    cmd,
		EnqueuedAt: q.now(),
		Status:     constants.CommandStatusQueued,
	}
	q.buckets[priority] = append(q.buckets[priority], qc)
	q.active[cmd.CommandID] = qc

	q.logger.Debug().Str("command_id", cmd.CommandID).Str("device_id", cmd.DeviceID).
		Str("priority", priority).Msg("Command enqueued")
	return nil
}

// Dequeue atomically removes the highest-priority ready command and
// transitions it to PROCESSING. Expired commands encountered during the scan
// are failed in place and never returned. Returns nil when nothing is ready.
func (q *Queue) Dequeue() *models.QueuedCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, priority := range priorityOrder {
		for len(q.buckets[priority]) > 0 {
			qc := q.buckets[priority][0]
			q.buckets[priority] = q.buckets[priority][1:]
			delete(q.active, qc.Command.CommandID)

			if qc.Command.IsExpired(now) {
				qc.Status = constants.CommandStatusFailed
				q.failed[qc.Command.CommandID] = qc
				q.logger.Warn().Str("command_id", qc.Command.CommandID).
					Msg("Dropping expired command from queue")
				continue
			}

			qc.Status = constants.CommandStatusProcessing
			q.processing[qc.Command.CommandID] = qc
			return qc
		}
	}
	return nil
}

// MarkCompleted removes a command from every structure. Unknown ids are
// logged and ignored so a late acknowledgment never turns into an error.
func (q *Queue) MarkCompleted(commandID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if qc, ok := q.processing[commandID]; ok {
		qc.Status = constants.CommandStatusCompleted
		delete(q.processing, commandID)
		q.logger.Debug().Str("command_id", commandID).Msg("Command completed")
		return
	}
	if qc, ok := q.active[commandID]; ok {
		qc.Status = constants.CommandStatusCompleted
		q.removeFromBucket(commandID, qc.Command.Priority)
		delete(q.active, commandID)
		q.logger.Debug().Str("command_id", commandID).Msg("Queued command completed before dispatch")
		return
	}
	if _, ok := q.failed[commandID]; ok {
		delete(q.failed, commandID)
		q.logger.Debug().Str("command_id", commandID).Msg("Failed command removed after completion report")
		return
	}
	q.logger.Warn().Str("command_id", commandID).Msg("Completion for unknown command, ignoring")
}

// MarkFailed records a failed attempt. The retry count always increments;
// when shouldRetry is set and the cap is not reached the command re-enters
// its bucket at the tail, otherwise it moves to the failed set.
func (q *Queue) MarkFailed(commandID, reason string, shouldRetry bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qc, ok := q.processing[commandID]
	if ok {
		delete(q.processing, commandID)
	} else {
		if qc, ok = q.active[commandID]; ok {
			q.removeFromBucket(commandID, qc.Command.Priority)
			delete(q.active, commandID)
		}
	}
	if qc == nil {
		q.logger.Warn().Str("command_id", commandID).Msg("Failure for unknown command, ignoring")
		return
	}

	qc.RetryCount++

	if shouldRetry && qc.RetryCount < q.maxRetries {
		qc.Status = constants.CommandStatusRetry
		q.buckets[qc.Command.Priority] = append(q.buckets[qc.Command.Priority], qc)
		q.active[commandID] = qc
		q.logger.Info().Str("command_id", commandID).Int("retry_count", qc.RetryCount).
			Str("reason", reason).Msg("Command requeued for retry")
		return
	}

	qc.Status = constants.CommandStatusFailed
	q.failed[commandID] = qc
	q.logger.Warn().Str("command_id", commandID).Int("retry_count", qc.RetryCount).
		Str("reason", reason).Msg("Command failed")
}

// Stats returns an introspection snapshot.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{Queued: make(map[string]int, len(priorityOrder))}
	for _, priority := range priorityOrder {
		n := len(q.buckets[priority])
		stats.Queued[priority] = n
		stats.QueuedTotal += n
	}
	stats.Processing = len(q.processing)
	stats.Failed = len(q.failed)
	return stats
}

// removeFromBucket drops a command from its priority bucket by id. Caller
// holds the lock.
func (q *Queue) removeFromBucket(commandID, priority string) {
	bucket := q.buckets[priority]
	for i, qc := range bucket {
		if qc.Command.CommandID == commandID {
			q.buckets[priority] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// runSweepLoop periodically purges commands past the maximum age.
func (q *Queue) runSweepLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep purges any command older than the maximum age from every structure,
// regardless of state.
func (q *Queue) sweep() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.maxAge)
	purged := 0

	for _, priority := range priorityOrder {
		kept := q.buckets[priority][:0]
		for _, qc := range q.buckets[priority] {
			if qc.EnqueuedAt.Before(cutoff) {
				delete(q.active, qc.Command.CommandID)
				purged++
				continue
			}
			kept = append(kept, qc)
		}
		q.buckets[priority] = kept
	}
	for id, qc := range q.processing {
		if qc.EnqueuedAt.Before(cutoff) {
			delete(q.processing, id)
			purged++
		}
	}
	for id, qc := range q.failed {
		if qc.EnqueuedAt.Before(cutoff) {
			delete(q.failed, id)
			purged++
		}
	}

	if purged > 0 {
		q.logger.Info().Int("purged", purged).Msg("Expiry sweep purged stale commands")
	}
}
