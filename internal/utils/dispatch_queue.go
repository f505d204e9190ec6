package utils

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DispatchQueue executes submitted units of work with at most maxConcurrent
// in flight. Submission never blocks the caller: units accumulate in a
// pending list and a drain goroutine runs batches until the list is empty,
// re-arming itself when more work arrives mid-drain. Each unit's failure is
// isolated; a panicking or erroring unit never aborts its siblings.
type DispatchQueue struct {
	maxConcurrent int
	logger        zerolog.Logger

	mu       sync.Mutex
	pending  []func() error
	draining bool
	inFlight int
	idle     *sync.Cond
}

// NewDispatchQueue creates a DispatchQueue with the given concurrency cap.
func NewDispatchQueue(maxConcurrent int, logger zerolog.Logger) *DispatchQueue {
	dq := &DispatchQueue{
		maxConcurrent: maxConcurrent,
		logger:        logger.With().Str("component", "dispatch_queue").Logger(),
	}
	dq.idle = sync.NewCond(&dq.mu)
	return dq
}

// Submit schedules one unit of work for eventual execution. There is no
// cross-unit ordering guarantee.
func (dq *DispatchQueue) Submit(task func() error) {
	dq.mu.Lock()
	dq.pending = append(dq.pending, task)
	if !dq.draining {
		dq.draining = true
		go dq.drain()
	}
	dq.mu.Unlock()
}

// drain repeatedly removes up to maxConcurrent pending units and runs them
// concurrently, until no pending work remains.
func (dq *DispatchQueue) drain() {
	for {
		dq.mu.Lock()
		if len(dq.pending) == 0 {
			dq.draining = false
			dq.idle.Broadcast()
			dq.mu.Unlock()
			return
		}
		n := len(dq.pending)
		if n > dq.maxConcurrent {
			n = dq.maxConcurrent
		}
		batch := dq.pending[:n]
		dq.pending = dq.pending[n:]
		dq.inFlight += n
		dq.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(n)
		for _, task := range batch {
			go func(task func() error) {
				defer wg.Done()
				defer dq.finishOne()
				defer func() {
					if r := recover(); r != nil {
						dq.logger.Error().Interface("panic", r).Msg("Dispatch unit panicked")
					}
				}()
				if err := task(); err != nil {
					dq.logger.Error().Err(err).Msg("Dispatch unit failed")
				}
			}(task)
		}
		wg.Wait()
	}
}

func (dq *DispatchQueue) finishOne() {
	dq.mu.Lock()
	dq.inFlight--
	if dq.inFlight == 0 && len(dq.pending) == 0 {
		dq.idle.Broadcast()
	}
	dq.mu.Unlock()
}

// Drain blocks until every pending and in-flight unit has finished or the
// context expires. Used at shutdown after intake has stopped.
func (dq *DispatchQueue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		dq.mu.Lock()
		for len(dq.pending) > 0 || dq.inFlight > 0 || dq.draining {
			dq.idle.Wait()
		}
		dq.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of pending units not yet started.
func (dq *DispatchQueue) Depth() int {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return len(dq.pending)
}

// InFlight returns the number of units currently executing.
func (dq *DispatchQueue) InFlight() int {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return dq.inFlight
}

// WaitIdleTimeout is a convenience for tests: waits until idle or the
// timeout elapses.
func (dq *DispatchQueue) WaitIdleTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return dq.Drain(ctx)
}
