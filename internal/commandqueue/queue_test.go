package commandqueue

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() *Queue {
	return NewQueue(zerolog.Nop())
}

func makeCommand(id, priority string) *models.DeviceCommand {
	return &models.DeviceCommand{
		CommandID: id,
		DeviceID:  "meter-001",
		Type:      "relay_control",
		Priority:  priority,
		Timestamp: time.Now().UTC(),
	}
}

func TestEnqueueDequeue_PriorityOrder(t *testing.T) {
	q := newTestQueue()

	require.NoError(t, q.Enqueue(makeCommand("low-1", constants.PriorityLow)))
	require.NoError(t, q.Enqueue(makeCommand("med-1", constants.PriorityMedium)))
	require.NoError(t, q.Enqueue(makeCommand("crit-1", constants.PriorityCritical)))
	require.NoError(t, q.Enqueue(makeCommand("high-1", constants.PriorityHigh)))

	var order []string
	for {
		qc := q.Dequeue()
		if qc == nil {
			break
		}
		order = append(order, qc.Command.CommandID)
		q.MarkCompleted(qc.Command.CommandID)
	}
	assert.Equal(t, []string{"crit-1", "high-1", "med-1", "low-1"}, order)
}

func TestEnqueueDequeue_HigherPriorityJumpsAhead(t *testing.T) {
	q := newTestQueue()

	// A MEDIUM command enqueued first still loses to a later CRITICAL one.
	require.NoError(t, q.Enqueue(makeCommand("med-first", constants.PriorityMedium)))
	require.NoError(t, q.Enqueue(makeCommand("crit-later", constants.PriorityCritical)))

	qc := q.Dequeue()
	require.NotNil(t, qc)
	assert.Equal(t, "crit-later", qc.Command.CommandID)
}

func TestEnqueueDequeue_FIFOWithinBucket(t *testing.T) {
	q := newTestQueue()

	require.NoError(t, q.Enqueue(makeCommand("a", constants.PriorityHigh)))
	require.NoError(t, q.Enqueue(makeCommand("b", constants.PriorityHigh)))
	require.NoError(t, q.Enqueue(makeCommand("c", constants.PriorityHigh)))

	assert.Equal(t, "a", q.Dequeue().Command.CommandID)
	assert.Equal(t, "b", q.Dequeue().Command.CommandID)
	assert.Equal(t, "c", q.Dequeue().Command.CommandID)
}

func TestEnqueue_RejectsDuplicateID(t *testing.T) {
	q := newTestQueue()

	require.NoError(t, q.Enqueue(makeCommand("dup", constants.PriorityHigh)))
	assert.Error(t, q.Enqueue(makeCommand("dup", constants.PriorityHigh)))

	// Still duplicate while processing.
	qc := q.Dequeue()
	require.NotNil(t, qc)
	assert.Error(t, q.Enqueue(makeCommand("dup", constants.PriorityLow)))
}

func TestEnqueue_RejectsMissingID(t *testing.T) {
	q := newTestQueue()
	assert.Error(t, q.Enqueue(nil))
	assert.Error(t, q.Enqueue(makeCommand("", constants.PriorityHigh)))
}

func TestEnqueue_UnknownPriorityDefaultsToMedium(t *testing.T) {
	q := newTestQueue()

	require.NoError(t, q.Enqueue(makeCommand("odd", "URGENT")))

	stats := q.Stats()
	assert.Equal(t, 1, stats.Queued[constants.PriorityMedium])

	qc := q.Dequeue()
	require.NotNil(t, qc)
	assert.Equal(t, constants.PriorityMedium, qc.Command.Priority)
}

func TestDequeue_CommandIsNotReturnedTwice(t *testing.T) {
	q := newTestQueue()
	require.NoError(t, q.Enqueue(makeCommand("once", constants.PriorityHigh)))

	first := q.Dequeue()
	require.NotNil(t, first)
	assert.Equal(t, constants.CommandStatusProcessing, first.Status)
	assert.Nil(t, q.Dequeue())
}

func TestDequeue_ExpiredCommandNeverEntersProcessing(t *testing.T) {
	q := newTestQueue()

	expired := makeCommand("stale", constants.PriorityCritical)
	past := time.Now().Add(-time.Minute)
	expired.ExpiresAt = &past
	require.NoError(t, q.Enqueue(expired))
	require.NoError(t, q.Enqueue(makeCommand("fresh", constants.PriorityCritical)))

	qc := q.Dequeue()
	require.NotNil(t, qc)
	assert.Equal(t, "fresh", qc.Command.CommandID)

	stats := q.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Processing)
}

func TestMarkFailed_RetryRequeuesAtBucketTail(t *testing.T) {
	q := newTestQueue()

	require.NoError(t, q.Enqueue(makeCommand("flaky", constants.PriorityHigh)))
	require.NoError(t, q.Enqueue(makeCommand("next", constants.PriorityHigh)))

	qc := q.Dequeue()
	require.Equal(t, "flaky", qc.Command.CommandID)
	q.MarkFailed("flaky", "publish failed", true)

	// The retried command goes behind the one already waiting.
	assert.Equal(t, "next", q.Dequeue().Command.CommandID)
	retried := q.Dequeue()
	require.NotNil(t, retried)
	assert.Equal(t, "flaky", retried.Command.CommandID)
	assert.Equal(t, 1, retried.RetryCount)
}

func TestMarkFailed_RetryCapMovesToFailed(t *testing.T) {
	q := newTestQueue()
	require.NoError(t, q.Enqueue(makeCommand("doomed", constants.PriorityHigh)))

	for i := 0; i < constants.DefaultMaxRetries; i++ {
		qc := q.Dequeue()
		require.NotNil(t, qc, "attempt %d should find the command ready", i+1)
		q.MarkFailed("doomed", "publish failed", true)
	}

	assert.Nil(t, q.Dequeue())
	stats := q.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.QueuedTotal)
}

func TestMarkFailed_NoRetryGoesStraightToFailed(t *testing.T) {
	q := newTestQueue()
	require.NoError(t, q.Enqueue(makeCommand("once", constants.PriorityLow)))

	qc := q.Dequeue()
	require.NotNil(t, qc)
	q.MarkFailed("once", "device rejected", false)

	assert.Nil(t, q.Dequeue())
	assert.Equal(t, 1, q.Stats().Failed)
	assert.Equal(t, 1, qc.RetryCount)
}

func TestMarkCompleted_RemovesFromProcessing(t *testing.T) {
	q := newTestQueue()
	require.NoError(t, q.Enqueue(makeCommand("done", constants.PriorityMedium)))

	qc := q.Dequeue()
	require.NotNil(t, qc)
	q.MarkCompleted("done")

	stats := q.Stats()
	assert.Equal(t, 0, stats.Processing)
	assert.Equal(t, 0, stats.QueuedTotal)
	assert.Equal(t, constants.CommandStatusCompleted, qc.Status)
}

func TestMarkCompleted_QueuedCommandCompletesBeforeDispatch(t *testing.T) {
	q := newTestQueue()
	require.NoError(t, q.Enqueue(makeCommand("early", constants.PriorityMedium)))

	q.MarkCompleted("early")

	assert.Nil(t, q.Dequeue())
	assert.Equal(t, 0, q.Stats().QueuedTotal)
}

func TestMarkCompleted_UnknownIDIsIgnored(t *testing.T) {
	q := newTestQueue()
	// Late acknowledgment for a command the queue has never seen.
	q.MarkCompleted("ghost")
	assert.Equal(t, 0, q.Stats().Failed)
}

func TestMarkFailed_UnknownIDIsIgnored(t *testing.T) {
	q := newTestQueue()
	q.MarkFailed("ghost", "whatever", true)
	assert.Equal(t, 0, q.Stats().Failed)
	assert.Equal(t, 0, q.Stats().QueuedTotal)
}

func TestSweep_PurgesCommandsPastMaxAge(t *testing.T) {
	q := newTestQueue()

	base := time.Now().UTC()
	q.now = func() time.Time { return base }

	require.NoError(t, q.Enqueue(makeCommand("old-queued", constants.PriorityLow)))
	require.NoError(t, q.Enqueue(makeCommand("old-processing", constants.PriorityCritical)))
	qc := q.Dequeue()
	require.Equal(t, "old-processing", qc.Command.CommandID)
	require.NoError(t, q.Enqueue(makeCommand("old-failed", constants.PriorityLow)))
	q.MarkFailed("old-failed", "boom", false)

	// Jump past the max age and add one fresh command.
	q.now = func() time.Time { return base.Add(constants.DefaultMaxCommandAge + time.Minute) }
	require.NoError(t, q.Enqueue(makeCommand("fresh", constants.PriorityLow)))

	q.sweep()

	stats := q.Stats()
	assert.Equal(t, 1, stats.QueuedTotal)
	assert.Equal(t, 0, stats.Processing)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, "fresh", q.Dequeue().Command.CommandID)
}

func TestStats_CountsPerPriority(t *testing.T) {
	q := newTestQueue()

	require.NoError(t, q.Enqueue(makeCommand("c1", constants.PriorityCritical)))
	require.NoError(t, q.Enqueue(makeCommand("h1", constants.PriorityHigh)))
	require.NoError(t, q.Enqueue(makeCommand("h2", constants.PriorityHigh)))
	qc := q.Dequeue()
	require.NotNil(t, qc)

	stats := q.Stats()
	assert.Equal(t, 2, stats.QueuedTotal)
	assert.Equal(t, 2, stats.Queued[constants.PriorityHigh])
	assert.Equal(t, 1, stats.Processing)
}

func TestStartShutdown_Lifecycle(t *testing.T) {
	q := newTestQueue()

	require.NoError(t, q.Start())
	assert.Error(t, q.Start())
	require.NoError(t, q.Shutdown())
	// Shutdown when already stopped is a no-op.
	require.NoError(t, q.Shutdown())
	require.NoError(t, q.Start())
	require.NoError(t, q.Shutdown())
}
