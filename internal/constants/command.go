package constants

import "time"

// Command dispatch defaults
const (
	// DefaultDispatchInterval is the delay between dispatch loop iterations
	DefaultDispatchInterval = 1 * time.Second
	// DefaultMaxRetries is the number of retryable failures before a command is abandoned
	DefaultMaxRetries = 3
	// DefaultSweepInterval is how often the queue purges stale commands
	DefaultSweepInterval = 5 * time.Minute
	// DefaultMaxCommandAge is the age past which a command is purged regardless of state
	DefaultMaxCommandAge = 1 * time.Hour
)

// Command priorities, highest first
const (
	PriorityCritical = "CRITICAL"
	PriorityHigh     = "HIGH"
	PriorityMedium   = "MEDIUM"
	PriorityLow      = "LOW"
)

// Queued command lifecycle statuses
const (
	// CommandStatusQueued indicates the command is waiting in a priority bucket
	CommandStatusQueued = "QUEUED"
	// CommandStatusProcessing indicates the command has been handed to the dispatcher
	CommandStatusProcessing = "PROCESSING"
	// CommandStatusCompleted indicates the command was published successfully
	CommandStatusCompleted = "COMPLETED"
	// CommandStatusFailed indicates the command exhausted its retries or expired
	CommandStatusFailed = "FAILED"
	// CommandStatusRetry indicates the command failed and is queued for another attempt
	CommandStatusRetry = "RETRY"
)

// Acknowledgment statuses reported by devices
const (
	AckStatusReceived  = "RECEIVED"
	AckStatusExecuting = "EXECUTING"
	AckStatusCompleted = "COMPLETED"
	AckStatusFailed    = "FAILED"
	AckStatusTimeout   = "TIMEOUT"
)
