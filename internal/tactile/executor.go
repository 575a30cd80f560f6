package tactile

import "context"

// Executor runs a Command to completion.
//
// Execute returns an error only when the command is rejected before it starts.
// Everything that happens after that, including a failed start, lands in the
// ExecutionResult.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
	Capabilities() ExecutorCapabilities
	Validate(cmd Command) error
}

// AuditFunc receives execution lifecycle events.
type AuditFunc func(AuditEvent)
