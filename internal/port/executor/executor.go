// Package executor defines the agent executor port (interface) and its
// factory registry. The executor is the opaque conversational worker that
// performs a phase's actual work; the core only sees this contract.
package executor

import (
	"context"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
)

// Executor is the port interface for delegating a phase to an agent backend.
//
// Execute must be idempotent-safe to retry and must not mutate the caller's
// request maps in place — the returned result is the only source of truth.
type Executor interface {
	// Name returns the unique identifier for this executor (e.g. "nats", "mock").
	Name() string

	// Execute runs a phase and returns its result. Implementations may block
	// for a long time; they must honor ctx cancellation.
	Execute(ctx context.Context, req phase.ExecRequest) (*phase.Result, error)

	// Stop cancels a running phase execution.
	Stop(ctx context.Context, phaseID string) error
}
