// Package approvalgate defines the port for the human approval gate.
// The gate is the only place where the core may suspend for minutes at a
// time waiting on a person.
package approvalgate

import (
	"context"
	"errors"
	"time"

	"github.com/Strob0t/FlowForge/internal/domain/approval"
)

// ErrTimeout is returned when an approval wait exceeds its deadline.
// The caller resolves it per its configured default (approve or reject).
var ErrTimeout = errors.New("approval wait timed out")

// Request identifies one pending checkpoint presented to a human.
type Request struct {
	RunID           string              `json:"run_id"`
	StepID          string              `json:"step_id"`
	Checkpoint      approval.Checkpoint `json:"checkpoint"`
	ContextSnapshot map[string]any      `json:"context_snapshot,omitempty"`
}

// Gate is the port interface for pausing a run behind human approval.
type Gate interface {
	// CreateRequest registers a checkpoint and returns its request id.
	CreateRequest(ctx context.Context, req Request) (string, error)

	// AwaitResolution blocks until the request is resolved, the timeout
	// elapses (ErrTimeout), or ctx is cancelled.
	AwaitResolution(ctx context.Context, requestID string, timeout time.Duration) (*approval.Resolution, error)
}
