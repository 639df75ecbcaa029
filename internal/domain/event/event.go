// Package event defines the lifecycle events emitted by the orchestrators.
// Emission is fire-and-forget: the core never blocks on an observer.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of orchestration event.
type Type string

const (
	TypeRoundStarted   Type = "swarm.round_started"
	TypeRoundCompleted Type = "swarm.round_completed"
	TypeSwarmPaused    Type = "swarm.paused"
	TypeSwarmContinued Type = "swarm.continued"
	TypeSwarmCompleted Type = "swarm.completed"
	TypeSwarmFailed    Type = "swarm.failed"

	TypePhaseStarted   Type = "phase.started"
	TypePhaseCompleted Type = "phase.completed"
	TypePhaseFailed    Type = "phase.failed"
	TypePhaseRetried   Type = "phase.retried"
	TypePhaseCached    Type = "phase.cached"

	TypeWorkflowStarted   Type = "workflow.started"
	TypeWorkflowCompleted Type = "workflow.completed"
	TypeWorkflowFailed    Type = "workflow.failed"
	TypeWorkflowPaused    Type = "workflow.paused"

	TypeApprovalRequested Type = "approval.requested"
	TypeApprovalResolved  Type = "approval.resolved"
)

// Event is a single immutable record in a run's trajectory. It is the
// envelope every observer channel carries: websocket frames wrap it and the
// message fabric mirrors it.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	RunID     string         `json:"run_id,omitempty"`
	PhaseID   string         `json:"phase_id,omitempty"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// New stamps a fresh envelope for one occurrence of typ in sessionID.
func New(typ Type, sessionID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      typ,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}
