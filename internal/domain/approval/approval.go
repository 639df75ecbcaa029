// Package approval defines human approval checkpoints and the retry model
// shared by the executors and orchestrators.
package approval

import (
	"fmt"
	"strings"
	"time"
)

// CheckpointType classifies what a checkpoint is asking for.
type CheckpointType string

const (
	CheckpointApproval      CheckpointType = "approval"
	CheckpointClarification CheckpointType = "clarification"
	CheckpointProposal      CheckpointType = "proposal"
	CheckpointHumanTurn     CheckpointType = "human_turn"
)

// Checkpoint is a gate the run must pass before proceeding.
type Checkpoint struct {
	Type          CheckpointType `json:"type"`
	Message       string         `json:"message"`
	Options       []string       `json:"options,omitempty"`
	AllowFeedback bool           `json:"allow_feedback"`
}

// Resolution values returned by the gate.
const (
	ResolutionApprove = "approve"
	ResolutionReject  = "reject"
	ResolutionSkip    = "skip"
)

// Resolution is the human's answer to a checkpoint.
type Resolution struct {
	Resolution   string `json:"resolution"`
	UserFeedback string `json:"user_feedback,omitempty"`
}

// AuditEntry records one resolved checkpoint in the audit trail.
type AuditEntry struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	StepID     string    `json:"step_id,omitempty"`
	Type       CheckpointType `json:"type"`
	Resolution string    `json:"resolution"`
	Responder  string    `json:"responder,omitempty"`
	Feedback   string    `json:"feedback,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RetryAttempt captures what went wrong on a failed execution so the next
// attempt can be told about it.
type RetryAttempt struct {
	AttemptNumber int            `json:"attempt_number"`
	MaxAttempts   int            `json:"max_attempts"`
	ErrorKind     string         `json:"error_kind"`
	ErrorMessage  string         `json:"error_message"`
	PriorOutput   map[string]any `json:"prior_output,omitempty"`
}

// Instruction builds the retry prompt: the original task annotated with what
// failed on the previous attempt.
func (a RetryAttempt) Instruction(task string) string {
	var b strings.Builder
	b.WriteString(task)
	fmt.Fprintf(&b, "\n\nPrevious attempt %d of %d failed", a.AttemptNumber, a.MaxAttempts)
	if a.ErrorKind != "" {
		fmt.Fprintf(&b, " (%s)", a.ErrorKind)
	}
	if a.ErrorMessage != "" {
		fmt.Fprintf(&b, ": %s", a.ErrorMessage)
	}
	b.WriteString(". Review the error and try again.")
	return b.String()
}
