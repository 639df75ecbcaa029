// Package phase defines the typed unit of work executed by the orchestrators.
package phase

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation indicates invalid phase input. Validation failures are fatal
// for the run that hit them; the run stops instead of skipping the phase.
var ErrValidation = errors.New("phase validation failed")

// Status is the outcome of one phase execution attempt.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusNeedsApproval Status = "needs_approval"
	StatusSkipped       Status = "skipped"
)

// Spec declares one phase inside a workflow definition: a type tag, its
// configuration, optional dependencies on earlier phases (by index), and an
// optional skip condition evaluated against the accumulated run output.
type Spec struct {
	Type      string         `json:"type" yaml:"type"`
	Config    map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	DependsOn []int          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	SkipIf    *SkipWhen      `json:"skip_if,omitempty" yaml:"skip_if,omitempty"`
}

// SkipWhen makes a phase conditional: it is skipped when Key is present in
// the run's accumulated output and, if Equals is set, holds that value.
type SkipWhen struct {
	Key    string `json:"key" yaml:"key"`
	Equals any    `json:"equals,omitempty" yaml:"equals,omitempty"`
}

// CanSkip reports whether the spec's skip condition holds for output.
func (s *Spec) CanSkip(output map[string]any) bool {
	if s.SkipIf == nil || s.SkipIf.Key == "" {
		return false
	}
	val, ok := output[s.SkipIf.Key]
	if !ok {
		return false
	}
	if s.SkipIf.Equals == nil {
		return true
	}
	return fmt.Sprintf("%v", val) == fmt.Sprintf("%v", s.SkipIf.Equals)
}

// ExecRequest is a single phase execution handed to an agent executor.
// PhaseID identifies the DAG node and stays stable across retries;
// ExecutionID is minted fresh for every delivery attempt.
type ExecRequest struct {
	PhaseID       string         `json:"phase_id"`
	ExecutionID   string         `json:"execution_id,omitempty"`
	PhaseType     string         `json:"phase_type"`
	Task          string         `json:"task"`
	Config        map[string]any `json:"config,omitempty"`
	InputData     map[string]any `json:"input_data,omitempty"`
	ParentPhaseID string         `json:"parent_phase_id,omitempty"`
	DependsOn     []string       `json:"depends_on,omitempty"`
}

// Message is one turn of the executor's conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the outcome of a phase execution, including retries.
// ExecutionID names the attempt that produced the result.
type Result struct {
	PhaseID     string         `json:"phase_id"`
	ExecutionID string         `json:"execution_id,omitempty"`
	PhaseType   string         `json:"phase_type"`
	Status      Status         `json:"status"`
	OutputData  map[string]any `json:"output_data,omitempty"`
	ChatHistory []Message      `json:"chat_history,omitempty"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	Duration    time.Duration  `json:"duration"`
}

// Succeeded returns true for a completed result.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}

// Validate checks an execution request for structural correctness.
func (r *ExecRequest) Validate() error {
	if r.PhaseType == "" {
		return fmt.Errorf("phase_type is required: %w", ErrValidation)
	}
	if r.Task == "" {
		return fmt.Errorf("task is required: %w", ErrValidation)
	}
	return nil
}
