// Package dag tracks phase executions as a dependency graph.
// The graph is acyclic at all times: any mutation that would introduce a
// cycle is rejected and rolled back before an error is returned.
//
// A Tracker is owned by a single workflow run and is not safe for
// concurrent use; callers serialize access per session.
package dag

import "time"

// Status represents the lifecycle state of a tracked phase node.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCached    Status = "cached"
)

// IsTerminal returns true if the node is in a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusCached:
		return true
	}
	return false
}

// Satisfies returns true if a dependency in this state unblocks its dependents.
// Cached results count as satisfied: the work exists even though it was not re-run.
func (s Status) Satisfies() bool {
	return s == StatusCompleted || s == StatusCached
}

// Node is one phase execution tracked in the graph.
// Dependencies and Dependents are kept mutually consistent by the Tracker:
// B lists A as a dependency exactly when A lists B as a dependent.
type Node struct {
	ID           string         `json:"id"`
	PhaseType    string         `json:"phase_type"`
	Config       map[string]any `json:"config,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Dependents   []string       `json:"dependents,omitempty"`
	Status       Status         `json:"status"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	RetryCount   int            `json:"retry_count"`
}

// clone returns a deep copy of the node's identity and edge state.
// Result and Config maps are shared; rollbacks only touch edges and status.
func (n *Node) clone() *Node {
	c := *n
	c.Dependencies = append([]string(nil), n.Dependencies...)
	c.Dependents = append([]string(nil), n.Dependents...)
	return &c
}
