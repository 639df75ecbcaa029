package dag

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCycle is returned when a mutation would make the graph cyclic.
	ErrCycle = errors.New("dependency cycle")

	// ErrUnknownDependency is returned when a dependency id does not exist.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrUnknownNode is returned when a status transition targets a missing node.
	ErrUnknownNode = errors.New("unknown node")
)

// Tracker maintains the phase dependency graph for one workflow run.
type Tracker struct {
	nodes          map[string]*Node
	order          []string // insertion order, used for deterministic iteration
	executionOrder []string // completion order
	now            func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		nodes: make(map[string]*Node),
		now:   time.Now,
	}
}

// AddNode inserts a node, or adds dependencies to an existing node when the
// id is already tracked. Every dependency must already exist. If the mutation
// would create a cycle it is fully reverted — node set, edges, and insertion
// order are byte-for-byte unchanged — and ErrCycle is returned.
func (t *Tracker) AddNode(id, phaseType string, config map[string]any, deps []string) error {
	for _, dep := range deps {
		if _, ok := t.nodes[dep]; !ok {
			return fmt.Errorf("node %s depends on %s: %w", id, dep, ErrUnknownDependency)
		}
		if dep == id {
			return fmt.Errorf("node %s depends on itself: %w", id, ErrCycle)
		}
	}

	existing, exists := t.nodes[id]

	var prev *Node
	if exists {
		prev = existing.clone()
		for _, dep := range deps {
			if !contains(existing.Dependencies, dep) {
				existing.Dependencies = append(existing.Dependencies, dep)
				t.nodes[dep].Dependents = append(t.nodes[dep].Dependents, id)
			}
		}
	} else {
		n := &Node{
			ID:           id,
			PhaseType:    phaseType,
			Config:       config,
			Dependencies: append([]string(nil), deps...),
			Status:       StatusPending,
		}
		t.nodes[id] = n
		t.order = append(t.order, id)
		for _, dep := range deps {
			t.nodes[dep].Dependents = append(t.nodes[dep].Dependents, id)
		}
	}

	if t.hasCycle() {
		// Revert the exact mutation before surfacing the error.
		if exists {
			for _, dep := range existing.Dependencies {
				if !contains(prev.Dependencies, dep) {
					t.nodes[dep].Dependents = remove(t.nodes[dep].Dependents, id)
				}
			}
			existing.Dependencies = prev.Dependencies
		} else {
			for _, dep := range deps {
				t.nodes[dep].Dependents = remove(t.nodes[dep].Dependents, id)
			}
			delete(t.nodes, id)
			t.order = t.order[:len(t.order)-1]
		}
		return fmt.Errorf("adding node %s: %w", id, ErrCycle)
	}

	return nil
}

// Node returns the tracked node for id, or nil if it does not exist.
func (t *Tracker) Node(id string) *Node {
	return t.nodes[id]
}

// Len returns the number of tracked nodes.
func (t *Tracker) Len() int {
	return len(t.nodes)
}

// ExecutionOrder returns node ids in the order they completed.
func (t *Tracker) ExecutionOrder() []string {
	return append([]string(nil), t.executionOrder...)
}

// MarkRunning transitions a node to running and records its start time.
func (t *Tracker) MarkRunning(id string) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("mark running %s: %w", id, ErrUnknownNode)
	}
	now := t.now()
	n.Status = StatusRunning
	n.StartedAt = &now
	return nil
}

// MarkCompleted transitions a node to completed, records timing, stores the
// result, and appends the id to the execution order.
func (t *Tracker) MarkCompleted(id string, result map[string]any) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("mark completed %s: %w", id, ErrUnknownNode)
	}
	t.finish(n, StatusCompleted)
	n.Result = result
	t.executionOrder = append(t.executionOrder, id)
	return nil
}

// MarkFailed transitions a node to failed and records the error message.
func (t *Tracker) MarkFailed(id, errMsg string) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("mark failed %s: %w", id, ErrUnknownNode)
	}
	t.finish(n, StatusFailed)
	n.Error = errMsg
	return nil
}

// MarkSkipped transitions a node to skipped.
func (t *Tracker) MarkSkipped(id string) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("mark skipped %s: %w", id, ErrUnknownNode)
	}
	t.finish(n, StatusSkipped)
	return nil
}

// MarkCached transitions a node to cached and stores the reused result.
// Cached nodes satisfy their dependents without having run.
func (t *Tracker) MarkCached(id string, result map[string]any) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("mark cached %s: %w", id, ErrUnknownNode)
	}
	t.finish(n, StatusCached)
	n.Result = result
	return nil
}

// RecordRetry increments a node's retry counter.
func (t *Tracker) RecordRetry(id string) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("record retry %s: %w", id, ErrUnknownNode)
	}
	n.RetryCount++
	return nil
}

// finish stamps completion time and duration for a terminal transition.
func (t *Tracker) finish(n *Node, status Status) {
	now := t.now()
	n.Status = status
	n.CompletedAt = &now
	if n.StartedAt != nil {
		n.Duration = now.Sub(*n.StartedAt)
	}
}

// ReadyPhases returns all pending nodes whose dependencies are all satisfied
// (completed or cached), in insertion order.
func (t *Tracker) ReadyPhases() []string {
	var ready []string
	for _, id := range t.order {
		n := t.nodes[id]
		if n.Status != StatusPending {
			continue
		}
		ok := true
		for _, dep := range n.Dependencies {
			if !t.nodes[dep].Status.Satisfies() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// TopologicalSort returns node ids in dependency order using Kahn's algorithm.
// Returns ErrCycle if the graph is not acyclic.
func (t *Tracker) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(t.nodes))
	for _, id := range t.order {
		inDegree[id] = len(t.nodes[id].Dependencies)
	}

	var queue []string
	for _, id := range t.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(t.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, dep := range t.nodes[id].Dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(t.nodes) {
		return nil, fmt.Errorf("topological sort: %w", ErrCycle)
	}
	return sorted, nil
}

// hasCycle runs a Kahn pass and reports whether any node was unreachable.
func (t *Tracker) hasCycle() bool {
	_, err := t.TopologicalSort()
	return err != nil
}

// trackerState is the canonical serialized form of a Tracker,
// used for persistence and for verifying rollback atomicity.
type trackerState struct {
	Nodes          []*Node  `json:"nodes"`
	ExecutionOrder []string `json:"execution_order,omitempty"`
}

// MarshalJSON serializes the tracker with nodes in insertion order.
func (t *Tracker) MarshalJSON() ([]byte, error) {
	st := trackerState{ExecutionOrder: t.executionOrder}
	for _, id := range t.order {
		st.Nodes = append(st.Nodes, t.nodes[id])
	}
	return json.Marshal(st)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
