package dag

import "time"

// CriticalPath is the longest-duration chain of dependent phases.
type CriticalPath struct {
	Path     []string      `json:"path"`
	Duration time.Duration `json:"duration"`
}

// CriticalPath computes the longest chain through the graph by recorded
// durations. Earliest-start for each node is the max over its dependencies of
// (dependency earliest-start + dependency duration); the path ends at the
// dependent-free node with the latest finish and is walked back through the
// latest-finishing dependency at each hop.
//
// When several chains tie on duration the choice between them follows
// insertion order and is not otherwise specified.
func (t *Tracker) CriticalPath() CriticalPath {
	if len(t.nodes) == 0 {
		return CriticalPath{}
	}

	sorted, err := t.TopologicalSort()
	if err != nil {
		// The tracker never holds a cyclic graph; an error here means an
		// empty result is the only safe answer.
		return CriticalPath{}
	}

	earliest := make(map[string]time.Duration, len(t.nodes))
	for _, id := range sorted {
		n := t.nodes[id]
		var start time.Duration
		for _, dep := range n.Dependencies {
			if fin := earliest[dep] + t.nodes[dep].Duration; fin > start {
				start = fin
			}
		}
		earliest[id] = start
	}

	// Sink with the latest finish time.
	var end string
	var endFinish time.Duration
	for _, id := range t.order {
		n := t.nodes[id]
		if len(n.Dependents) > 0 {
			continue
		}
		if fin := earliest[id] + n.Duration; end == "" || fin > endFinish {
			end = id
			endFinish = fin
		}
	}
	if end == "" {
		return CriticalPath{}
	}

	// Walk back through the latest-finishing dependency each time.
	path := []string{end}
	for {
		n := t.nodes[path[len(path)-1]]
		if len(n.Dependencies) == 0 {
			break
		}
		next := n.Dependencies[0]
		nextFinish := earliest[next] + t.nodes[next].Duration
		for _, dep := range n.Dependencies[1:] {
			if fin := earliest[dep] + t.nodes[dep].Duration; fin > nextFinish {
				next = dep
				nextFinish = fin
			}
		}
		path = append(path, next)
	}

	// Reverse into root-to-sink order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return CriticalPath{Path: path, Duration: endFinish}
}

// Statistics summarizes the state of the graph.
type Statistics struct {
	TotalPhases          int            `json:"total_phases"`
	ByStatus             map[Status]int `json:"by_status"`
	TotalDuration        time.Duration  `json:"total_duration"`
	CriticalPathDuration time.Duration  `json:"critical_path_duration"`
	SuccessRate          float64        `json:"success_rate"`
}

// Statistics returns aggregate counts, durations, and a success rate over
// executed phases (completed and cached count as successes, failed as
// failures; pending, running, and skipped phases are excluded from the rate).
func (t *Tracker) Statistics() Statistics {
	st := Statistics{
		TotalPhases: len(t.nodes),
		ByStatus:    make(map[Status]int),
	}

	var succeeded, failed int
	for _, id := range t.order {
		n := t.nodes[id]
		st.ByStatus[n.Status]++
		st.TotalDuration += n.Duration
		switch n.Status {
		case StatusCompleted, StatusCached:
			succeeded++
		case StatusFailed:
			failed++
		}
	}

	if succeeded+failed > 0 {
		st.SuccessRate = float64(succeeded) / float64(succeeded+failed)
	}
	st.CriticalPathDuration = t.CriticalPath().Duration

	return st
}
