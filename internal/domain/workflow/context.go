package workflow

import "time"

// Context is the per-run state carried between phases. A phase receives a
// clone derived from the previous phase's output, never a live reference to
// the run's own state.
type Context struct {
	Task           string                   `json:"task"`
	WorkDir        string                   `json:"work_dir,omitempty"`
	SharedState    map[string]any           `json:"shared_state,omitempty"`
	OutputData     map[string]any           `json:"output_data,omitempty"`
	CredentialsRef string                   `json:"credentials_ref,omitempty"`
	PhaseTimings   map[string]time.Duration `json:"phase_timings,omitempty"`
}

// NewContext creates the initial context for a run.
func NewContext(task, workDir, credentialsRef string) *Context {
	return &Context{
		Task:           task,
		WorkDir:        workDir,
		CredentialsRef: credentialsRef,
		SharedState:    make(map[string]any),
		OutputData:     make(map[string]any),
		PhaseTimings:   make(map[string]time.Duration),
	}
}

// Clone returns a deep copy. Mutations on the clone never reach the original.
func (c *Context) Clone() *Context {
	out := &Context{
		Task:           c.Task,
		WorkDir:        c.WorkDir,
		CredentialsRef: c.CredentialsRef,
		SharedState:    cloneMap(c.SharedState),
		OutputData:     cloneMap(c.OutputData),
		PhaseTimings:   make(map[string]time.Duration, len(c.PhaseTimings)),
	}
	for k, v := range c.PhaseTimings {
		out.PhaseTimings[k] = v
	}
	return out
}

// MergeOutput folds a phase's output into the shared state and replaces the
// context's output data with it, so the next phase sees its predecessor's
// result.
func (c *Context) MergeOutput(output map[string]any) {
	for k, v := range output {
		c.SharedState[k] = cloneValue(v)
	}
	c.OutputData = cloneMap(output)
}

// RecordTiming stores the elapsed time for a phase id.
func (c *Context) RecordTiming(phaseID string, d time.Duration) {
	c.PhaseTimings[phaseID] = d
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return val
	}
}
