package messagequeue

// PhaseDispatchPayload is the schema for phases.dispatch.{executor} messages.
type PhaseDispatchPayload struct {
	PhaseID   string         `json:"phase_id"`
	PhaseType string         `json:"phase_type"`
	SessionID string         `json:"session_id"`
	Task      string         `json:"task"`
	Config    map[string]any `json:"config,omitempty"`
	InputData map[string]any `json:"input_data,omitempty"`
}

// PhaseResultPayload is the schema for phases.result messages.
type PhaseResultPayload struct {
	PhaseID    string         `json:"phase_id"`
	SessionID  string         `json:"session_id"`
	Status     string         `json:"status"`
	OutputData map[string]any `json:"output_data,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// PhaseCancelPayload is the schema for phases.cancel messages.
type PhaseCancelPayload struct {
	PhaseID string `json:"phase_id"`
}

// SwarmEventPayload is the schema for swarm.events messages.
type SwarmEventPayload struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	EventType string `json:"event_type"`
	Round     int    `json:"round,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ApprovalEventPayload is the schema for approvals.events messages.
type ApprovalEventPayload struct {
	RequestID  string `json:"request_id"`
	RunID      string `json:"run_id"`
	StepID     string `json:"step_id,omitempty"`
	EventType  string `json:"event_type"`
	Resolution string `json:"resolution,omitempty"`
}
