package swarm

// DecisionKind classifies how a round's task should be dispatched.
type DecisionKind string

const (
	// DecisionDirect hands the task to a named worker immediately.
	DecisionDirect DecisionKind = "direct"

	// DecisionClarify suspends the round pending answers to clarifying
	// questions. The user may skip and proceed with a best-effort reading.
	DecisionClarify DecisionKind = "clarify"

	// DecisionPropose presents alternative approaches and suspends pending
	// a choice.
	DecisionPropose DecisionKind = "propose"

	// DecisionPhase invokes a registered phase as a sub-unit of work.
	DecisionPhase DecisionKind = "phase"
)

// Proposal is one alternative approach offered under DecisionPropose.
type Proposal struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Decision is a routing classification for one round.
type Decision struct {
	Kind        DecisionKind   `json:"kind"`
	Worker      string         `json:"worker,omitempty"`
	Questions   []string       `json:"questions,omitempty"`
	Proposals   []Proposal     `json:"proposals,omitempty"`
	PhaseType   string         `json:"phase_type,omitempty"`
	PhaseConfig map[string]any `json:"phase_config,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// RoundInput is what the router sees when classifying a round.
type RoundInput struct {
	SessionID string         `json:"session_id"`
	Task      string         `json:"task"`
	Round     int            `json:"round"`
	Context   map[string]any `json:"context,omitempty"`
	History   []Turn         `json:"history,omitempty"`
}

// RoundResult is the outcome of one round.
type RoundResult struct {
	Round     int            `json:"round"`
	Decision  Decision       `json:"decision"`
	Output    map[string]any `json:"output,omitempty"`
	Completed bool           `json:"completed"`
	Error     string         `json:"error,omitempty"`
}

// RunResult is the structured outcome of a RunRounds call.
type RunResult struct {
	SessionID            string        `json:"session_id"`
	Status               Status        `json:"status"`
	Rounds               []RoundResult `json:"rounds"`
	AwaitingContinuation bool          `json:"awaiting_continuation"`
	FinalOutput          map[string]any `json:"final_output,omitempty"`
	Error                string        `json:"error,omitempty"`
}
