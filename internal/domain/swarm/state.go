// Package swarm defines the state machine and routing model for the
// round-bounded orchestration loop.
package swarm

import "time"

// Status is the lifecycle state of a swarm run.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusWaitingInput Status = "waiting_input"
)

// Bounds on append-only lists. History is evicted FIFO so long-lived
// sessions cannot grow state without limit.
const (
	MaxConversationTurns = 200
	MaxPhasesExecuted    = 500
)

// Turn is one entry in the conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// State tracks one swarm session across rounds and continuations.
// It is mutated only by the orchestrator's own loop.
type State struct {
	SessionID           string   `json:"session_id"`
	RunID               string   `json:"run_id"`
	Task                string   `json:"task"`
	Interactive         bool     `json:"interactive"`
	CurrentRound        int      `json:"current_round"`
	MaxRounds           int      `json:"max_rounds"`
	ContinuationCount   int      `json:"continuation_count"`
	TotalRounds         int      `json:"total_rounds_across_continuations"`
	Status              Status   `json:"status"`
	ConversationHistory []Turn   `json:"conversation_history,omitempty"`
	PhasesExecuted      []string `json:"phases_executed,omitempty"`
	ActivePhase         string   `json:"active_phase,omitempty"`
	LastWorker          string   `json:"last_worker,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewState creates an idle state for a session.
func NewState(sessionID, runID string, maxRounds int) *State {
	now := time.Now()
	return &State{
		SessionID: sessionID,
		RunID:     runID,
		MaxRounds: maxRounds,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendTurn records a conversation turn, evicting the oldest once full.
func (s *State) AppendTurn(role, content string) {
	s.ConversationHistory = append(s.ConversationHistory, Turn{
		Role:      role,
		Content:   content,
		Round:     s.CurrentRound,
		Timestamp: time.Now(),
	})
	if len(s.ConversationHistory) > MaxConversationTurns {
		s.ConversationHistory = s.ConversationHistory[len(s.ConversationHistory)-MaxConversationTurns:]
	}
}

// AppendPhase records an executed phase id, evicting the oldest once full.
func (s *State) AppendPhase(phaseID string) {
	s.PhasesExecuted = append(s.PhasesExecuted, phaseID)
	if len(s.PhasesExecuted) > MaxPhasesExecuted {
		s.PhasesExecuted = s.PhasesExecuted[len(s.PhasesExecuted)-MaxPhasesExecuted:]
	}
}

// BudgetExhausted returns true once the round counter has reached the budget.
func (s *State) BudgetExhausted() bool {
	return s.CurrentRound >= s.MaxRounds
}
