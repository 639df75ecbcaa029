package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/FlowForge/internal/domain"
	"github.com/Strob0t/FlowForge/internal/domain/approval"
	"github.com/Strob0t/FlowForge/internal/domain/swarm"
	"github.com/Strob0t/FlowForge/internal/domain/workflow"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Workflow definitions ---

func (s *Store) SaveDefinition(ctx context.Context, def *workflow.Definition) error {
	phasesJSON, err := json.Marshal(def.Phases)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflow_definitions (id, name, description, version, phases)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET name = $2, description = $3, version = workflow_definitions.version + 1, phases = $5, updated_at = now()`,
		def.ID, def.Name, def.Description, def.Version, phasesJSON)
	if err != nil {
		return fmt.Errorf("save definition %s: %w", def.ID, err)
	}
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*workflow.Definition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, version, phases
		 FROM workflow_definitions WHERE id = $1`, id)

	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get definition %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get definition %s: %w", id, err)
	}
	return def, nil
}

func (s *Store) ListDefinitions(ctx context.Context) ([]workflow.Definition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, version, phases
		 FROM workflow_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []workflow.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("list definitions: %w", err)
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete definition %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete definition %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanDefinition(row pgx.Row) (*workflow.Definition, error) {
	var def workflow.Definition
	var phasesJSON []byte

	if err := row.Scan(&def.ID, &def.Name, &def.Description, &def.Version, &phasesJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(phasesJSON, &def.Phases); err != nil {
		return nil, fmt.Errorf("unmarshal phases: %w", err)
	}
	return &def, nil
}

// --- Swarm session state ---

func (s *Store) SaveSwarmState(ctx context.Context, state *swarm.State) error {
	historyJSON, err := json.Marshal(state.ConversationHistory)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	phasesJSON, err := json.Marshal(state.PhasesExecuted)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO swarm_states
		   (session_id, run_id, task, interactive, current_round, max_rounds,
		    continuation_count, total_rounds, status, history, phases,
		    active_phase, last_worker, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		 ON CONFLICT (session_id) DO UPDATE
		 SET run_id = $2, task = $3, interactive = $4, current_round = $5,
		     max_rounds = $6, continuation_count = $7, total_rounds = $8,
		     status = $9, history = $10, phases = $11, active_phase = $12,
		     last_worker = $13, updated_at = now()`,
		state.SessionID, state.RunID, state.Task, state.Interactive,
		state.CurrentRound, state.MaxRounds, state.ContinuationCount,
		state.TotalRounds, string(state.Status), historyJSON, phasesJSON,
		state.ActivePhase, state.LastWorker, state.CreatedAt)
	if err != nil {
		return fmt.Errorf("save swarm state %s: %w", state.SessionID, err)
	}
	return nil
}

func (s *Store) GetSwarmState(ctx context.Context, sessionID string) (*swarm.State, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, run_id, task, interactive, current_round, max_rounds,
		        continuation_count, total_rounds, status, history, phases,
		        active_phase, last_worker, created_at, updated_at
		 FROM swarm_states WHERE session_id = $1`, sessionID)

	state, err := scanSwarmState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get swarm state %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get swarm state %s: %w", sessionID, err)
	}
	return state, nil
}

func (s *Store) ListSwarmStates(ctx context.Context) ([]swarm.State, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, run_id, task, interactive, current_round, max_rounds,
		        continuation_count, total_rounds, status, history, phases,
		        active_phase, last_worker, created_at, updated_at
		 FROM swarm_states ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list swarm states: %w", err)
	}
	defer rows.Close()

	var states []swarm.State
	for rows.Next() {
		state, err := scanSwarmState(rows)
		if err != nil {
			return nil, fmt.Errorf("list swarm states: %w", err)
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

func scanSwarmState(row pgx.Row) (*swarm.State, error) {
	var state swarm.State
	var status string
	var historyJSON, phasesJSON []byte

	if err := row.Scan(&state.SessionID, &state.RunID, &state.Task, &state.Interactive,
		&state.CurrentRound, &state.MaxRounds, &state.ContinuationCount,
		&state.TotalRounds, &status, &historyJSON, &phasesJSON,
		&state.ActivePhase, &state.LastWorker, &state.CreatedAt, &state.UpdatedAt); err != nil {
		return nil, err
	}
	state.Status = swarm.Status(status)

	if err := json.Unmarshal(historyJSON, &state.ConversationHistory); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if err := json.Unmarshal(phasesJSON, &state.PhasesExecuted); err != nil {
		return nil, fmt.Errorf("unmarshal phases: %w", err)
	}
	return &state, nil
}

// --- Approval audit trail ---

func (s *Store) AppendApprovalAudit(ctx context.Context, entry *approval.AuditEntry) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO approval_audit (run_id, step_id, type, resolution, responder, feedback)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		entry.RunID, entry.StepID, string(entry.Type), entry.Resolution,
		entry.Responder, entry.Feedback)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("append approval audit: %w", err)
	}
	return nil
}

func (s *Store) ListApprovalAudit(ctx context.Context, runID string) ([]approval.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, step_id, type, resolution, responder, feedback, created_at
		 FROM approval_audit WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("list approval audit: %w", err)
	}
	defer rows.Close()

	var entries []approval.AuditEntry
	for rows.Next() {
		var e approval.AuditEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.RunID, &e.StepID, &typ, &e.Resolution,
			&e.Responder, &e.Feedback, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list approval audit: %w", err)
		}
		e.Type = approval.CheckpointType(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
