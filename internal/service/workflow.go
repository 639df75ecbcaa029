package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/FlowForge/internal/adapter/otel"
	"github.com/Strob0t/FlowForge/internal/config"
	"github.com/Strob0t/FlowForge/internal/domain"
	"github.com/Strob0t/FlowForge/internal/domain/approval"
	"github.com/Strob0t/FlowForge/internal/domain/event"
	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/domain/workflow"
	"github.com/Strob0t/FlowForge/internal/port/approvalgate"
	"github.com/Strob0t/FlowForge/internal/port/broadcast"
	"github.com/Strob0t/FlowForge/internal/port/database"
)

// ErrBuiltinImmutable is returned on attempts to overwrite or delete a
// builtin workflow definition.
var ErrBuiltinImmutable = errors.New("builtin workflow definitions are immutable")

// RunStatus is the state of one workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// WorkflowRun is the outcome of executing a workflow definition.
type WorkflowRun struct {
	RunID        string            `json:"run_id"`
	WorkflowID   string            `json:"workflow_id"`
	SessionID    string            `json:"session_id"`
	Status       RunStatus         `json:"status"`
	PhaseResults []*phase.Result   `json:"phase_results"`
	Context      *workflow.Context `json:"context"`
	Error        string            `json:"error,omitempty"`
}

// WorkflowService executes workflow definitions phase by phase on top of the
// phase orchestrator, and manages the definition catalog (builtins, YAML
// files, user-created definitions in the store).
type WorkflowService struct {
	registry *phase.Registry
	phases   *PhaseService
	sessions *SessionService
	store    database.Store
	gate     approvalgate.Gate
	hub      broadcast.Broadcaster
	metrics  *otel.Metrics
	cfg      *config.Orchestrator

	builtins map[string]workflow.Definition

	runsMu sync.Mutex
	runs   map[string]*WorkflowRun
}

// NewWorkflowService creates a WorkflowService with the builtin catalog
// pre-loaded.
func NewWorkflowService(
	registry *phase.Registry,
	phases *PhaseService,
	sessions *SessionService,
	store database.Store,
	gate approvalgate.Gate,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
	cfg *config.Orchestrator,
) *WorkflowService {
	builtins := make(map[string]workflow.Definition)
	for _, def := range workflow.BuiltinDefinitions() {
		builtins[def.ID] = def
	}
	return &WorkflowService{
		registry: registry,
		phases:   phases,
		sessions: sessions,
		store:    store,
		gate:     gate,
		hub:      hub,
		metrics:  metrics,
		cfg:      cfg,
		builtins: builtins,
		runs:     make(map[string]*WorkflowRun),
	}
}

// LoadDirectory imports YAML workflow definitions from dir into the store.
// A missing directory is not an error.
func (s *WorkflowService) LoadDirectory(ctx context.Context, dir string) error {
	defs, err := workflow.LoadFromDirectory(dir, s.registry)
	if err != nil {
		return fmt.Errorf("load workflows from %s: %w", dir, err)
	}
	for i := range defs {
		if _, ok := s.builtins[defs[i].ID]; ok {
			slog.Warn("workflow file shadows builtin, skipped", "workflow_id", defs[i].ID)
			continue
		}
		if err := s.store.SaveDefinition(ctx, &defs[i]); err != nil {
			return fmt.Errorf("save workflow %s: %w", defs[i].ID, err)
		}
	}
	if len(defs) > 0 {
		slog.Info("workflow definitions loaded", "dir", dir, "count", len(defs))
	}
	return nil
}

// CreateDefinition validates and persists a user-defined workflow.
func (s *WorkflowService) CreateDefinition(ctx context.Context, def *workflow.Definition) error {
	if _, ok := s.builtins[def.ID]; ok {
		return fmt.Errorf("workflow %s: %w", def.ID, ErrBuiltinImmutable)
	}
	if err := def.Validate(s.registry); err != nil {
		return fmt.Errorf("validate workflow %s: %w", def.ID, err)
	}
	if err := s.store.SaveDefinition(ctx, def); err != nil {
		return fmt.Errorf("store workflow %s: %w", def.ID, err)
	}
	slog.Info("workflow definition created", "workflow_id", def.ID, "phases", len(def.Phases))
	return nil
}

// GetDefinition returns a definition by id, builtins first.
func (s *WorkflowService) GetDefinition(ctx context.Context, id string) (*workflow.Definition, error) {
	if def, ok := s.builtins[id]; ok {
		return &def, nil
	}
	return s.store.GetDefinition(ctx, id)
}

// ListDefinitions returns builtins plus stored definitions.
func (s *WorkflowService) ListDefinitions(ctx context.Context) ([]workflow.Definition, error) {
	stored, err := s.store.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]workflow.Definition, 0, len(s.builtins)+len(stored))
	for _, def := range workflow.BuiltinDefinitions() {
		out = append(out, def)
	}
	return append(out, stored...), nil
}

// DeleteDefinition removes a stored definition. Builtins cannot be deleted.
func (s *WorkflowService) DeleteDefinition(ctx context.Context, id string) error {
	if _, ok := s.builtins[id]; ok {
		return fmt.Errorf("workflow %s: %w", id, ErrBuiltinImmutable)
	}
	return s.store.DeleteDefinition(ctx, id)
}

// Execute runs a workflow definition within the session. Phases run in
// declaration order; dependency edges are recorded in the session DAG.
// The first failed phase stops the run. A needs_approval result suspends
// the run on the approval gate before the next phase starts.
func (s *WorkflowService) Execute(ctx context.Context, sessionID, workflowID, task, workDir string) (*WorkflowRun, error) {
	def, run, err := s.prepare(ctx, sessionID, workflowID, task, workDir)
	if err != nil {
		return nil, err
	}
	s.runPhases(ctx, def, run, task)
	return run, nil
}

// ExecuteAsync validates and registers the run, then drives the phases in
// the background, detached from the caller's deadline. The returned view is
// a point-in-time copy; GetRun serves fresher ones as phases finish.
func (s *WorkflowService) ExecuteAsync(ctx context.Context, sessionID, workflowID, task, workDir string) (*WorkflowRun, error) {
	def, run, err := s.prepare(ctx, sessionID, workflowID, task, workDir)
	if err != nil {
		return nil, err
	}
	go s.runPhases(context.WithoutCancel(ctx), def, run, task)
	return s.GetRun(run.RunID)
}

// GetRun returns the tracked view of a run, live or finished.
func (s *WorkflowService) GetRun(runID string) (*WorkflowRun, error) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return run, nil
}

// trackRun replaces the tracked view with a copy the run loop will not
// touch again, so polls never race the loop.
func (s *WorkflowService) trackRun(run *WorkflowRun) {
	snap := *run
	snap.PhaseResults = append([]*phase.Result(nil), run.PhaseResults...)
	if run.Context != nil {
		snap.Context = run.Context.Clone()
	}
	s.runsMu.Lock()
	s.runs[run.RunID] = &snap
	s.runsMu.Unlock()
}

// prepare resolves and validates the definition and registers a fresh run.
func (s *WorkflowService) prepare(ctx context.Context, sessionID, workflowID, task, workDir string) (*workflow.Definition, *WorkflowRun, error) {
	def, err := s.GetDefinition(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("workflow %s: %w", workflowID, err)
	}
	if err := def.Validate(s.registry); err != nil {
		return nil, nil, fmt.Errorf("workflow %s: %w", workflowID, err)
	}

	run := &WorkflowRun{
		RunID:      uuid.NewString(),
		WorkflowID: def.ID,
		SessionID:  sessionID,
		Status:     RunRunning,
		Context:    workflow.NewContext(task, workDir, ""),
	}
	s.trackRun(run)
	return def, run, nil
}

// runPhases drives the declared phases to a terminal run status.
func (s *WorkflowService) runPhases(ctx context.Context, def *workflow.Definition, run *WorkflowRun, task string) {
	sess := s.sessions.GetOrCreate(run.SessionID)
	sess.Lock()
	defer sess.Unlock()

	s.metrics.WorkflowRuns.Add(ctx, 1)
	s.emit(ctx, run, event.TypeWorkflowStarted, map[string]any{"workflow_id": def.ID})
	slog.Info("workflow started", "run_id", run.RunID, "workflow_id", def.ID, "phases", len(def.Phases))

	started := time.Now()
	phaseIDs := make([]string, len(def.Phases))
	for i := range phaseIDs {
		phaseIDs[i] = uuid.NewString()
	}

	for i, spec := range def.Phases {
		deps := make([]string, 0, len(spec.DependsOn))
		for _, d := range spec.DependsOn {
			deps = append(deps, phaseIDs[d])
		}

		if spec.CanSkip(run.Context.OutputData) {
			_ = sess.DAG.AddNode(phaseIDs[i], spec.Type, spec.Config, deps)
			_ = sess.DAG.MarkSkipped(phaseIDs[i])
			run.PhaseResults = append(run.PhaseResults, &phase.Result{
				PhaseID:   phaseIDs[i],
				PhaseType: spec.Type,
				Status:    phase.StatusSkipped,
			})
			slog.Info("phase skipped", "run_id", run.RunID, "phase_type", spec.Type,
				"skip_key", spec.SkipIf.Key)
			continue
		}

		res, err := s.phases.Execute(ctx, sess, phase.ExecRequest{
			PhaseID:   phaseIDs[i],
			PhaseType: spec.Type,
			Task:      task,
			Config:    spec.Config,
			InputData: run.Context.OutputData,
			DependsOn: deps,
		})
		if err != nil {
			run.Status = RunFailed
			run.Error = err.Error()
			break
		}

		if res.Status == phase.StatusNeedsApproval {
			res = s.resolveApproval(ctx, sess, run, res)
		}
		run.PhaseResults = append(run.PhaseResults, res)

		if !res.Succeeded() {
			run.Status = RunFailed
			run.Error = res.Error
			break
		}

		run.Context.MergeOutput(res.OutputData)
		run.Context.RecordTiming(res.PhaseID, res.Duration)
		s.trackRun(run)
	}

	run.Context.RecordTiming("total", time.Since(started))
	if run.Status == RunRunning {
		run.Status = RunCompleted
	}
	s.trackRun(run)
	s.sessions.Persist(ctx, sess)

	if run.Status == RunFailed {
		s.emit(ctx, run, event.TypeWorkflowFailed, map[string]any{"error": run.Error})
		slog.Error("workflow failed", "run_id", run.RunID, "workflow_id", def.ID, "error", run.Error)
	} else {
		s.emit(ctx, run, event.TypeWorkflowCompleted, map[string]any{
			"duration_ms": time.Since(started).Milliseconds(),
		})
		slog.Info("workflow completed", "run_id", run.RunID, "workflow_id", def.ID,
			"duration", time.Since(started))
	}
}

// resolveApproval blocks the run on the approval gate and resumes or fails
// the paused phase per the resolution. On timeout the configured default
// action applies.
func (s *WorkflowService) resolveApproval(ctx context.Context, sess *Session, run *WorkflowRun, res *phase.Result) *phase.Result {
	checkpoint := approval.Checkpoint{
		Type:          approval.CheckpointApproval,
		Message:       approvalMessage(res),
		AllowFeedback: true,
	}
	s.emit(ctx, run, event.TypeWorkflowPaused, map[string]any{"phase_id": res.PhaseID})

	reqID, err := s.gate.CreateRequest(ctx, approvalgate.Request{
		RunID:           run.RunID,
		StepID:          res.PhaseID,
		Checkpoint:      checkpoint,
		ContextSnapshot: sess.Runtime.Persistent(),
	})
	if err != nil {
		s.phases.FailRejected(ctx, sess, res, "approval gate unavailable: "+err.Error())
		return res
	}

	waitStart := time.Now()
	resolution, err := s.gate.AwaitResolution(ctx, reqID, s.cfg.ApprovalTimeout)
	s.metrics.ApprovalWaits.Record(ctx, time.Since(waitStart).Seconds())

	if err != nil {
		if errors.Is(err, approvalgate.ErrTimeout) {
			slog.Warn("approval timed out", "run_id", run.RunID, "phase_id", res.PhaseID,
				"default", s.cfg.DefaultOnTimeout)
			resolution = &approval.Resolution{Resolution: s.cfg.DefaultOnTimeout}
		} else {
			s.phases.FailRejected(ctx, sess, res, "approval wait aborted: "+err.Error())
			return res
		}
	}

	s.recordAudit(ctx, run, res.PhaseID, checkpoint.Type, resolution)

	if resolution.Resolution == approval.ResolutionApprove {
		s.phases.ResumeApproved(ctx, sess, res)
	} else {
		s.phases.FailRejected(ctx, sess, res, resolution.UserFeedback)
	}
	return res
}

// recordAudit appends the resolved checkpoint to the audit trail.
func (s *WorkflowService) recordAudit(ctx context.Context, run *WorkflowRun, stepID string, typ approval.CheckpointType, resolution *approval.Resolution) {
	entry := &approval.AuditEntry{
		ID:         uuid.NewString(),
		RunID:      run.RunID,
		StepID:     stepID,
		Type:       typ,
		Resolution: resolution.Resolution,
		Feedback:   resolution.UserFeedback,
		CreatedAt:  time.Now(),
	}
	if err := s.store.AppendApprovalAudit(ctx, entry); err != nil {
		slog.Warn("append approval audit", "run_id", run.RunID, "error", err)
	}
	s.emit(ctx, run, event.TypeApprovalResolved, map[string]any{
		"step_id":    stepID,
		"resolution": resolution.Resolution,
	})
}

// ApprovalAudit returns the audit trail for one run.
func (s *WorkflowService) ApprovalAudit(ctx context.Context, runID string) ([]approval.AuditEntry, error) {
	entries, err := s.store.ListApprovalAudit(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list approval audit %s: %w", runID, err)
	}
	if entries == nil {
		entries = []approval.AuditEntry{}
	}
	return entries, nil
}

func (s *WorkflowService) emit(ctx context.Context, run *WorkflowRun, typ event.Type, payload map[string]any) {
	if s.hub == nil {
		return
	}
	ev := event.New(typ, run.SessionID, payload)
	ev.RunID = run.RunID
	s.hub.BroadcastEvent(ctx, string(typ), ev)
}

// approvalMessage extracts the executor's approval prompt, with a fallback.
func approvalMessage(res *phase.Result) string {
	if msg, ok := res.OutputData["approval_message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("phase %s (%s) requires approval", res.PhaseID, res.PhaseType)
}
