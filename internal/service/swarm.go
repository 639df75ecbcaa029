package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/FlowForge/internal/adapter/otel"
	"github.com/Strob0t/FlowForge/internal/config"
	"github.com/Strob0t/FlowForge/internal/domain"
	"github.com/Strob0t/FlowForge/internal/domain/event"
	"github.com/Strob0t/FlowForge/internal/domain/swarm"
	"github.com/Strob0t/FlowForge/internal/port/approvalgate"
	"github.com/Strob0t/FlowForge/internal/port/broadcast"
	"github.com/Strob0t/FlowForge/internal/port/database"
	"github.com/Strob0t/FlowForge/internal/port/executor"
	"github.com/Strob0t/FlowForge/internal/port/messagequeue"
	"github.com/Strob0t/FlowForge/internal/port/router"
)

var (
	// ErrSessionBusy is returned when a session already has a running loop.
	ErrSessionBusy = errors.New("session is already running")

	// ErrNotContinuable is returned when Continue is called on a session
	// that is not paused awaiting continuation.
	ErrNotContinuable = errors.New("session is not awaiting continuation")
)

// SwarmService drives the round-bounded orchestration loop: each round the
// router classifies the task, the decision is dispatched (worker, phase, or
// a human checkpoint), and the loop pauses when the round budget runs out
// instead of running forever. Continue re-arms the budget.
type SwarmService struct {
	sessions  *SessionService
	phases    *PhaseService
	executors map[string]executor.Executor
	route     router.Router
	gate      approvalgate.Gate
	store     database.Store
	hub       broadcast.Broadcaster
	queue     messagequeue.Queue
	metrics   *otel.Metrics
	cfg       *config.Swarm
	orchCfg   *config.Orchestrator

	mu        sync.Mutex
	states    map[string]*swarm.State
	running   map[string]bool
	cancelled map[string]bool
}

// NewSwarmService creates a SwarmService.
func NewSwarmService(
	sessions *SessionService,
	phases *PhaseService,
	executors map[string]executor.Executor,
	route router.Router,
	gate approvalgate.Gate,
	store database.Store,
	hub broadcast.Broadcaster,
	queue messagequeue.Queue,
	metrics *otel.Metrics,
	cfg *config.Swarm,
	orchCfg *config.Orchestrator,
) *SwarmService {
	return &SwarmService{
		sessions:  sessions,
		phases:    phases,
		executors: executors,
		route:     route,
		gate:      gate,
		store:     store,
		hub:       hub,
		queue:     queue,
		metrics:   metrics,
		cfg:       cfg,
		orchCfg:   orchCfg,
		states:    make(map[string]*swarm.State),
		running:   make(map[string]bool),
		cancelled: make(map[string]bool),
	}
}

// Start begins a new swarm run for the session and drives rounds until the
// task completes, fails, or the round budget pauses the loop.
func (s *SwarmService) Start(ctx context.Context, sessionID, task string, interactive bool) (*swarm.RunResult, error) {
	sess, state, err := s.begin(sessionID, task, interactive)
	if err != nil {
		return nil, err
	}
	defer s.release(sessionID)
	return s.runRounds(ctx, sess, state)
}

// StartAsync begins a run and returns immediately with the registered state;
// the round loop runs in the background, detached from the caller's
// deadline. Progress is observable through State and the event stream.
func (s *SwarmService) StartAsync(ctx context.Context, sessionID, task string, interactive bool) (*swarm.State, error) {
	sess, state, err := s.begin(sessionID, task, interactive)
	if err != nil {
		return nil, err
	}
	go func() {
		defer s.release(sessionID)
		if _, err := s.runRounds(context.WithoutCancel(ctx), sess, state); err != nil {
			slog.Error("swarm run", "session_id", sessionID, "error", err)
		}
	}()
	return state, nil
}

// begin registers a fresh run for the session under the service lock.
func (s *SwarmService) begin(sessionID, task string, interactive bool) (*Session, *swarm.State, error) {
	if task == "" {
		return nil, nil, errors.New("task is required")
	}

	s.mu.Lock()
	if s.running[sessionID] {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionBusy)
	}
	state := swarm.NewState(sessionID, uuid.NewString(), s.cfg.MaxRounds)
	state.Task = task
	state.Interactive = interactive
	state.Status = swarm.StatusRunning
	s.states[sessionID] = state
	s.running[sessionID] = true
	s.cancelled[sessionID] = false
	s.mu.Unlock()

	sess := s.sessions.GetOrCreate(sessionID)
	// The original task survives every merge for the life of the session.
	// A session reused for a new task keeps its first one protected.
	if err := sess.Runtime.SetProtected("task", task); err != nil {
		slog.Debug("task key already protected", "session_id", sessionID, "error", err)
	}
	state.AppendTurn("user", task)

	slog.Info("swarm started", "session_id", sessionID, "run_id", state.RunID,
		"max_rounds", state.MaxRounds, "interactive", interactive)
	return sess, state, nil
}

// Continue resumes a paused session: the round counter resets, the
// continuation is counted, and optional feedback is folded into the task.
func (s *SwarmService) Continue(ctx context.Context, sessionID, feedback string) (*swarm.RunResult, error) {
	sess, state, err := s.resume(ctx, sessionID, feedback)
	if err != nil {
		return nil, err
	}
	defer s.release(sessionID)
	return s.runRounds(ctx, sess, state)
}

// ContinueAsync resumes a paused session in the background, detached from
// the caller's deadline, and returns the re-armed state immediately.
func (s *SwarmService) ContinueAsync(ctx context.Context, sessionID, feedback string) (*swarm.State, error) {
	sess, state, err := s.resume(ctx, sessionID, feedback)
	if err != nil {
		return nil, err
	}
	go func() {
		defer s.release(sessionID)
		if _, err := s.runRounds(context.WithoutCancel(ctx), sess, state); err != nil {
			slog.Error("swarm continue", "session_id", sessionID, "error", err)
		}
	}()
	return state, nil
}

// resume re-arms a paused session's round budget under the service lock.
func (s *SwarmService) resume(ctx context.Context, sessionID, feedback string) (*Session, *swarm.State, error) {
	s.mu.Lock()
	state, ok := s.states[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if s.running[sessionID] {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionBusy)
	}
	if state.Status != swarm.StatusPaused && state.Status != swarm.StatusWaitingInput {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("session %s is %s: %w", sessionID, state.Status, ErrNotContinuable)
	}

	state.CurrentRound = 0
	state.ContinuationCount++
	state.Status = swarm.StatusRunning
	state.Task = swarm.FoldFeedback(state.Task, feedback, s.cfg.FeedbackWindow)
	s.running[sessionID] = true
	s.mu.Unlock()

	if feedback != "" {
		state.AppendTurn("user", feedback)
	}
	sess := s.sessions.GetOrCreate(sessionID)
	s.emit(ctx, state, event.TypeSwarmContinued, map[string]any{
		"continuation": state.ContinuationCount,
	})
	slog.Info("swarm continued", "session_id", sessionID,
		"continuation", state.ContinuationCount, "total_rounds", state.TotalRounds)
	return sess, state, nil
}

// Cancel requests a running session stop at the next round boundary.
func (s *SwarmService) Cancel(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	s.cancelled[sessionID] = true
	s.publish(ctx, sessionID, "cancel_requested", 0, "")
	slog.Info("swarm cancel requested", "session_id", sessionID)
	return nil
}

// State returns the current state for a session.
func (s *SwarmService) State(sessionID string) (*swarm.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return state, nil
}

// ListStates returns all known session states.
func (s *SwarmService) ListStates() []swarm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]swarm.State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, *st)
	}
	return out
}

func (s *SwarmService) release(sessionID string) {
	s.mu.Lock()
	s.running[sessionID] = false
	s.mu.Unlock()
}

func (s *SwarmService) isCancelled(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[sessionID]
}

// persist saves the swarm state and session context, best effort.
func (s *SwarmService) persist(ctx context.Context, sess *Session, state *swarm.State) {
	state.UpdatedAt = time.Now()
	if s.store != nil {
		if err := s.store.SaveSwarmState(ctx, state); err != nil {
			slog.Warn("save swarm state", "session_id", state.SessionID, "error", err)
		}
	}
	s.sessions.Persist(ctx, sess)
}

func (s *SwarmService) emit(ctx context.Context, state *swarm.State, typ event.Type, payload map[string]any) {
	if s.hub != nil {
		body := map[string]any{"round": state.CurrentRound}
		for k, v := range payload {
			body[k] = v
		}
		ev := event.New(typ, state.SessionID, body)
		ev.RunID = state.RunID
		s.hub.BroadcastEvent(ctx, string(typ), ev)
	}
	s.publish(ctx, state.SessionID, string(typ), state.CurrentRound, "")
}

// publish mirrors lifecycle events onto the message fabric for external
// consumers. Failures are logged, never propagated.
func (s *SwarmService) publish(ctx context.Context, sessionID, eventType string, round int, detail string) {
	if s.queue == nil || !s.queue.IsConnected() {
		return
	}
	payload, err := json.Marshal(messagequeue.SwarmEventPayload{
		SessionID: sessionID,
		EventType: eventType,
		Round:     round,
		Detail:    detail,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectSwarmEvents, payload); err != nil {
		slog.Debug("publish swarm event", "session_id", sessionID, "type", eventType, "error", err)
	}
}
