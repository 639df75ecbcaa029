package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/FlowForge/internal/adapter/otel"
	"github.com/Strob0t/FlowForge/internal/config"
	"github.com/Strob0t/FlowForge/internal/domain/approval"
	"github.com/Strob0t/FlowForge/internal/domain/durable"
	"github.com/Strob0t/FlowForge/internal/domain/event"
	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/port/broadcast"
	"github.com/Strob0t/FlowForge/internal/port/cache"
	"github.com/Strob0t/FlowForge/internal/port/executor"
	"github.com/Strob0t/FlowForge/internal/resilience"
)

// PhaseService executes individual phases: it resolves the phase type,
// registers the execution in the session DAG, applies retry and circuit
// breaking around the executor call, and folds successful output into the
// session's durable context.
type PhaseService struct {
	registry  *phase.Registry
	executors map[string]executor.Executor
	cache     cache.Cache
	hub       broadcast.Broadcaster
	breaker   *resilience.Breaker
	retry     resilience.RetryPolicy
	sem       *semaphore.Weighted
	metrics   *otel.Metrics
	cfg       *config.Orchestrator
	cacheTTL  time.Duration
}

// NewPhaseService creates a PhaseService. resultCache may be nil to disable
// caching; metrics are always required (the no-op global meter makes them
// free when no exporter is configured).
func NewPhaseService(
	registry *phase.Registry,
	executors map[string]executor.Executor,
	resultCache cache.Cache,
	hub broadcast.Broadcaster,
	breaker *resilience.Breaker,
	retry resilience.RetryPolicy,
	metrics *otel.Metrics,
	cfg *config.Orchestrator,
	cacheTTL time.Duration,
) *PhaseService {
	return &PhaseService{
		registry:  registry,
		executors: executors,
		cache:     resultCache,
		hub:       hub,
		breaker:   breaker,
		retry:     retry,
		sem:       semaphore.NewWeighted(int64(cfg.MaxParallel)),
		metrics:   metrics,
		cfg:       cfg,
		cacheTTL:  cacheTTL,
	}
}

// Types returns the registered phase types.
func (s *PhaseService) Types() []string {
	return s.registry.Types()
}

// Execute runs one phase inside a session. The returned result is terminal:
// completed, failed after retries, or needs_approval for the caller to pause
// on. A nil error with a failed result means the phase itself failed; errors
// are reserved for structural problems (unknown type, bad request, cycles).
func (s *PhaseService) Execute(ctx context.Context, sess *Session, req phase.ExecRequest) (*phase.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	def, err := s.registry.Get(req.PhaseType)
	if err != nil {
		return nil, err
	}
	if req.PhaseID == "" {
		req.PhaseID = uuid.NewString()
	}

	merged := def.MergedConfig(req.Config)
	// Placeholder substitution sees the previous phase's output.
	if sess.LastOutput != nil {
		merged = phase.SubstitutePrevious(merged, sess.LastOutput).(map[string]any)
	}
	req.Config = merged
	req.InputData = s.buildInput(sess, req.InputData)

	deps := req.DependsOn
	if req.ParentPhaseID != "" && !containsString(deps, req.ParentPhaseID) {
		deps = append(append([]string(nil), deps...), req.ParentPhaseID)
	}
	if err := sess.DAG.AddNode(req.PhaseID, req.PhaseType, merged, deps); err != nil {
		return nil, fmt.Errorf("register phase %s: %w", req.PhaseID, err)
	}

	if def.CanSkip != nil && def.CanSkip(req.InputData) {
		_ = sess.DAG.MarkSkipped(req.PhaseID)
		slog.Info("phase skipped", "phase_id", req.PhaseID, "phase_type", req.PhaseType)
		return &phase.Result{
			PhaseID:    req.PhaseID,
			PhaseType:  req.PhaseType,
			Status:     phase.StatusCompleted,
			OutputData: map[string]any{"skipped": true},
		}, nil
	}

	if res, ok := s.cachedResult(ctx, sess, req); ok {
		return res, nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire execution slot: %w", err)
	}
	defer s.sem.Release(1)

	return s.run(ctx, sess, def, req)
}

// run drives the retry loop around the executor call.
func (s *PhaseService) run(ctx context.Context, sess *Session, def phase.Definition, req phase.ExecRequest) (*phase.Result, error) {
	exec, ok := s.executors[def.Executor]
	if !ok {
		return nil, fmt.Errorf("phase type %q: executor %q not configured", req.PhaseType, def.Executor)
	}

	_ = sess.DAG.MarkRunning(req.PhaseID)
	s.metrics.PhasesStarted.Add(ctx, 1)
	s.emit(ctx, sess, event.TypePhaseStarted, req.PhaseID, map[string]any{"phase_type": req.PhaseType})

	started := time.Now()
	var result *phase.Result
	attempts := 0

	retryErr := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		attemptReq := req
		// Every attempt is its own delivery, so a retry can never be
		// confused with its predecessor downstream.
		attemptReq.ExecutionID = uuid.NewString()
		if attempt > 1 && result != nil {
			ra := approval.RetryAttempt{
				AttemptNumber: attempt - 1,
				MaxAttempts:   s.retry.MaxRetries + 1,
				ErrorMessage:  result.Error,
				PriorOutput:   result.OutputData,
			}
			attemptReq.Task = ra.Instruction(req.Task)
		}

		return s.breaker.Execute(ctx, func(ctx context.Context) error {
			execCtx := ctx
			if s.cfg.PhaseTimeout > 0 {
				var cancel context.CancelFunc
				execCtx, cancel = context.WithTimeout(ctx, s.cfg.PhaseTimeout)
				defer cancel()
			}
			res, err := exec.Execute(execCtx, attemptReq)
			if err != nil {
				result = &phase.Result{
					PhaseID:     req.PhaseID,
					ExecutionID: attemptReq.ExecutionID,
					PhaseType:   req.PhaseType,
					Status:      phase.StatusFailed,
					Error:       err.Error(),
				}
				return err
			}
			res.ExecutionID = attemptReq.ExecutionID
			result = res
			if res.Status == phase.StatusFailed {
				return fmt.Errorf("phase %s failed: %s", req.PhaseID, res.Error)
			}
			return nil
		})
	}, func(attempt int, err error) {
		_ = sess.DAG.RecordRetry(req.PhaseID)
		s.metrics.PhaseRetries.Add(ctx, 1)
		s.emit(ctx, sess, event.TypePhaseRetried, req.PhaseID, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		slog.Warn("phase retry", "phase_id", req.PhaseID, "attempt", attempt, "error", err)
	})

	duration := time.Since(started)
	if result == nil {
		result = &phase.Result{PhaseID: req.PhaseID, PhaseType: req.PhaseType, Status: phase.StatusFailed}
		if retryErr != nil {
			result.Error = retryErr.Error()
		}
	}
	result.Attempts = attempts
	result.Duration = duration
	s.metrics.PhaseDuration.Record(ctx, duration.Seconds())

	switch {
	case retryErr != nil:
		_ = sess.DAG.MarkFailed(req.PhaseID, result.Error)
		s.metrics.PhasesFailed.Add(ctx, 1)
		s.emit(ctx, sess, event.TypePhaseFailed, req.PhaseID, map[string]any{"error": result.Error})
		slog.Error("phase failed", "phase_id", req.PhaseID, "attempts", attempts, "error", result.Error)
		return result, nil

	case result.Status == phase.StatusNeedsApproval:
		// Leave the node running; the caller resolves the gate and either
		// resumes or fails the phase.
		s.emit(ctx, sess, event.TypeApprovalRequested, req.PhaseID, nil)
		return result, nil

	default:
		_ = sess.DAG.MarkCompleted(req.PhaseID, result.OutputData)
		s.mergeResult(sess, req, result)
		s.storeCached(ctx, req, result)
		s.metrics.PhasesCompleted.Add(ctx, 1)
		s.emit(ctx, sess, event.TypePhaseCompleted, req.PhaseID, map[string]any{
			"duration_ms": duration.Milliseconds(),
			"attempts":    attempts,
		})
		slog.Info("phase completed", "phase_id", req.PhaseID, "phase_type", req.PhaseType,
			"attempts", attempts, "duration", duration)
		return result, nil
	}
}

// ExecuteChain runs phases sequentially, threading each output into the next
// phase's input. The first failure stops the chain.
func (s *PhaseService) ExecuteChain(ctx context.Context, sess *Session, reqs []phase.ExecRequest) ([]*phase.Result, error) {
	results := make([]*phase.Result, 0, len(reqs))
	prevID := ""
	for i := range reqs {
		req := reqs[i]
		if req.ParentPhaseID == "" {
			req.ParentPhaseID = prevID
		}
		res, err := s.Execute(ctx, sess, req)
		if err != nil {
			return results, fmt.Errorf("chain phase %d: %w", i, err)
		}
		results = append(results, res)
		if !res.Succeeded() {
			return results, nil
		}
		prevID = res.PhaseID
	}
	return results, nil
}

// ResumeApproved finalizes a phase that paused on needs_approval after the
// gate approved it. The held output becomes the phase's result.
func (s *PhaseService) ResumeApproved(ctx context.Context, sess *Session, result *phase.Result) {
	result.Status = phase.StatusCompleted
	_ = sess.DAG.MarkCompleted(result.PhaseID, result.OutputData)
	req := phase.ExecRequest{PhaseID: result.PhaseID, PhaseType: result.PhaseType}
	s.mergeResult(sess, req, result)
	s.metrics.PhasesCompleted.Add(ctx, 1)
	s.emit(ctx, sess, event.TypePhaseCompleted, result.PhaseID, nil)
}

// FailRejected finalizes a phase whose approval was rejected.
func (s *PhaseService) FailRejected(ctx context.Context, sess *Session, result *phase.Result, feedback string) {
	result.Status = phase.StatusFailed
	result.Error = "rejected by reviewer"
	if feedback != "" {
		result.Error += ": " + feedback
	}
	_ = sess.DAG.MarkFailed(result.PhaseID, result.Error)
	s.metrics.PhasesFailed.Add(ctx, 1)
	s.emit(ctx, sess, event.TypePhaseFailed, result.PhaseID, map[string]any{"error": result.Error})
}

// buildInput layers request input over the session's persistent state.
func (s *PhaseService) buildInput(sess *Session, input map[string]any) map[string]any {
	out := sess.Runtime.Persistent()
	for k, v := range input {
		out[k] = v
	}
	if sess.LastOutput != nil {
		return phase.SubstitutePrevious(out, sess.LastOutput).(map[string]any)
	}
	return out
}

// mergeResult folds a successful output into the durable context using the
// strategy named in the phase config (default: safe).
func (s *PhaseService) mergeResult(sess *Session, req phase.ExecRequest, result *phase.Result) {
	sess.LastOutput = result.OutputData
	if len(result.OutputData) == 0 {
		return
	}
	strategy := durable.MergeSafe
	prefix := ""
	if v, ok := req.Config["merge_strategy"].(string); ok && v != "" {
		strategy = durable.MergeStrategy(v)
	}
	if v, ok := req.Config["merge_prefix"].(string); ok {
		prefix = v
	}
	if prefix == "" && strategy == durable.MergePrefixed {
		prefix = req.PhaseType
	}
	if err := sess.Runtime.MergePhaseResults(result.OutputData, strategy, prefix); err != nil {
		slog.Warn("merge phase results", "phase_id", req.PhaseID, "strategy", strategy, "error", err)
	}
}

// cachedResult serves an idempotent phase from the result cache.
func (s *PhaseService) cachedResult(ctx context.Context, sess *Session, req phase.ExecRequest) (*phase.Result, bool) {
	if s.cache == nil || !s.cfg.ResultCache || !cacheableConfig(req.Config) {
		return nil, false
	}
	blob, ok, err := s.cache.Get(ctx, s.cacheKey(req))
	if err != nil || !ok {
		return nil, false
	}
	var res phase.Result
	if err := json.Unmarshal(blob, &res); err != nil {
		return nil, false
	}
	res.PhaseID = req.PhaseID
	_ = sess.DAG.MarkCached(req.PhaseID, res.OutputData)
	s.mergeResult(sess, req, &res)
	s.metrics.PhasesCached.Add(ctx, 1)
	s.emit(ctx, sess, event.TypePhaseCached, req.PhaseID, nil)
	slog.Info("phase served from cache", "phase_id", req.PhaseID, "phase_type", req.PhaseType)
	return &res, true
}

// storeCached persists a completed result for future identical requests.
func (s *PhaseService) storeCached(ctx context.Context, req phase.ExecRequest, result *phase.Result) {
	if s.cache == nil || !s.cfg.ResultCache || !cacheableConfig(req.Config) {
		return
	}
	blob, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(req), blob, s.cacheTTL); err != nil {
		slog.Debug("cache phase result", "phase_id", req.PhaseID, "error", err)
	}
}

// cacheableConfig: phases opt in to caching; side-effecting phases must not.
func cacheableConfig(cfg map[string]any) bool {
	v, ok := cfg["cacheable"].(bool)
	return ok && v
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// cacheKey derives a stable key from the phase type, task, and config.
func (s *PhaseService) cacheKey(req phase.ExecRequest) string {
	payload, _ := json.Marshal(map[string]any{
		"type":   req.PhaseType,
		"task":   req.Task,
		"config": req.Config,
	})
	sum := sha256.Sum256(payload)
	return "phase:" + hex.EncodeToString(sum[:])
}

func (s *PhaseService) emit(ctx context.Context, sess *Session, typ event.Type, phaseID string, payload map[string]any) {
	if s.hub == nil {
		return
	}
	ev := event.New(typ, sess.ID, payload)
	ev.PhaseID = phaseID
	s.hub.BroadcastEvent(ctx, string(typ), ev)
}

