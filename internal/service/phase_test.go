package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/FlowForge/internal/adapter/otel"
	"github.com/Strob0t/FlowForge/internal/config"
	"github.com/Strob0t/FlowForge/internal/domain/dag"
	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/port/cache"
	"github.com/Strob0t/FlowForge/internal/port/executor"
	"github.com/Strob0t/FlowForge/internal/resilience"
)

func testRegistry() *phase.Registry {
	reg := phase.NewRegistry()
	reg.Register(phase.Definition{Type: "analyze", Executor: "mock"})
	reg.Register(phase.Definition{Type: "implement", Executor: "mock"})
	reg.Register(phase.Definition{Type: "verify", Executor: "mock"})
	reg.Register(phase.Definition{Type: "summarize", Executor: "mock"})
	reg.Register(phase.Definition{
		Type:     "lookup",
		Executor: "mock",
		Defaults: map[string]any{"cacheable": true},
	})
	reg.Register(phase.Definition{
		Type:     "setup",
		Executor: "mock",
		CanSkip: func(input map[string]any) bool {
			done, _ := input["setup_done"].(bool)
			return done
		},
	})
	return reg
}

func testOrchConfig() *config.Orchestrator {
	return &config.Orchestrator{
		MaxParallel:      2,
		ApprovalTimeout:  time.Second,
		DefaultOnTimeout: "reject",
		ResultCache:      true,
	}
}

func newTestPhaseService(t *testing.T, exec executor.Executor, c cache.Cache) (*PhaseService, *mockHub) {
	t.Helper()
	metrics, err := otel.NewMetrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	hub := &mockHub{}
	svc := NewPhaseService(
		testRegistry(),
		map[string]executor.Executor{"mock": exec},
		c,
		hub,
		resilience.NewBreaker(10, time.Second),
		resilience.RetryPolicy{MaxRetries: 2, Delay: time.Millisecond},
		metrics,
		testOrchConfig(),
		time.Minute,
	)
	return svc, hub
}

func newTestSession(id string) *Session {
	sessions := NewSessionService(nil)
	return sessions.GetOrCreate(id)
}

func TestPhaseExecute_SuccessMergesOutput(t *testing.T) {
	exec := newMockExecutor("mock", func(_ int, req phase.ExecRequest) (*phase.Result, error) {
		return &phase.Result{
			Status:     phase.StatusCompleted,
			OutputData: map[string]any{"analysis": "findings"},
		}, nil
	})
	svc, hub := newTestPhaseService(t, exec, nil)
	sess := newTestSession("s1")

	res, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "analyze",
		Task:      "inspect the repo",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if v, _ := sess.Runtime.Get("analysis"); v != "findings" {
		t.Errorf("durable context missing merged output, got %v", v)
	}
	if node := sess.DAG.Node(res.PhaseID); node == nil || node.Status != dag.StatusCompleted {
		t.Errorf("dag node = %+v", node)
	}
	if !hub.has("phase.completed") {
		t.Error("expected phase.completed event")
	}
}

func TestPhaseExecute_RetriesThenSucceeds(t *testing.T) {
	exec := newMockExecutor("mock", func(call int, req phase.ExecRequest) (*phase.Result, error) {
		if call == 1 {
			return nil, errors.New("transient backend error")
		}
		return &phase.Result{
			Status:     phase.StatusCompleted,
			OutputData: map[string]any{"done": true},
		}, nil
	})
	svc, hub := newTestPhaseService(t, exec, nil)
	sess := newTestSession("s1")

	res, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "implement",
		Task:      "write the code",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if node := sess.DAG.Node(res.PhaseID); node.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", node.RetryCount)
	}
	if !hub.has("phase.retried") {
		t.Error("expected phase.retried event")
	}
	// The second attempt carries the retry instruction.
	second := exec.calls[1]
	if second.Task == "write the code" {
		t.Error("retry attempt should annotate the task with the prior failure")
	}
}

func TestPhaseExecute_FailsAfterRetries(t *testing.T) {
	exec := newMockExecutor("mock", func(_ int, _ phase.ExecRequest) (*phase.Result, error) {
		return nil, errors.New("backend down")
	})
	svc, hub := newTestPhaseService(t, exec, nil)
	sess := newTestSession("s1")

	res, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "verify",
		Task:      "run checks",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != phase.StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if exec.callCount() != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", exec.callCount())
	}
	if node := sess.DAG.Node(res.PhaseID); node.Status != dag.StatusFailed {
		t.Errorf("dag status = %s, want failed", node.Status)
	}
	if !hub.has("phase.failed") {
		t.Error("expected phase.failed event")
	}
}

func TestPhaseExecute_UnknownTypeFailsFast(t *testing.T) {
	exec := newMockExecutor("mock", nil)
	svc, _ := newTestPhaseService(t, exec, nil)
	sess := newTestSession("s1")

	_, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "nonexistent",
		Task:      "anything",
	})
	if !errors.Is(err, phase.ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if exec.callCount() != 0 {
		t.Error("executor must not be called for unknown types")
	}
}

func TestPhaseExecute_SkipsWhenInputSatisfied(t *testing.T) {
	exec := newMockExecutor("mock", nil)
	svc, _ := newTestPhaseService(t, exec, nil)
	sess := newTestSession("s1")
	if err := sess.Runtime.Set("setup_done", true); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "setup",
		Task:      "prepare workspace",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("result = %+v", res)
	}
	if exec.callCount() != 0 {
		t.Error("executor must not run for a skipped phase")
	}
	if node := sess.DAG.Node(res.PhaseID); node.Status != dag.StatusSkipped {
		t.Errorf("dag status = %s, want skipped", node.Status)
	}
}

func TestPhaseExecute_CacheRoundTrip(t *testing.T) {
	exec := newMockExecutor("mock", func(_ int, _ phase.ExecRequest) (*phase.Result, error) {
		return &phase.Result{
			Status:     phase.StatusCompleted,
			OutputData: map[string]any{"answer": float64(42)},
		}, nil
	})
	c := newMockCache()
	svc, hub := newTestPhaseService(t, exec, c)
	sess := newTestSession("s1")

	req := phase.ExecRequest{PhaseType: "lookup", Task: "what is the answer"}
	if _, err := svc.Execute(context.Background(), sess, req); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if c.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", c.sets)
	}

	res, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "lookup", Task: "what is the answer",
	})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if exec.callCount() != 1 {
		t.Errorf("executor calls = %d, want 1 (second served from cache)", exec.callCount())
	}
	if v, ok := res.OutputData["answer"]; !ok || v != float64(42) {
		t.Errorf("cached output = %v", res.OutputData)
	}
	if node := sess.DAG.Node(res.PhaseID); node.Status != dag.StatusCached {
		t.Errorf("dag status = %s, want cached", node.Status)
	}
	if !hub.has("phase.cached") {
		t.Error("expected phase.cached event")
	}
}

func TestPhaseExecute_PreviousPlaceholder(t *testing.T) {
	exec := newMockExecutor("mock", func(_ int, _ phase.ExecRequest) (*phase.Result, error) {
		return &phase.Result{Status: phase.StatusCompleted, OutputData: map[string]any{"ok": true}}, nil
	})
	svc, _ := newTestPhaseService(t, exec, nil)
	sess := newTestSession("s1")
	sess.LastOutput = map[string]any{"plan": map[string]any{"steps": float64(3)}}

	_, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "implement",
		Task:      "build it",
		Config:    map[string]any{"steps": "$previous.plan.steps"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := exec.calls[0].Config["steps"]
	if got != float64(3) {
		t.Errorf("substituted config = %v, want 3", got)
	}
}

func TestPhaseExecuteChain_StopsOnFailure(t *testing.T) {
	exec := newMockExecutor("mock", func(call int, req phase.ExecRequest) (*phase.Result, error) {
		if req.PhaseType == "implement" {
			return &phase.Result{Status: phase.StatusFailed, Error: "compile error"}, nil
		}
		return &phase.Result{Status: phase.StatusCompleted, OutputData: map[string]any{"step": req.PhaseType}}, nil
	})
	svc, _ := newTestPhaseService(t, exec, nil)
	// Retries still apply to the failing phase.
	svc.retry = resilience.RetryPolicy{MaxRetries: 0}
	sess := newTestSession("s1")

	results, err := svc.ExecuteChain(context.Background(), sess, []phase.ExecRequest{
		{PhaseType: "analyze", Task: "t"},
		{PhaseType: "implement", Task: "t"},
		{PhaseType: "verify", Task: "t"},
	})
	if err != nil {
		t.Fatalf("ExecuteChain: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (verify never runs)", len(results))
	}
	if results[1].Status != phase.StatusFailed {
		t.Errorf("second result = %+v", results[1])
	}
	// Chained phases are linked in the DAG.
	second := sess.DAG.Node(results[1].PhaseID)
	if len(second.Dependencies) != 1 || second.Dependencies[0] != results[0].PhaseID {
		t.Errorf("chain dependency = %v", second.Dependencies)
	}
}

func TestPhaseExecute_FreshExecutionIDPerAttempt(t *testing.T) {
	exec := newMockExecutor("mock", func(call int, _ phase.ExecRequest) (*phase.Result, error) {
		if call < 3 {
			return nil, errors.New("transient backend error")
		}
		return &phase.Result{
			Status:     phase.StatusCompleted,
			OutputData: map[string]any{"done": true},
		}, nil
	})
	svc, _ := newTestPhaseService(t, exec, nil)
	sess := newTestSession("s1")

	res, err := svc.Execute(context.Background(), sess, phase.ExecRequest{
		PhaseType: "implement",
		Task:      "write the code",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}

	// Every delivery carries its own execution id; the DAG node id stays put.
	seen := map[string]bool{}
	for i, call := range exec.calls {
		if call.ExecutionID == "" {
			t.Fatalf("attempt %d has no execution id", i+1)
		}
		seen[call.ExecutionID] = true
		if call.PhaseID != res.PhaseID {
			t.Errorf("attempt %d phase id = %q, want %q", i+1, call.PhaseID, res.PhaseID)
		}
	}
	if len(seen) != 3 {
		t.Errorf("distinct execution ids = %d, want 3", len(seen))
	}
	if res.ExecutionID != exec.calls[2].ExecutionID {
		t.Errorf("result execution id = %q, want the final attempt's %q",
			res.ExecutionID, exec.calls[2].ExecutionID)
	}
}
