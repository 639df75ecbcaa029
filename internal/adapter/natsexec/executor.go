// Package natsexec implements the executor port over the NATS message
// fabric: phases are dispatched to remote agent workers on a per-executor
// subject and results come back on the shared result subject.
package natsexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/port/executor"
	"github.com/Strob0t/FlowForge/internal/port/messagequeue"
)

// Register registers a NATS executor factory under name, bound to queue.
func Register(queue messagequeue.Queue, name string) {
	executor.Register(name, func(_ map[string]string) (executor.Executor, error) {
		return New(queue, name)
	})
}

// Executor dispatches phases to a remote worker pool via NATS and blocks
// until the matching result arrives.
type Executor struct {
	queue messagequeue.Queue
	name  string

	mu      sync.Mutex
	pending map[string]chan messagequeue.PhaseResultPayload
	stop    func()
}

// New creates a NATS-backed executor named name and subscribes to the
// shared result subject.
func New(queue messagequeue.Queue, name string) (*Executor, error) {
	e := &Executor{
		queue:   queue,
		name:    name,
		pending: make(map[string]chan messagequeue.PhaseResultPayload),
	}

	stop, err := queue.Subscribe(context.Background(), messagequeue.SubjectPhaseResult, e.handleResult)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectPhaseResult, err)
	}
	e.stop = stop
	return e, nil
}

// Name returns the executor's registered name.
func (e *Executor) Name() string { return e.name }

// Execute publishes the phase to the worker subject and waits for the
// result or ctx cancellation.
func (e *Executor) Execute(ctx context.Context, req phase.ExecRequest) (*phase.Result, error) {
	data, err := json.Marshal(messagequeue.PhaseDispatchPayload{
		PhaseID:   req.PhaseID,
		PhaseType: req.PhaseType,
		Task:      req.Task,
		Config:    req.Config,
		InputData: req.InputData,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal dispatch: %w", e.name, err)
	}

	ch := make(chan messagequeue.PhaseResultPayload, 1)
	e.mu.Lock()
	e.pending[req.PhaseID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, req.PhaseID)
		e.mu.Unlock()
	}()

	subject := messagequeue.SubjectPhaseDispatch + "." + e.name
	if err := e.queue.Publish(ctx, subject, data); err != nil {
		return nil, fmt.Errorf("%s: publish dispatch: %w", e.name, err)
	}

	select {
	case payload := <-ch:
		return &phase.Result{
			PhaseID:    payload.PhaseID,
			PhaseType:  req.PhaseType,
			Status:     phase.Status(payload.Status),
			OutputData: payload.OutputData,
			Error:      payload.Error,
		}, nil
	case <-ctx.Done():
		// Best effort: tell the worker to stop the abandoned phase.
		_ = e.Stop(context.WithoutCancel(ctx), req.PhaseID)
		return nil, fmt.Errorf("%s: phase %s: %w", e.name, req.PhaseID, ctx.Err())
	}
}

// Stop publishes a cancel signal for a running phase.
func (e *Executor) Stop(ctx context.Context, phaseID string) error {
	data, err := json.Marshal(messagequeue.PhaseCancelPayload{PhaseID: phaseID})
	if err != nil {
		return fmt.Errorf("%s: marshal cancel: %w", e.name, err)
	}
	if err := e.queue.Publish(ctx, messagequeue.SubjectPhaseCancel, data); err != nil {
		return fmt.Errorf("%s: publish cancel: %w", e.name, err)
	}
	return nil
}

// Close cancels the result subscription.
func (e *Executor) Close() {
	if e.stop != nil {
		e.stop()
	}
}

// handleResult routes an incoming result to the waiting Execute call.
// Results for unknown phases are acked and dropped: they belong to a
// request that timed out or to another executor instance.
func (e *Executor) handleResult(_ context.Context, _ string, data []byte) error {
	var payload messagequeue.PhaseResultPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%s: decode result: %w", e.name, err)
	}

	e.mu.Lock()
	ch, ok := e.pending[payload.PhaseID]
	e.mu.Unlock()
	if !ok {
		slog.Debug("result for unknown phase dropped", "executor", e.name, "phase_id", payload.PhaseID)
		return nil
	}

	select {
	case ch <- payload:
	default:
	}
	return nil
}
