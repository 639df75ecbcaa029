// Package hitl implements the approval gate port in memory: pending
// checkpoints are held as buffered channels and resolved by the HTTP or
// WebSocket layer when a human answers.
package hitl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/FlowForge/internal/domain/approval"
	"github.com/Strob0t/FlowForge/internal/port/approvalgate"
	"github.com/Strob0t/FlowForge/internal/port/broadcast"
)

// EventApprovalRequested is broadcast when a checkpoint is created.
const EventApprovalRequested = "approval.requested"

// pendingRequest pairs a registered checkpoint with its resolution channel.
// The channel has buffer 1 so the first answer wins and later ones drop.
type pendingRequest struct {
	req approvalgate.Request
	ch  chan approval.Resolution
}

// Gate holds pending approval requests in memory.
type Gate struct {
	hub broadcast.Broadcaster

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// New creates a gate that announces new requests on hub.
func New(hub broadcast.Broadcaster) *Gate {
	return &Gate{
		hub:     hub,
		pending: make(map[string]*pendingRequest),
	}
}

// CreateRequest registers a checkpoint and broadcasts it to observers.
func (g *Gate) CreateRequest(ctx context.Context, req approvalgate.Request) (string, error) {
	id := uuid.NewString()

	g.mu.Lock()
	g.pending[id] = &pendingRequest{
		req: req,
		ch:  make(chan approval.Resolution, 1),
	}
	g.mu.Unlock()

	if g.hub != nil {
		g.hub.BroadcastEvent(ctx, EventApprovalRequested, PendingApproval{
			RequestID:  id,
			RunID:      req.RunID,
			StepID:     req.StepID,
			Checkpoint: req.Checkpoint,
		})
	}

	slog.Info("approval requested",
		"request_id", id,
		"run_id", req.RunID,
		"step_id", req.StepID,
		"type", req.Checkpoint.Type,
	)
	return id, nil
}

// AwaitResolution blocks until the request is resolved, the timeout elapses,
// or ctx is cancelled. The request is removed in all three cases.
func (g *Gate) AwaitResolution(ctx context.Context, requestID string, timeout time.Duration) (*approval.Resolution, error) {
	g.mu.Lock()
	p, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return nil, approvalgate.ErrTimeout
	}
	defer func() {
		g.mu.Lock()
		delete(g.pending, requestID)
		g.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		return &res, nil
	case <-timer.C:
		slog.Warn("approval wait timed out",
			"request_id", requestID,
			"run_id", p.req.RunID,
			"timeout", timeout,
		)
		return nil, approvalgate.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve answers a pending request. It returns false when no request with
// that id is waiting, so handlers can report 404 instead of 200.
func (g *Gate) Resolve(requestID string, res approval.Resolution) bool {
	g.mu.Lock()
	p, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case p.ch <- res:
		return true
	default:
		return false
	}
}

// PendingApproval is the observer-facing view of an unresolved request.
type PendingApproval struct {
	RequestID  string              `json:"request_id"`
	RunID      string              `json:"run_id"`
	StepID     string              `json:"step_id,omitempty"`
	Checkpoint approval.Checkpoint `json:"checkpoint"`
}

// ListPending returns a snapshot of all unresolved requests.
func (g *Gate) ListPending() []PendingApproval {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]PendingApproval, 0, len(g.pending))
	for id, p := range g.pending {
		out = append(out, PendingApproval{
			RequestID:  id,
			RunID:      p.req.RunID,
			StepID:     p.req.StepID,
			Checkpoint: p.req.Checkpoint,
		})
	}
	return out
}
