package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/FlowForge/internal/domain"
	"github.com/Strob0t/FlowForge/internal/domain/approval"
	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/domain/swarm"
	"github.com/Strob0t/FlowForge/internal/domain/workflow"
	"github.com/Strob0t/FlowForge/internal/port/approvalgate"
)

// mockExecutor scripts executor responses per call.
type mockExecutor struct {
	name     string
	mu       sync.Mutex
	calls    []phase.ExecRequest
	respond  func(call int, req phase.ExecRequest) (*phase.Result, error)
	stopped  []string
	stopErr  error
}

func newMockExecutor(name string, respond func(call int, req phase.ExecRequest) (*phase.Result, error)) *mockExecutor {
	return &mockExecutor{name: name, respond: respond}
}

func (m *mockExecutor) Name() string { return m.name }

func (m *mockExecutor) Execute(_ context.Context, req phase.ExecRequest) (*phase.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	call := len(m.calls)
	m.mu.Unlock()
	if m.respond == nil {
		return &phase.Result{
			PhaseID:    req.PhaseID,
			PhaseType:  req.PhaseType,
			Status:     phase.StatusCompleted,
			OutputData: map[string]any{"result": "ok"},
		}, nil
	}
	res, err := m.respond(call, req)
	if res != nil && res.PhaseID == "" {
		res.PhaseID = req.PhaseID
	}
	if res != nil && res.PhaseType == "" {
		res.PhaseType = req.PhaseType
	}
	return res, err
}

func (m *mockExecutor) Stop(_ context.Context, phaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, phaseID)
	return m.stopErr
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockCache is an in-memory cache.Cache.
type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
	hits int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blob, ok := c.data[key]
	if ok {
		c.hits++
	}
	return blob, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// mockHub records broadcast events and their payloads.
type mockHub struct {
	mu       sync.Mutex
	events   []string
	payloads []any
}

func (h *mockHub) BroadcastEvent(_ context.Context, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
	h.payloads = append(h.payloads, payload)
}

func (h *mockHub) payloadFor(eventType string) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.events {
		if e == eventType {
			return h.payloads[i]
		}
	}
	return nil
}

func (h *mockHub) has(eventType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// mockStore is an in-memory database.Store.
type mockStore struct {
	mu     sync.Mutex
	defs   map[string]workflow.Definition
	states map[string]swarm.State
	audit  []approval.AuditEntry
}

func newMockStore() *mockStore {
	return &mockStore{
		defs:   make(map[string]workflow.Definition),
		states: make(map[string]swarm.State),
	}
}

func (s *mockStore) SaveDefinition(_ context.Context, def *workflow.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = *def
	return nil
}

func (s *mockStore) GetDefinition(_ context.Context, id string) (*workflow.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	return &def, nil
}

func (s *mockStore) ListDefinitions(_ context.Context) ([]workflow.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]workflow.Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	return out, nil
}

func (s *mockStore) DeleteDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.defs, id)
	return nil
}

func (s *mockStore) SaveSwarmState(_ context.Context, state *swarm.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID] = *state
	return nil
}

func (s *mockStore) GetSwarmState(_ context.Context, sessionID string) (*swarm.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

func (s *mockStore) ListSwarmStates(_ context.Context) ([]swarm.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]swarm.State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out, nil
}

func (s *mockStore) AppendApprovalAudit(_ context.Context, entry *approval.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *mockStore) ListApprovalAudit(_ context.Context, runID string) ([]approval.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []approval.AuditEntry
	for _, e := range s.audit {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

// mockGate resolves checkpoints from a scripted queue. An empty queue
// approves everything.
type mockGate struct {
	mu          sync.Mutex
	requests    []approvalgate.Request
	resolutions []*approval.Resolution
	err         error
}

func (g *mockGate) CreateRequest(_ context.Context, req approvalgate.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return fmt.Sprintf("req-%d", len(g.requests)), nil
}

func (g *mockGate) AwaitResolution(_ context.Context, _ string, _ time.Duration) (*approval.Resolution, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if len(g.resolutions) == 0 {
		return &approval.Resolution{Resolution: approval.ResolutionApprove}, nil
	}
	r := g.resolutions[0]
	g.resolutions = g.resolutions[1:]
	return r, nil
}

// mockRouter returns scripted decisions per round.
type mockRouter struct {
	mu        sync.Mutex
	decisions []swarm.Decision
	fallback  swarm.Decision
	err       error
}

func (r *mockRouter) Route(_ context.Context, _ swarm.RoundInput) (swarm.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return swarm.Decision{}, r.err
	}
	if len(r.decisions) == 0 {
		return r.fallback, nil
	}
	d := r.decisions[0]
	r.decisions = r.decisions[1:]
	return d, nil
}
