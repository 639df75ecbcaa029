package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Strob0t/FlowForge/internal/domain"
	"github.com/Strob0t/FlowForge/internal/domain/dag"
	"github.com/Strob0t/FlowForge/internal/domain/durable"
	"github.com/Strob0t/FlowForge/internal/port/blobstore"
)

// Session is the per-run execution scope: the durable context holding
// accumulated state and the DAG tracking every phase executed under it.
type Session struct {
	ID      string
	Runtime *durable.Context
	DAG     *dag.Tracker

	// LastOutput is the most recent phase output, used for placeholder
	// substitution in subsequent phase configs.
	LastOutput map[string]any

	mu sync.Mutex
}

// Lock serializes phase execution within one session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// SessionService owns the live sessions and their best-effort persistence.
type SessionService struct {
	blobs blobstore.Store

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionService creates a SessionService backed by the given blob store.
// A nil store disables persistence.
func NewSessionService(blobs blobstore.Store) *SessionService {
	return &SessionService{
		blobs:    blobs,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for id, creating it on first use.
func (s *SessionService) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := &Session{
		ID:      id,
		Runtime: durable.NewContext(id),
		DAG:     dag.NewTracker(),
	}
	s.sessions[id] = sess
	return sess
}

// Get returns the session for id, or domain.ErrNotFound.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess, nil
}

// Remove drops a session from memory after a final persistence attempt.
func (s *SessionService) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		s.Persist(ctx, sess)
	}
}

// sessionBlob is the durable shape of a session: bounded context plus DAG.
type sessionBlob struct {
	Context durable.Serialized `json:"context"`
	DAG     json.RawMessage    `json:"dag"`
}

// Persist writes the session's serialized context and DAG to the blob store.
// Failures are logged, never fatal: the in-memory state stays authoritative.
func (s *SessionService) Persist(ctx context.Context, sess *Session) {
	if s.blobs == nil {
		return
	}

	dagJSON, err := json.Marshal(sess.DAG)
	if err != nil {
		slog.Warn("serialize session dag", "session_id", sess.ID, "error", err)
		return
	}
	blob, err := json.Marshal(sessionBlob{
		Context: sess.Runtime.Serialize(),
		DAG:     dagJSON,
	})
	if err != nil {
		slog.Warn("serialize session", "session_id", sess.ID, "error", err)
		return
	}

	if err := s.blobs.Save(ctx, "session:"+sess.ID, blob); err != nil {
		slog.Warn("persist session", "session_id", sess.ID, "error", err)
	}
}

// Restore loads a previously persisted session context. The DAG is not
// rehydrated: execution history is informational once a run has ended.
func (s *SessionService) Restore(ctx context.Context, id string) (*Session, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	blob, err := s.blobs.Load(ctx, "session:"+id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var stored sessionBlob
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	sess := &Session{
		ID:      id,
		Runtime: durable.FromSerialized(stored.Context),
		DAG:     dag.NewTracker(),
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}
