package http

import (
	"net/http"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
)

type executePhaseRequest struct {
	SessionID string            `json:"session_id"`
	Phase     phase.ExecRequest `json:"phase"`
}

// ExecutePhase runs a single phase inside a session.
func (h *Handlers) ExecutePhase(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[executePhaseRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.SessionID, "session_id") {
		return
	}

	sess := h.Sessions.GetOrCreate(req.SessionID)
	sess.Lock()
	defer sess.Unlock()

	result, err := h.Phases.Execute(r.Context(), sess, req.Phase)
	if err != nil {
		writeDomainError(w, err, "phase not found")
		return
	}
	h.Sessions.Persist(r.Context(), sess)
	writeJSON(w, http.StatusOK, result)
}

type executeChainRequest struct {
	SessionID string              `json:"session_id"`
	Phases    []phase.ExecRequest `json:"phases"`
}

// ExecuteChain runs an ad-hoc list of phases in sequence, stopping at the
// first failure. Returned results cover only the phases that ran.
func (h *Handlers) ExecuteChain(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[executeChainRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.SessionID, "session_id") {
		return
	}
	if len(req.Phases) == 0 {
		writeError(w, http.StatusBadRequest, "phases is required")
		return
	}

	sess := h.Sessions.GetOrCreate(req.SessionID)
	sess.Lock()
	defer sess.Unlock()

	results, err := h.Phases.ExecuteChain(r.Context(), sess, req.Phases)
	if err != nil {
		writeDomainError(w, err, "phase not found")
		return
	}
	h.Sessions.Persist(r.Context(), sess)
	writeJSON(w, http.StatusOK, results)
}

// ListPhaseTypes returns the registered phase types.
func (h *Handlers) ListPhaseTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Phases.Types())
}

// GetSessionDAG returns the session's dependency graph with statistics and
// the critical path.
func (h *Handlers) GetSessionDAG(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	sess, err := h.Sessions.Get(id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}

	sess.Lock()
	defer sess.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"graph":         sess.DAG,
		"statistics":    sess.DAG.Statistics(),
		"critical_path": sess.DAG.CriticalPath(),
	})
}

// GetSessionContext returns the durable context's persistent view.
func (h *Handlers) GetSessionContext(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	sess, err := h.Sessions.Get(id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}

	sess.Lock()
	defer sess.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"version":    sess.Runtime.Version(),
		"context":    sess.Runtime.Persistent(),
		"snapshots":  sess.Runtime.Snapshots(),
	})
}

// RestoreSession rehydrates a previously persisted session from the blob
// store, replacing any in-memory copy.
func (h *Handlers) RestoreSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	sess, err := h.Sessions.Restore(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}

	sess.Lock()
	defer sess.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"version":    sess.Runtime.Version(),
		"context":    sess.Runtime.Persistent(),
	})
}

// DeleteSession persists and removes an in-memory session.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Remove(r.Context(), urlParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
