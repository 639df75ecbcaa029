package http

import (
	"net/http"

	"github.com/Strob0t/FlowForge/internal/domain/approval"
)

type startSwarmRequest struct {
	Task        string `json:"task"`
	Interactive bool   `json:"interactive,omitempty"`
}

// StartSwarm begins a round-bounded run for the session. The rounds play
// out in the background: a run can hold on a human checkpoint far longer
// than any request deadline, so the call returns the accepted state and the
// client follows along via GET /swarm/{id} or the event stream.
func (h *Handlers) StartSwarm(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "id")

	req, ok := readJSON[startSwarmRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Task, "task") {
		return
	}

	state, err := h.Swarm.StartAsync(r.Context(), sessionID, req.Task, req.Interactive)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

type continueSwarmRequest struct {
	Feedback string `json:"feedback,omitempty"`
}

// ContinueSwarm resumes a paused run with a fresh round budget. Like
// StartSwarm, the rounds run in the background.
func (h *Handlers) ContinueSwarm(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "id")

	req, ok := readJSON[continueSwarmRequest](w, r)
	if !ok {
		return
	}

	state, err := h.Swarm.ContinueAsync(r.Context(), sessionID, req.Feedback)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

// CancelSwarm flags a running session to stop at the next round boundary.
func (h *Handlers) CancelSwarm(w http.ResponseWriter, r *http.Request) {
	if err := h.Swarm.Cancel(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetSwarmState returns the state machine view of one session.
func (h *Handlers) GetSwarmState(w http.ResponseWriter, r *http.Request) {
	state, err := h.Swarm.State(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ListSwarmStates returns all known session states.
func (h *Handlers) ListSwarmStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Swarm.ListStates())
}

// ListPendingApprovals returns unresolved approval requests.
func (h *Handlers) ListPendingApprovals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Gate.ListPending())
}

type resolveApprovalRequest struct {
	Resolution string `json:"resolution"`
	Feedback   string `json:"feedback,omitempty"`
}

// ResolveApproval answers a pending approval request.
func (h *Handlers) ResolveApproval(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	req, ok := readJSON[resolveApprovalRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Resolution, "resolution") {
		return
	}

	resolved := h.Gate.Resolve(id, approval.Resolution{
		Resolution:   req.Resolution,
		UserFeedback: req.Feedback,
	})
	if !resolved {
		writeError(w, http.StatusNotFound, "no pending approval with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
