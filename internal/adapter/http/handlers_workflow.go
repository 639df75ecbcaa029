package http

import (
	"net/http"

	"github.com/Strob0t/FlowForge/internal/domain/workflow"
)

// ListWorkflows returns all workflow definitions, builtin and stored.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Workflows.ListDefinitions(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// CreateWorkflow stores a new workflow definition.
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	def, ok := readJSON[workflow.Definition](w, r)
	if !ok {
		return
	}

	if err := h.Workflows.CreateDefinition(r.Context(), &def); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// GetWorkflow returns one workflow definition by id.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	def, err := h.Workflows.GetDefinition(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// DeleteWorkflow removes a stored workflow definition.
func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	if err := h.Workflows.DeleteDefinition(r.Context(), id); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runWorkflowRequest struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task"`
	WorkDir   string `json:"work_dir,omitempty"`
}

// RunWorkflow starts executing a workflow definition against a task. The
// phases run in the background: an approval checkpoint can hold a run far
// longer than any request deadline, so the call returns the accepted run
// and the client polls GET /runs/{id} or watches the event stream.
func (h *Handlers) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	req, ok := readJSON[runWorkflowRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.SessionID, "session_id") || !requireField(w, req.Task, "task") {
		return
	}

	run, err := h.Workflows.ExecuteAsync(r.Context(), req.SessionID, id, req.Task, req.WorkDir)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// GetWorkflowRun returns the tracked view of one run, live or finished.
func (h *Handlers) GetWorkflowRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Workflows.GetRun(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRunApprovals returns the approval audit trail for a run.
func (h *Handlers) ListRunApprovals(w http.ResponseWriter, r *http.Request) {
	runID := urlParam(r, "id")

	entries, err := h.Workflows.ApprovalAudit(r.Context(), runID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
