package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// apiTimeout bounds every API request. Long-running work (workflow runs,
// swarm rounds) executes in the background, so no handler legitimately
// outlives this.
const apiTimeout = 30 * time.Second

// MountRoutes registers all API routes on the given chi router. The
// timeout covers the API group only: /ws holds its connection open for as
// long as the client listens.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", h.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(apiTimeout))
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Workflow definitions and runs
		r.Get("/workflows", h.ListWorkflows)
		r.Post("/workflows", h.CreateWorkflow)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Delete("/workflows/{id}", h.DeleteWorkflow)
		r.Post("/workflows/{id}/run", h.RunWorkflow)
		r.Get("/runs/{id}", h.GetWorkflowRun)
		r.Get("/runs/{id}/approvals", h.ListRunApprovals)

		// Phases
		r.Get("/phases/types", h.ListPhaseTypes)
		r.Post("/phases/execute", h.ExecutePhase)
		r.Post("/phases/chain", h.ExecuteChain)

		// Sessions
		r.Get("/sessions/{id}/dag", h.GetSessionDAG)
		r.Get("/sessions/{id}/context", h.GetSessionContext)
		r.Post("/sessions/{id}/restore", h.RestoreSession)
		r.Delete("/sessions/{id}", h.DeleteSession)

		// Swarm runs
		r.Get("/swarm", h.ListSwarmStates)
		r.Post("/swarm/{id}/start", h.StartSwarm)
		r.Post("/swarm/{id}/continue", h.ContinueSwarm)
		r.Post("/swarm/{id}/cancel", h.CancelSwarm)
		r.Get("/swarm/{id}", h.GetSwarmState)

		// Approvals
		r.Get("/approvals/pending", h.ListPendingApprovals)
		r.Post("/approvals/{id}/resolve", h.ResolveApproval)
	})
}
