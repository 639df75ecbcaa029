package http

import (
	"net/http"

	"github.com/Strob0t/FlowForge/internal/adapter/hitl"
	"github.com/Strob0t/FlowForge/internal/adapter/ws"
	"github.com/Strob0t/FlowForge/internal/port/executor"
	"github.com/Strob0t/FlowForge/internal/port/messagequeue"
	"github.com/Strob0t/FlowForge/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Workflows *service.WorkflowService
	Phases    *service.PhaseService
	Sessions  *service.SessionService
	Swarm     *service.SwarmService
	Gate      *hitl.Gate
	Hub       *ws.Hub
	Queue     messagequeue.Queue
}

// Health reports process liveness plus the state of the event fabric.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	natsConnected := h.Queue != nil && h.Queue.IsConnected()
	if h.Queue != nil && !natsConnected {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"nats_connected": natsConnected,
		"ws_clients":     h.Hub.ConnectionCount(),
		"executors":      executor.Available(),
	})
}
