// Package mcp exposes the orchestrator over the Model Context Protocol so
// agent frontends can list workflows, run them, and steer swarm sessions as
// tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/domain/swarm"
	"github.com/Strob0t/FlowForge/internal/domain/workflow"
	"github.com/Strob0t/FlowForge/internal/service"
)

// WorkflowRunner is the slice of the workflow service the MCP tools need.
type WorkflowRunner interface {
	ListDefinitions(ctx context.Context) ([]workflow.Definition, error)
	Execute(ctx context.Context, sessionID, workflowID, task, workDir string) (*service.WorkflowRun, error)
}

// PhaseRunner executes single phases inside a session.
type PhaseRunner interface {
	Execute(ctx context.Context, sess *service.Session, req phase.ExecRequest) (*phase.Result, error)
}

// SessionProvider resolves sessions by id.
type SessionProvider interface {
	GetOrCreate(id string) *service.Session
	Persist(ctx context.Context, sess *service.Session)
}

// SwarmController is the slice of the swarm service the MCP tools need.
type SwarmController interface {
	State(sessionID string) (*swarm.State, error)
	ListStates() []swarm.State
	Continue(ctx context.Context, sessionID, feedback string) (*swarm.RunResult, error)
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables auth
}

// ServerDeps holds the collaborators the tools call into. Nil members make
// the corresponding tools return a configuration error instead of panicking.
type ServerDeps struct {
	Workflows WorkflowRunner
	Phases    PhaseRunner
	Sessions  SessionProvider
	Swarm     SwarmController
}

// Server wraps an MCP server exposing orchestration tools and resources.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves the MCP protocol over streamable HTTP in the background.
// With an empty Addr the server is tool-registry only (handlers reachable
// in-process) and Start is a no-op.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return nil
	}

	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer)
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           AuthMiddleware(s.cfg.APIKey, streamable),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("mcp server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
