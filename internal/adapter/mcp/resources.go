package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"flowforge://workflows",
			"Workflow Definitions",
			mcplib.WithResourceDescription("All workflow definitions, builtin and stored"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleWorkflowsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"flowforge://swarm/sessions",
			"Swarm Sessions",
			mcplib.WithResourceDescription("Round-loop state of all swarm sessions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSessionsResource,
	)
}

func (s *Server) handleWorkflowsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Workflows == nil {
		return errorResource(req.Params.URI, "workflow service not configured"), nil
	}
	defs, err := s.deps.Workflows.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, defs)
}

func (s *Server) handleSessionsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Swarm == nil {
		return errorResource(req.Params.URI, "swarm service not configured"), nil
	}
	return jsonResource(req.Params.URI, s.deps.Swarm.ListStates())
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResource(uri, msg string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     `{"error":"` + msg + `"}`,
		},
	}
}
