package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listWorkflowsTool(),
		s.runWorkflowTool(),
		s.executePhaseTool(),
		s.getSwarmStatusTool(),
		s.continueSwarmTool(),
	)
}

func (s *Server) listWorkflowsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_workflows",
		mcplib.WithDescription("List all workflow definitions, builtin and stored"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListWorkflows,
	}
}

func (s *Server) runWorkflowTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("run_workflow",
		mcplib.WithDescription("Run a workflow definition against a task and return the run result"),
		mcplib.WithString("workflow_id",
			mcplib.Required(),
			mcplib.Description("The workflow definition to run"),
		),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session whose context and DAG receive the run"),
		),
		mcplib.WithString("task",
			mcplib.Required(),
			mcplib.Description("The task the workflow operates on"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRunWorkflow,
	}
}

func (s *Server) executePhaseTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("execute_phase",
		mcplib.WithDescription("Execute a single phase inside a session"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session to execute in"),
		),
		mcplib.WithString("phase_type",
			mcplib.Required(),
			mcplib.Description("The registered phase type to run"),
		),
		mcplib.WithString("task",
			mcplib.Required(),
			mcplib.Description("The task for the phase"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleExecutePhase,
	}
}

func (s *Server) getSwarmStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_swarm_status",
		mcplib.WithDescription("Get the round-loop state of a swarm session, or all sessions when session_id is omitted"),
		mcplib.WithString("session_id",
			mcplib.Description("The session to inspect"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetSwarmStatus,
	}
}

func (s *Server) continueSwarmTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("continue_swarm",
		mcplib.WithDescription("Resume a paused swarm session with a fresh round budget"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The paused session to resume"),
		),
		mcplib.WithString("feedback",
			mcplib.Description("Optional feedback folded into the next round's task"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleContinueSwarm,
	}
}

func (s *Server) handleListWorkflows(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflows == nil {
		return mcplib.NewToolResultError("workflow service not configured"), nil
	}
	defs, err := s.deps.Workflows.ListDefinitions(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list workflows", err), nil
	}
	return marshalResult(defs, "workflows")
}

func (s *Server) handleRunWorkflow(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflows == nil {
		return mcplib.NewToolResultError("workflow service not configured"), nil
	}
	args := req.GetArguments()
	workflowID, _ := args["workflow_id"].(string)
	sessionID, _ := args["session_id"].(string)
	task, _ := args["task"].(string)
	if workflowID == "" || sessionID == "" || task == "" {
		return mcplib.NewToolResultError("workflow_id, session_id and task are required"), nil
	}

	run, err := s.deps.Workflows.Execute(ctx, sessionID, workflowID, task, "")
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to run workflow %s", workflowID), err,
		), nil
	}
	return marshalResult(run, "run")
}

func (s *Server) handleExecutePhase(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Phases == nil || s.deps.Sessions == nil {
		return mcplib.NewToolResultError("phase service not configured"), nil
	}
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)
	phaseType, _ := args["phase_type"].(string)
	task, _ := args["task"].(string)
	if sessionID == "" || phaseType == "" || task == "" {
		return mcplib.NewToolResultError("session_id, phase_type and task are required"), nil
	}

	sess := s.deps.Sessions.GetOrCreate(sessionID)
	sess.Lock()
	defer sess.Unlock()

	result, err := s.deps.Phases.Execute(ctx, sess, phase.ExecRequest{
		PhaseType: phaseType,
		Task:      task,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to execute phase %s", phaseType), err,
		), nil
	}
	s.deps.Sessions.Persist(ctx, sess)
	return marshalResult(result, "result")
}

func (s *Server) handleGetSwarmStatus(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Swarm == nil {
		return mcplib.NewToolResultError("swarm service not configured"), nil
	}
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)

	if sessionID == "" {
		return marshalResult(s.deps.Swarm.ListStates(), "states")
	}
	state, err := s.deps.Swarm.State(sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get session %s", sessionID), err,
		), nil
	}
	return marshalResult(state, "state")
}

func (s *Server) handleContinueSwarm(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Swarm == nil {
		return mcplib.NewToolResultError("swarm service not configured"), nil
	}
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	feedback, _ := args["feedback"].(string)

	result, err := s.deps.Swarm.Continue(ctx, sessionID, feedback)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to continue session %s", sessionID), err,
		), nil
	}
	return marshalResult(result, "result")
}

// marshalResult serializes a tool's payload to a JSON text result.
func marshalResult(v any, what string) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
