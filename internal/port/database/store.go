// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/FlowForge/internal/domain/approval"
	"github.com/Strob0t/FlowForge/internal/domain/swarm"
	"github.com/Strob0t/FlowForge/internal/domain/workflow"
)

// Store is the port interface for database operations.
type Store interface {
	// Workflow definitions
	SaveDefinition(ctx context.Context, def *workflow.Definition) error
	GetDefinition(ctx context.Context, id string) (*workflow.Definition, error)
	ListDefinitions(ctx context.Context) ([]workflow.Definition, error)
	DeleteDefinition(ctx context.Context, id string) error

	// Swarm session state
	SaveSwarmState(ctx context.Context, state *swarm.State) error
	GetSwarmState(ctx context.Context, sessionID string) (*swarm.State, error)
	ListSwarmStates(ctx context.Context) ([]swarm.State, error)

	// Approval audit trail
	AppendApprovalAudit(ctx context.Context, entry *approval.AuditEntry) error
	ListApprovalAudit(ctx context.Context, runID string) ([]approval.AuditEntry, error)
}
