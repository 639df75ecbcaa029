// Package router defines the port for classifying how a swarm round's task
// should be dispatched.
package router

import (
	"context"

	"github.com/Strob0t/FlowForge/internal/domain/swarm"
)

// Router decides how one round's task is handled: direct dispatch, a
// clarification pause, an approach proposal, or a phase invocation.
type Router interface {
	Route(ctx context.Context, input swarm.RoundInput) (swarm.Decision, error)
}
