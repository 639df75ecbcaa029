// Package heuristic implements the router port with deterministic rules.
// It is the default classifier when no external routing collaborator is
// configured: explicit phase directives win, ambiguous tasks clarify,
// branching tasks propose, everything else goes straight to the worker.
package heuristic

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/FlowForge/internal/domain/swarm"
)

// phaseDirective is the prefix that forces a phase decision, e.g.
// "phase:analyze inspect the crash logs".
const phaseDirective = "phase:"

// ambiguousTaskLen is the length below which a first-round task is treated
// as too thin to act on without clarification.
const ambiguousTaskLen = 16

// proposalTaskLen is the length above which a first-round task containing
// alternatives triggers an approach proposal.
const proposalTaskLen = 120

// Router classifies round tasks without calling out to any model.
type Router struct {
	worker     string
	phaseTypes map[string]bool
}

// New creates a router that dispatches direct work to worker and
// recognizes the given phase types in directives.
func New(worker string, phaseTypes []string) *Router {
	known := make(map[string]bool, len(phaseTypes))
	for _, t := range phaseTypes {
		known[t] = true
	}
	return &Router{worker: worker, phaseTypes: known}
}

// Route classifies one round's task.
func (r *Router) Route(_ context.Context, input swarm.RoundInput) (swarm.Decision, error) {
	task := strings.TrimSpace(input.Task)

	if rest, ok := strings.CutPrefix(task, phaseDirective); ok {
		return r.routePhase(rest)
	}

	// Only the first round of a run clarifies or proposes; later rounds
	// already carry folded feedback and should make progress.
	if input.Round <= 1 {
		if len(task) < ambiguousTaskLen || strings.HasSuffix(task, "?") {
			return swarm.Decision{
				Kind: swarm.DecisionClarify,
				Questions: []string{
					fmt.Sprintf("What outcome should %q produce?", task),
					"Are there constraints or files that must not change?",
				},
				Reason: "task too thin to act on",
			}, nil
		}
		if len(task) > proposalTaskLen && strings.Contains(strings.ToLower(task), " or ") {
			return swarm.Decision{
				Kind: swarm.DecisionPropose,
				Proposals: []swarm.Proposal{
					{
						ID:          "incremental",
						Title:       "Incremental",
						Description: "Smallest change that satisfies the task, leaving the rest untouched.",
					},
					{
						ID:          "comprehensive",
						Title:       "Comprehensive",
						Description: "Address the task together with the surrounding structure it touches.",
					},
				},
				Reason: "task names alternatives",
			}, nil
		}
	}

	return swarm.Decision{
		Kind:   swarm.DecisionDirect,
		Worker: r.worker,
		Reason: "default dispatch",
	}, nil
}

// routePhase parses "phase:<type> <task>" into a phase decision. Unknown
// types fall back to direct dispatch so a typo does not stall the round.
func (r *Router) routePhase(rest string) (swarm.Decision, error) {
	phaseType, task, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if phaseType == "" || !r.phaseTypes[phaseType] {
		return swarm.Decision{
			Kind:   swarm.DecisionDirect,
			Worker: r.worker,
			Reason: fmt.Sprintf("unknown phase type %q", phaseType),
		}, nil
	}
	return swarm.Decision{
		Kind:        swarm.DecisionPhase,
		PhaseType:   phaseType,
		PhaseConfig: map[string]any{"task": strings.TrimSpace(task)},
		Reason:      "explicit phase directive",
	}, nil
}
