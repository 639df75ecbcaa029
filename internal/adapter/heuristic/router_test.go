package heuristic_test

import (
	"context"
	"testing"

	"github.com/Strob0t/FlowForge/internal/adapter/heuristic"
	"github.com/Strob0t/FlowForge/internal/domain/swarm"
)

func newRouter() *heuristic.Router {
	return heuristic.New("coder", []string{"analyze", "implement"})
}

func route(t *testing.T, task string, round int) swarm.Decision {
	t.Helper()
	d, err := newRouter().Route(context.Background(), swarm.RoundInput{Task: task, Round: round})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	return d
}

func TestRouteDirectByDefault(t *testing.T) {
	d := route(t, "rename the config loader package", 1)
	if d.Kind != swarm.DecisionDirect {
		t.Fatalf("expected direct, got %q (%s)", d.Kind, d.Reason)
	}
	if d.Worker != "coder" {
		t.Fatalf("expected worker coder, got %q", d.Worker)
	}
}

func TestRouteClarifiesThinTask(t *testing.T) {
	d := route(t, "fix it", 1)
	if d.Kind != swarm.DecisionClarify {
		t.Fatalf("expected clarify, got %q", d.Kind)
	}
	if len(d.Questions) == 0 {
		t.Fatal("expected clarifying questions")
	}
}

func TestRouteClarifiesQuestionTask(t *testing.T) {
	d := route(t, "should the cache be shared between sessions?", 1)
	if d.Kind != swarm.DecisionClarify {
		t.Fatalf("expected clarify, got %q", d.Kind)
	}
}

func TestRouteProposesOnAlternatives(t *testing.T) {
	task := "either migrate the session store to the key-value bucket or keep the " +
		"current blob layout and add an index table; whichever we pick has to keep " +
		"old sessions readable"
	d := route(t, task, 1)
	if d.Kind != swarm.DecisionPropose {
		t.Fatalf("expected propose, got %q (%s)", d.Kind, d.Reason)
	}
	if len(d.Proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(d.Proposals))
	}
}

func TestRouteLaterRoundsAlwaysProgress(t *testing.T) {
	// The same thin task routes direct after round one.
	d := route(t, "fix it", 2)
	if d.Kind != swarm.DecisionDirect {
		t.Fatalf("expected direct on round 2, got %q", d.Kind)
	}
}

func TestRoutePhaseDirective(t *testing.T) {
	d := route(t, "phase:analyze inspect the flaky pool test", 3)
	if d.Kind != swarm.DecisionPhase {
		t.Fatalf("expected phase, got %q", d.Kind)
	}
	if d.PhaseType != "analyze" {
		t.Fatalf("expected phase type analyze, got %q", d.PhaseType)
	}
	if d.PhaseConfig["task"] != "inspect the flaky pool test" {
		t.Fatalf("unexpected phase config: %v", d.PhaseConfig)
	}
}

func TestRouteUnknownPhaseFallsBackToDirect(t *testing.T) {
	d := route(t, "phase:deploy ship it", 3)
	if d.Kind != swarm.DecisionDirect {
		t.Fatalf("expected direct fallback, got %q", d.Kind)
	}
}
