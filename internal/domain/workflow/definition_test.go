package workflow_test

import (
	"errors"
	"testing"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
	"github.com/Strob0t/FlowForge/internal/domain/workflow"
)

func testRegistry() *phase.Registry {
	r := phase.NewRegistry()
	r.Register(phase.Definition{Type: "analyze", Executor: "mock"})
	r.Register(phase.Definition{Type: "implement", Executor: "mock"})
	r.Register(phase.Definition{Type: "verify", Executor: "mock"})
	r.Register(phase.Definition{Type: "summarize", Executor: "mock"})
	return r
}

func validDefinition() workflow.Definition {
	return workflow.Definition{
		ID:   "wf-1",
		Name: "test",
		Phases: []phase.Spec{
			{Type: "analyze"},
			{Type: "implement", DependsOn: []int{0}},
		},
	}
}

func TestDefinition_Validate(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name    string
		mutate  func(*workflow.Definition)
		wantErr error
	}{
		{"valid", func(*workflow.Definition) {}, nil},
		{"missing id", func(d *workflow.Definition) { d.ID = "" }, workflow.ErrIDRequired},
		{"missing name", func(d *workflow.Definition) { d.Name = "" }, workflow.ErrNameRequired},
		{"no phases", func(d *workflow.Definition) { d.Phases = nil }, workflow.ErrNoPhases},
		{"empty type", func(d *workflow.Definition) { d.Phases[0].Type = "" }, workflow.ErrPhaseNoType},
		{"bad dep index", func(d *workflow.Definition) { d.Phases[1].DependsOn = []int{9} }, workflow.ErrBadDepRef},
		{"self dep", func(d *workflow.Definition) { d.Phases[1].DependsOn = []int{1} }, workflow.ErrDepCycle},
		{"unknown type", func(d *workflow.Definition) { d.Phases[0].Type = "bogus" }, phase.ErrUnknownType},
		{"skip without key", func(d *workflow.Definition) { d.Phases[0].SkipIf = &phase.SkipWhen{} }, workflow.ErrBadSkip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDefinition()
			tt.mutate(&d)
			err := d.Validate(reg)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefinition_ConfigValidation(t *testing.T) {
	reg := phase.NewRegistry()
	reg.Register(phase.Definition{
		Type:     "strict",
		Executor: "mock",
		ValidateConfig: func(config map[string]any) error {
			if config["required"] == nil {
				return errors.New("required key missing")
			}
			return nil
		},
	})

	d := workflow.Definition{
		ID:     "wf-1",
		Name:   "test",
		Phases: []phase.Spec{{Type: "strict"}},
	}
	if err := d.Validate(reg); err == nil {
		t.Fatal("expected config validation error")
	}

	d.Phases[0].Config = map[string]any{"required": true}
	if err := d.Validate(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuiltinDefinitions_Valid(t *testing.T) {
	reg := testRegistry()
	for _, d := range workflow.BuiltinDefinitions() {
		if err := d.Validate(reg); err != nil {
			t.Fatalf("builtin %s invalid: %v", d.ID, err)
		}
		if !d.Builtin {
			t.Fatalf("builtin %s not flagged", d.ID)
		}
	}
}

func TestContext_CloneIsolation(t *testing.T) {
	ctx := workflow.NewContext("task", "/tmp/w", "cred-ref")
	ctx.SharedState["k"] = map[string]any{"a": 1}

	clone := ctx.Clone()
	clone.SharedState["k"].(map[string]any)["a"] = 99
	clone.Task = "changed"

	if ctx.SharedState["k"].(map[string]any)["a"] != 1 {
		t.Fatal("clone mutation leaked into original")
	}
	if ctx.Task != "task" {
		t.Fatal("clone mutation leaked into original task")
	}
}

func TestContext_MergeOutput(t *testing.T) {
	ctx := workflow.NewContext("task", "", "")
	ctx.SharedState["prior"] = "kept"

	ctx.MergeOutput(map[string]any{"result": "ok"})

	if ctx.SharedState["prior"] != "kept" || ctx.SharedState["result"] != "ok" {
		t.Fatalf("unexpected shared state: %v", ctx.SharedState)
	}
	if ctx.OutputData["result"] != "ok" {
		t.Fatalf("unexpected output data: %v", ctx.OutputData)
	}
}
