package workflow

import "github.com/Strob0t/FlowForge/internal/domain/phase"

// BuiltinDefinitions returns the set of built-in workflow definitions.
// They reference the standard phase types registered at startup.
func BuiltinDefinitions() []Definition {
	return []Definition{
		analyzeImplementVerify(),
		researchBrief(),
	}
}

// analyzeImplementVerify is a sequential 3-phase delivery workflow:
// analyze the task, implement the change, verify the result.
func analyzeImplementVerify() Definition {
	return Definition{
		ID:          "analyze-implement-verify",
		Name:        "Analyze, Implement, Verify",
		Description: "Sequential delivery: analyze the task, implement the change, verify the result.",
		Version:     1,
		Builtin:     true,
		Phases: []phase.Spec{
			{Type: "analyze"},
			{Type: "implement", DependsOn: []int{0}},
			{Type: "verify", DependsOn: []int{1}},
		},
	}
}

// researchBrief is a 2-phase workflow: gather findings, then summarize them.
func researchBrief() Definition {
	return Definition{
		ID:          "research-brief",
		Name:        "Research Brief",
		Description: "Gather findings for a topic, then condense them into a brief.",
		Version:     1,
		Builtin:     true,
		Phases: []phase.Spec{
			{Type: "analyze", Config: map[string]any{"depth": "wide"}},
			{Type: "summarize", DependsOn: []int{0}},
		},
	}
}
