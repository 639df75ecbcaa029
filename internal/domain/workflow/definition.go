// Package workflow defines the declarative workflow model: an ordered,
// optionally dependency-annotated list of phase specs executed as one run.
package workflow

import (
	"errors"
	"fmt"

	"github.com/Strob0t/FlowForge/internal/domain/phase"
)

var (
	ErrIDRequired   = errors.New("workflow id is required")
	ErrNameRequired = errors.New("workflow name is required")
	ErrNoPhases     = errors.New("workflow must have at least one phase")
	ErrPhaseNoType  = errors.New("phase type is required")
	ErrBadDepRef    = errors.New("phase dependency references invalid index")
	ErrDepCycle     = errors.New("phase dependencies contain a cycle")
	ErrBadSkip      = errors.New("skip_if requires a key")
)

// Definition describes a workflow: metadata plus an ordered list of phase
// specs. Definitions are read-only during execution.
type Definition struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Version     int          `json:"version" yaml:"version"`
	Builtin     bool         `json:"builtin" yaml:"-"`
	Phases      []phase.Spec `json:"phases" yaml:"phases"`
}

// Validate checks the definition for structural correctness. When a registry
// is provided, every phase type must be registered and each phase's merged
// config must pass the type's own validation — unknown types fail here, at
// build time, rather than mid-run.
func (d *Definition) Validate(registry *phase.Registry) error {
	if d.ID == "" {
		return ErrIDRequired
	}
	if d.Name == "" {
		return ErrNameRequired
	}
	if len(d.Phases) == 0 {
		return ErrNoPhases
	}

	for i, spec := range d.Phases {
		if spec.Type == "" {
			return fmt.Errorf("phase %d: %w", i, ErrPhaseNoType)
		}
		if spec.SkipIf != nil && spec.SkipIf.Key == "" {
			return fmt.Errorf("phase %d: %w", i, ErrBadSkip)
		}
		for _, dep := range spec.DependsOn {
			if dep < 0 || dep >= len(d.Phases) {
				return fmt.Errorf("phase %d depends on %d: %w", i, dep, ErrBadDepRef)
			}
			if dep == i {
				return fmt.Errorf("phase %d depends on itself: %w", i, ErrDepCycle)
			}
		}
		if registry != nil {
			def, err := registry.Get(spec.Type)
			if err != nil {
				return fmt.Errorf("phase %d: %w", i, err)
			}
			if def.ValidateConfig != nil {
				if err := def.ValidateConfig(def.MergedConfig(spec.Config)); err != nil {
					return fmt.Errorf("phase %d (%s): %w", i, spec.Type, err)
				}
			}
		}
	}

	return d.validateDAG()
}

// validateDAG checks that phase dependencies are acyclic using Kahn's algorithm.
func (d *Definition) validateDAG() error {
	n := len(d.Phases)
	inDegree := make([]int, n)
	adj := make([][]int, n)

	for i, spec := range d.Phases {
		for _, dep := range spec.DependsOn {
			adj[dep] = append(adj[dep], i)
			inDegree[i]++
		}
	}

	queue := make([]int, 0, n)
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != n {
		return ErrDepCycle
	}
	return nil
}
