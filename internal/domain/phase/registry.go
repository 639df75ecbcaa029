package phase

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownType is returned when a phase type has no registered definition.
var ErrUnknownType = errors.New("unknown phase type")

// Definition binds a phase type tag to the executor that runs it.
// Unknown types fail at workflow-build time, not at execution time.
type Definition struct {
	// Type is the unique phase type tag, e.g. "analyze" or "implement".
	Type string

	// Executor names the registered agent executor that handles this type.
	Executor string

	// Defaults are merged under a spec's config (spec values win).
	Defaults map[string]any

	// ValidateConfig, if set, checks a spec's merged config at build time.
	ValidateConfig func(config map[string]any) error

	// CanSkip, if set, lets executors short-circuit a phase whose work is
	// already reflected in the input (checked against merged input data).
	CanSkip func(input map[string]any) bool
}

// Registry maps phase type tags to their definitions.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates an empty phase type registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Duplicate registration panics: phase types are
// wired at startup and a collision is a programming error.
func (r *Registry) Register(def Definition) {
	if def.Type == "" {
		panic("phase: definition missing type tag")
	}
	if _, exists := r.defs[def.Type]; exists {
		panic(fmt.Sprintf("phase: duplicate registration for %q", def.Type))
	}
	r.defs[def.Type] = def
}

// Get returns the definition for a phase type.
func (r *Registry) Get(phaseType string) (Definition, error) {
	def, ok := r.defs[phaseType]
	if !ok {
		return Definition{}, fmt.Errorf("phase type %q: %w", phaseType, ErrUnknownType)
	}
	return def, nil
}

// Known reports whether a phase type is registered.
func (r *Registry) Known(phaseType string) bool {
	_, ok := r.defs[phaseType]
	return ok
}

// Types returns all registered phase type tags, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// MergedConfig layers a spec's config over a definition's defaults.
func (d Definition) MergedConfig(config map[string]any) map[string]any {
	merged := make(map[string]any, len(d.Defaults)+len(config))
	for k, v := range d.Defaults {
		merged[k] = v
	}
	for k, v := range config {
		merged[k] = v
	}
	return merged
}
