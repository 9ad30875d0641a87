// Package core implements the scenario scheduling and branching engine: the
// declaration table, the trajectory tree, and the schedule builder that
// expands a stand period by period into its alternative futures.
package core

import (
	"fmt"
	"sort"

	"metsicore/pkg/domain"
	"metsicore/pkg/simapi"
)

// Registry maps growth-model and operation names to their implementations.
// It is populated by model packs before a run and read-only during one.
type Registry struct {
	growth     map[string]domain.GrowthModel
	operations map[string]domain.OperationSpec
}

var _ simapi.Registry = (*Registry)(nil)

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		growth:     make(map[string]domain.GrowthModel),
		operations: make(map[string]domain.OperationSpec),
	}
}

// RegisterGrowthModel adds a named growth model.
func (r *Registry) RegisterGrowthModel(name string, model domain.GrowthModel) error {
	if name == "" {
		return fmt.Errorf("growth model name cannot be empty")
	}
	if model == nil {
		return fmt.Errorf("growth model %q cannot be nil", name)
	}
	if _, exists := r.growth[name]; exists {
		return fmt.Errorf("growth model %q already registered", name)
	}
	r.growth[name] = model
	return nil
}

// RegisterOperation adds a management operation.
func (r *Registry) RegisterOperation(spec domain.OperationSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if spec.Transform == nil {
		return fmt.Errorf("operation %q has no transform", spec.Name)
	}
	if _, exists := r.operations[spec.Name]; exists {
		return fmt.Errorf("operation %q already registered", spec.Name)
	}
	r.operations[spec.Name] = spec
	return nil
}

// GrowthModel looks up a growth model by name.
func (r *Registry) GrowthModel(name string) (domain.GrowthModel, bool) {
	model, ok := r.growth[name]
	return model, ok
}

// Operation looks up an operation spec by name.
func (r *Registry) Operation(name string) (domain.OperationSpec, bool) {
	spec, ok := r.operations[name]
	return spec, ok
}

// GrowthModelNames returns registered growth-model names in sorted order.
func (r *Registry) GrowthModelNames() []string {
	names := make([]string, 0, len(r.growth))
	for name := range r.growth {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OperationNames returns registered operation names in sorted order.
func (r *Registry) OperationNames() []string {
	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
