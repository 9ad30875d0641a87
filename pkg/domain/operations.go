package domain

import (
	"fmt"
	"sort"
)

// Parameters holds the numeric parameter set an operation is applied with.
type Parameters map[string]float64

// Clone returns an independent copy of the parameter set.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	cp := make(Parameters, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// ParameterSpec bounds one operation parameter.
type ParameterSpec struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Default  float64 `json:"default"`
	Required bool    `json:"required"`
}

// ParameterSchema declares the admissible parameter domain of an operation.
type ParameterSchema map[string]ParameterSpec

// Bind fills defaults for absent optional parameters and validates the result
// against the schema. The returned set is independent of the input. Errors
// describe the first violation in sorted parameter order so messages are
// deterministic.
func (s ParameterSchema) Bind(params Parameters) (Parameters, error) {
	bound := params.Clone()
	if bound == nil {
		bound = Parameters{}
	}
	for name := range bound {
		if _, ok := s[name]; !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
	}
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := s[name]
		value, present := bound[name]
		if !present {
			if spec.Required {
				return nil, fmt.Errorf("required parameter %q missing", name)
			}
			bound[name] = spec.Default
			value = spec.Default
		}
		if value < spec.Min || value > spec.Max {
			return nil, fmt.Errorf("parameter %q=%v outside domain [%v, %v]", name, value, spec.Min, spec.Max)
		}
	}
	return bound, nil
}

// Precondition decides whether an operation may apply to a state. The string
// return carries a human-readable detail for the rejection record.
type Precondition func(state StandState, params Parameters) (bool, string)

// Transform produces the post-operation state. It must be pure: no reads or
// writes outside its explicit inputs, and deterministic for identical inputs.
type Transform func(state StandState, params Parameters) (StandState, error)

// GrowthModel advances a stand by exactly one period absent management. It
// must be pure and deterministic.
type GrowthModel func(state StandState) (StandState, error)

// OperationSpec is the registry entry for one management operation.
type OperationSpec struct {
	Name         string
	Schema       ParameterSchema
	Precondition Precondition
	Transform    Transform
}

// ApplyGrowth advances state by one period using model. The result's period
// index is exactly one greater than the input's; any model error or contract
// breach surfaces as GrowthModelFailure.
func ApplyGrowth(state StandState, name string, model GrowthModel) (StandState, error) {
	next, err := model(state.Clone())
	if err != nil {
		return StandState{}, GrowthModelFailure{Model: name, Period: state.Period, Cause: err}
	}
	if next.Period != state.Period+1 {
		return StandState{}, GrowthModelFailure{
			Model:  name,
			Period: state.Period,
			Cause:  fmt.Errorf("model returned period %d, want %d", next.Period, state.Period+1),
		}
	}
	return next, nil
}

// ApplyOperation applies spec to state with the given parameters. The period
// index of the result is unchanged. Parameter violations and false
// preconditions return OperationRejected, the expected pruning outcome.
func ApplyOperation(state StandState, spec OperationSpec, params Parameters) (StandState, error) {
	bound, err := spec.Schema.Bind(params)
	if err != nil {
		return StandState{}, OperationRejected{Operation: spec.Name, Reason: RejectedParameters, Detail: err.Error()}
	}
	if spec.Precondition != nil {
		ok, detail := spec.Precondition(state, bound)
		if !ok {
			return StandState{}, OperationRejected{Operation: spec.Name, Reason: RejectedPrecondition, Detail: detail}
		}
	}
	next, err := spec.Transform(state.Clone(), bound)
	if err != nil {
		if IsRejection(err) {
			return StandState{}, err
		}
		return StandState{}, OperationRejected{Operation: spec.Name, Reason: RejectedTransform, Detail: err.Error()}
	}
	if next.Period != state.Period {
		return StandState{}, OperationRejected{
			Operation: spec.Name,
			Reason:    RejectedTransform,
			Detail:    fmt.Sprintf("transform changed period index from %d to %d", state.Period, next.Period),
		}
	}
	return next, nil
}
