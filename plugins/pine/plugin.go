// Package pine is the reference model pack: a toy pine-dominated growth
// model and the three basic management operations. The numerics are
// deliberately simple; the pack exists to exercise the simulation core, not
// to predict real stands.
package pine

import (
	"fmt"

	"metsicore/pkg/domain"
	"metsicore/pkg/simapi"
)

// GrowthModelName is the registry key of the pack's growth model.
const GrowthModelName = "pine.basic"

// Operation names registered by the pack.
const (
	OpThinning = "thinning"
	OpClearcut = "clearcut"
	OpPlant    = "plant"
)

// periodYears is the calendar length of one simulation period.
const periodYears = 5

// Plugin implements simapi.Plugin.
type Plugin struct{}

// New constructs a pine plugin instance.
func New() Plugin { return Plugin{} }

// Name returns the plugin identifier.
func (Plugin) Name() string { return "pine" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register wires the growth model and management operations.
func (Plugin) Register(registry simapi.Registry) error {
	if err := registry.RegisterGrowthModel(GrowthModelName, Grow); err != nil {
		return err
	}
	for _, spec := range []domain.OperationSpec{thinningSpec(), clearcutSpec(), plantSpec()} {
		if err := registry.RegisterOperation(spec); err != nil {
			return err
		}
	}
	return nil
}

// fertilityGrowthFactor scales the diameter and height increments. Herb-rich
// sites grow fastest, xeric slowest.
func fertilityGrowthFactor(class domain.FertilityClass) (float64, error) {
	switch class {
	case domain.FertilityHerbRich:
		return 1.25, nil
	case domain.FertilityMesic:
		return 1.0, nil
	case domain.FertilitySubXeric:
		return 0.8, nil
	case domain.FertilityXeric:
		return 0.6, nil
	default:
		return 0, fmt.Errorf("unknown fertility class %q", class)
	}
}

// Grow advances a stand by one period: every cohort ages by the period
// length, gains diameter and height scaled by site fertility, and loses a
// small share of stems to natural mortality. Peat sites grow slightly
// slower than mineral sites.
func Grow(state domain.StandState) (domain.StandState, error) {
	factor, err := fertilityGrowthFactor(state.Site.Fertility)
	if err != nil {
		return domain.StandState{}, err
	}
	if state.Site.Soil == domain.SoilPeat {
		factor *= 0.9
	}
	next := state.Clone()
	next.Period = state.Period + 1
	for i := range next.Trees {
		t := &next.Trees[i]
		t.AgeYears += periodYears
		t.DiameterCM += 1.6 * factor
		t.HeightM += 1.1 * factor
		// Density-dependent mortality: crowded stands self-thin harder.
		survival := 0.985
		if t.StemsPerHa > 2500 {
			survival = 0.96
		}
		t.StemsPerHa *= survival
	}
	return next, nil
}

func thinningSpec() domain.OperationSpec {
	return domain.OperationSpec{
		Name: OpThinning,
		Schema: domain.ParameterSchema{
			"intensity":      {Min: 0.05, Max: 0.45, Required: true},
			"min_basal_area": {Min: 0, Max: 60, Default: 23},
		},
		Precondition: func(state domain.StandState, params domain.Parameters) (bool, string) {
			ba, _ := state.Attribute(domain.AttrBasalArea)
			if ba < params["min_basal_area"] {
				return false, fmt.Sprintf("basal_area=%.2f below min_basal_area=%.2f", ba, params["min_basal_area"])
			}
			return true, ""
		},
		Transform: func(state domain.StandState, params domain.Parameters) (domain.StandState, error) {
			removal := params["intensity"]
			for i := range state.Trees {
				state.Trees[i].StemsPerHa *= 1 - removal
			}
			return state, nil
		},
	}
}

func clearcutSpec() domain.OperationSpec {
	return domain.OperationSpec{
		Name: OpClearcut,
		Schema: domain.ParameterSchema{
			"min_age": {Min: 0, Max: 300, Default: 60},
		},
		Precondition: func(state domain.StandState, params domain.Parameters) (bool, string) {
			if len(state.Trees) == 0 {
				return false, "stand is already empty"
			}
			age, _ := state.Attribute(domain.AttrAge)
			if age < params["min_age"] {
				return false, fmt.Sprintf("age=%.1f below min_age=%.1f", age, params["min_age"])
			}
			return true, ""
		},
		Transform: func(state domain.StandState, _ domain.Parameters) (domain.StandState, error) {
			state.Trees = nil
			return state, nil
		},
	}
}

func plantSpec() domain.OperationSpec {
	return domain.OperationSpec{
		Name: OpPlant,
		Schema: domain.ParameterSchema{
			"stems_per_ha": {Min: 500, Max: 5000, Default: 2000},
		},
		Precondition: func(state domain.StandState, _ domain.Parameters) (bool, string) {
			if len(state.Trees) > 0 {
				return false, "stand is not empty"
			}
			return true, ""
		},
		Transform: func(state domain.StandState, params domain.Parameters) (domain.StandState, error) {
			state.Trees = []domain.TreeRecord{{
				Species:    domain.SpeciesPine,
				StemsPerHa: params["stems_per_ha"],
				DiameterCM: 0,
				HeightM:    0.2,
				AgeYears:   1,
			}}
			return state, nil
		},
	}
}
