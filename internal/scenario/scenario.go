// Package scenario loads simulation scenarios from YAML files and converts
// them into the core builder's inputs.
package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"metsicore/internal/core"
	"metsicore/pkg/domain"
)

// Scenario is the YAML document describing one simulation run: the initial
// stand, the growth model, the planning horizon and the per-period operation
// declarations.
type Scenario struct {
	Name         string        `yaml:"name"`
	GrowthModel  string        `yaml:"growth_model"`
	Horizon      int           `yaml:"horizon"`
	Options      RunOptions    `yaml:"options"`
	InitialStand InitialStand  `yaml:"initial_stand"`
	Declarations []Declaration `yaml:"declarations"`
}

// RunOptions mirrors core.Options in YAML form. AllowNoAction defaults to
// true when omitted.
type RunOptions struct {
	AllowNoAction      *bool `yaml:"allow_no_action"`
	MaxParallelism     int   `yaml:"max_parallelism"`
	MaxChildrenPerNode int   `yaml:"max_children_per_node"`
}

// InitialStand describes the stand at period zero.
type InitialStand struct {
	Site  Site   `yaml:"site"`
	Trees []Tree `yaml:"trees"`
}

// Site holds the immutable site attributes.
type Site struct {
	Soil      string `yaml:"soil"`
	Fertility string `yaml:"fertility"`
}

// Tree is one stratum of the stand's tree list.
type Tree struct {
	Species    string  `yaml:"species"`
	StemsPerHa float64 `yaml:"stems_per_ha"`
	DiameterCM float64 `yaml:"diameter_cm"`
	HeightM    float64 `yaml:"height_m"`
	AgeYears   float64 `yaml:"age_years"`
}

// Declaration names one operation eligible in one period.
type Declaration struct {
	Period     int                `yaml:"period"`
	Operation  string             `yaml:"operation"`
	Parameters map[string]float64 `yaml:"parameters"`
	Condition  *core.Condition    `yaml:"condition"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(payload)
}

// Parse decodes a scenario document and checks the fields the YAML schema
// itself cannot express. Registry-dependent validation (operation names,
// parameter domains) happens later in core.NewDeclarationTable.
func Parse(payload []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario name required")
	}
	if s.GrowthModel == "" {
		return nil, fmt.Errorf("scenario growth_model required")
	}
	if s.Horizon <= 0 {
		return nil, fmt.Errorf("scenario horizon must be positive, got %d", s.Horizon)
	}
	if len(s.InitialStand.Trees) == 0 {
		return nil, fmt.Errorf("scenario initial_stand must list at least one tree stratum")
	}
	return &s, nil
}

// InitialState converts the declared stand into a validated period-zero
// state.
func (s *Scenario) InitialState() (domain.StandState, error) {
	trees := make([]domain.TreeRecord, 0, len(s.InitialStand.Trees))
	for _, t := range s.InitialStand.Trees {
		trees = append(trees, domain.TreeRecord{
			Species:    domain.Species(t.Species),
			StemsPerHa: t.StemsPerHa,
			DiameterCM: t.DiameterCM,
			HeightM:    t.HeightM,
			AgeYears:   t.AgeYears,
		})
	}
	state := domain.StandState{
		Period: 0,
		Site: domain.SiteAttributes{
			Soil:      domain.SoilType(s.InitialStand.Site.Soil),
			Fertility: domain.FertilityClass(s.InitialStand.Site.Fertility),
		},
		Trees: trees,
	}
	if err := state.Validate(); err != nil {
		return domain.StandState{}, fmt.Errorf("scenario initial_stand: %w", err)
	}
	return state, nil
}

// CoreDeclarations converts the YAML declarations into builder declarations.
func (s *Scenario) CoreDeclarations() []core.Declaration {
	out := make([]core.Declaration, 0, len(s.Declarations))
	for _, d := range s.Declarations {
		decl := core.Declaration{
			Period:     d.Period,
			Operation:  d.Operation,
			Parameters: domain.Parameters(d.Parameters).Clone(),
		}
		if d.Condition != nil {
			cond := *d.Condition
			decl.Condition = &cond
		}
		out = append(out, decl)
	}
	return out
}

// BuildOptions converts the YAML options into core.Options.
func (s *Scenario) BuildOptions() core.Options {
	opts := core.DefaultOptions()
	if s.Options.AllowNoAction != nil {
		opts.AllowNoAction = *s.Options.AllowNoAction
	}
	opts.MaxParallelism = s.Options.MaxParallelism
	opts.MaxChildrenPerNode = s.Options.MaxChildrenPerNode
	return opts
}
