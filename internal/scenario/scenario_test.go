package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"metsicore/pkg/domain"
)

const validDoc = `
name: thinning-study
growth_model: pine.basic
horizon: 3
options:
  max_parallelism: 2
initial_stand:
  site:
    soil: mineral
    fertility: mesic
  trees:
    - species: pine
      stems_per_ha: 1800
      diameter_cm: 12
      height_m: 11
      age_years: 30
declarations:
  - period: 1
    operation: thinning
    parameters:
      intensity: 0.3
    condition:
      attribute: basal_area
      gte: 23
`

func TestParseValidScenario(t *testing.T) {
	s, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if s.Name != "thinning-study" || s.GrowthModel != "pine.basic" || s.Horizon != 3 {
		t.Fatalf("scenario = %+v", s)
	}

	state, err := s.InitialState()
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	if state.Period != 0 || state.Site.Soil != domain.SoilMineral || len(state.Trees) != 1 {
		t.Fatalf("state = %+v", state)
	}

	declarations := s.CoreDeclarations()
	if len(declarations) != 1 {
		t.Fatalf("declarations = %d, want 1", len(declarations))
	}
	decl := declarations[0]
	if decl.Period != 1 || decl.Operation != "thinning" || decl.Parameters["intensity"] != 0.3 {
		t.Fatalf("declaration = %+v", decl)
	}
	if decl.Condition == nil || decl.Condition.Attribute != domain.AttrBasalArea {
		t.Fatalf("condition = %+v", decl.Condition)
	}
	if decl.Condition.GTE == nil || *decl.Condition.GTE != 23 {
		t.Fatalf("condition bound = %+v", decl.Condition.GTE)
	}

	opts := s.BuildOptions()
	if !opts.AllowNoAction {
		t.Fatalf("allow_no_action should default to true")
	}
	if opts.MaxParallelism != 2 {
		t.Fatalf("max_parallelism = %d, want 2", opts.MaxParallelism)
	}
}

func TestAllowNoActionOverride(t *testing.T) {
	doc := strings.Replace(validDoc, "options:\n  max_parallelism: 2",
		"options:\n  allow_no_action: false", 1)
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if s.BuildOptions().AllowNoAction {
		t.Fatalf("allow_no_action override ignored")
	}
}

func TestParseRejections(t *testing.T) {
	cases := map[string]string{
		"unknown field":  strings.Replace(validDoc, "horizon: 3", "horizon: 3\nspan: 3", 1),
		"missing name":   strings.Replace(validDoc, "name: thinning-study", "name: \"\"", 1),
		"missing model":  strings.Replace(validDoc, "growth_model: pine.basic", "growth_model: \"\"", 1),
		"zero horizon":   strings.Replace(validDoc, "horizon: 3", "horizon: 0", 1),
		"not yaml":       "{{{",
		"no tree strata": strings.Replace(validDoc, "  trees:\n    - species: pine\n      stems_per_ha: 1800\n      diameter_cm: 12\n      height_m: 11\n      age_years: 30", "  trees: []", 1),
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: parse accepted invalid document", name)
		}
	}
}

func TestInitialStateValidation(t *testing.T) {
	doc := strings.Replace(validDoc, "soil: mineral", "soil: granite", 1)
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, err := s.InitialState(); err == nil {
		t.Fatalf("invalid soil accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Name != "thinning-study" {
		t.Fatalf("scenario = %+v", s)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
