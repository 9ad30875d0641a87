// Package domain defines the stand-state value types, transformation
// contracts, and error taxonomy used by the metsi simulation core.
package domain

import (
	"fmt"
	"math"
	"sort"
)

// SoilType identifies the soil category of a stand's site.
type SoilType string

// Supported soil categories.
const (
	// SoilMineral identifies mineral soil sites.
	SoilMineral SoilType = "mineral"
	// SoilPeat identifies peatland sites.
	SoilPeat SoilType = "peat"
)

// FertilityClass represents the site fertility classification of a stand.
type FertilityClass string

// Canonical fertility classes ordered from most to least fertile.
const (
	FertilityHerbRich FertilityClass = "herb_rich"
	FertilityMesic    FertilityClass = "mesic"
	FertilitySubXeric FertilityClass = "sub_xeric"
	FertilityXeric    FertilityClass = "xeric"
)

// Species tags a tree record with its species group.
type Species string

// Species groups recognised by the reference model packs. Model packs may
// introduce further tags; the core treats the value as opaque.
const (
	SpeciesPine   Species = "pine"
	SpeciesSpruce Species = "spruce"
	SpeciesBirch  Species = "birch"
)

// TreeRecord describes one represented tree cohort within a stand. StemsPerHa
// is the representation weight: how many stems per hectare the record stands
// for.
type TreeRecord struct {
	Species    Species `json:"species"`
	StemsPerHa float64 `json:"stems_per_ha"`
	DiameterCM float64 `json:"diameter_cm"`
	HeightM    float64 `json:"height_m"`
	AgeYears   float64 `json:"age_years"`
}

// SiteAttributes captures the site-level attributes of a stand.
type SiteAttributes struct {
	Soil      SoilType       `json:"soil"`
	Fertility FertilityClass `json:"fertility"`
}

// StandState is a snapshot of a forest stand at one simulated instant.
// A StandState is never mutated after creation; every transition produces a
// new value via Clone.
type StandState struct {
	Period int            `json:"period"`
	Site   SiteAttributes `json:"site"`
	Trees  []TreeRecord   `json:"trees"`
}

// Clone returns a fully independent copy of the state.
func (s StandState) Clone() StandState {
	cp := s
	cp.Trees = append([]TreeRecord(nil), s.Trees...)
	return cp
}

var validSoils = map[SoilType]struct{}{
	SoilMineral: {},
	SoilPeat:    {},
}

var validFertilities = map[FertilityClass]struct{}{
	FertilityHerbRich: {},
	FertilityMesic:    {},
	FertilitySubXeric: {},
	FertilityXeric:    {},
}

// Validate checks the stand-state invariants: non-negative period, recognised
// site enumerations, and non-negative tree measurements.
func (s StandState) Validate() error {
	if s.Period < 0 {
		return fmt.Errorf("period index %d is negative", s.Period)
	}
	if _, ok := validSoils[s.Site.Soil]; !ok {
		return fmt.Errorf("unknown soil type %q", s.Site.Soil)
	}
	if _, ok := validFertilities[s.Site.Fertility]; !ok {
		return fmt.Errorf("unknown fertility class %q", s.Site.Fertility)
	}
	for i, tree := range s.Trees {
		if tree.Species == "" {
			return fmt.Errorf("tree record %d has empty species tag", i)
		}
		if tree.StemsPerHa < 0 || tree.DiameterCM < 0 || tree.HeightM < 0 || tree.AgeYears < 0 {
			return fmt.Errorf("tree record %d (%s) has negative measurement", i, tree.Species)
		}
	}
	return nil
}

// Named derived attributes form the fixed Stand State schema referenced by
// declaration preconditions.
const (
	AttrPeriod       = "period"
	AttrAge          = "age"
	AttrStemsPerHa   = "stems_per_ha"
	AttrBasalArea    = "basal_area"
	AttrMeanDiameter = "mean_diameter"
	AttrMeanHeight   = "mean_height"
	AttrVolume       = "volume"
)

// volumeFormFactor converts basal area x height into a crude stem volume
// estimate. Model packs supply their own volume functions; this schema value
// exists only for declarative preconditions.
const volumeFormFactor = 0.45

// AttributeNames returns the sorted names of the derived attribute schema.
func AttributeNames() []string {
	names := []string{
		AttrPeriod,
		AttrAge,
		AttrStemsPerHa,
		AttrBasalArea,
		AttrMeanDiameter,
		AttrMeanHeight,
		AttrVolume,
	}
	sort.Strings(names)
	return names
}

// HasAttribute reports whether name is part of the derived attribute schema.
func HasAttribute(name string) bool {
	switch name {
	case AttrPeriod, AttrAge, AttrStemsPerHa, AttrBasalArea, AttrMeanDiameter, AttrMeanHeight, AttrVolume:
		return true
	}
	return false
}

// Attribute computes the named derived attribute from the state. Stem-weighted
// means are zero for empty stands. The boolean is false for names outside the
// schema.
func (s StandState) Attribute(name string) (float64, bool) {
	switch name {
	case AttrPeriod:
		return float64(s.Period), true
	case AttrAge:
		return s.weightedMean(func(t TreeRecord) float64 { return t.AgeYears }), true
	case AttrStemsPerHa:
		return s.totalStems(), true
	case AttrBasalArea:
		return s.basalArea(), true
	case AttrMeanDiameter:
		return s.weightedMean(func(t TreeRecord) float64 { return t.DiameterCM }), true
	case AttrMeanHeight:
		return s.weightedMean(func(t TreeRecord) float64 { return t.HeightM }), true
	case AttrVolume:
		return s.volume(), true
	}
	return 0, false
}

func (s StandState) totalStems() float64 {
	var sum float64
	for _, t := range s.Trees {
		sum += t.StemsPerHa
	}
	return sum
}

func (s StandState) weightedMean(value func(TreeRecord) float64) float64 {
	stems := s.totalStems()
	if stems == 0 {
		return 0
	}
	var sum float64
	for _, t := range s.Trees {
		sum += value(t) * t.StemsPerHa
	}
	return sum / stems
}

// basalArea returns the stand basal area in m^2/ha.
func (s StandState) basalArea() float64 {
	var sum float64
	for _, t := range s.Trees {
		radiusM := t.DiameterCM / 200
		sum += t.StemsPerHa * math.Pi * radiusM * radiusM
	}
	return sum
}

// volume returns a form-factor stem volume estimate in m^3/ha.
func (s StandState) volume() float64 {
	var sum float64
	for _, t := range s.Trees {
		radiusM := t.DiameterCM / 200
		sum += t.StemsPerHa * math.Pi * radiusM * radiusM * t.HeightM * volumeFormFactor
	}
	return sum
}
