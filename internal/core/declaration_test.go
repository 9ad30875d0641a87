package core

import (
	"errors"
	"testing"

	"metsicore/pkg/domain"
)

func TestNewDeclarationTableValidation(t *testing.T) {
	registry := newTestRegistry(t)

	assertInvalid := func(declarations []Declaration) domain.InvalidDeclaration {
		t.Helper()
		_, err := NewDeclarationTable(registry, 2, declarations)
		var invalid domain.InvalidDeclaration
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidDeclaration, got %v", err)
		}
		return invalid
	}

	invalid := assertInvalid([]Declaration{{Period: 2, Operation: "thin"}})
	if invalid.Period != 2 {
		t.Fatalf("period = %d, want 2", invalid.Period)
	}

	assertInvalid([]Declaration{{Period: -1, Operation: "thin"}})
	assertInvalid([]Declaration{{Period: 0, Operation: "prune"}})
	assertInvalid([]Declaration{{Period: 0, Operation: "thin", Parameters: domain.Parameters{"intensity": 0.99}}})
	assertInvalid([]Declaration{{Period: 0, Operation: "thin", Parameters: domain.Parameters{"bogus": 1}}})

	if _, err := NewDeclarationTable(nil, 2, nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
	if _, err := NewDeclarationTable(registry, 0, nil); err == nil {
		t.Fatalf("expected error for non-positive horizon")
	}
}

func TestDeclarationConditionValidation(t *testing.T) {
	registry := newTestRegistry(t)
	low, high := 10.0, 5.0

	cases := []Condition{
		{Attribute: "", GTE: &low},
		{Attribute: "crown_cover", GTE: &low},
		{Attribute: domain.AttrBasalArea},
		{Attribute: domain.AttrBasalArea, GTE: &low, LTE: &high},
	}
	for i, cond := range cases {
		c := cond
		_, err := NewDeclarationTable(registry, 1, []Declaration{{Period: 0, Operation: "thin", Condition: &c}})
		var invalid domain.InvalidDeclaration
		if !errors.As(err, &invalid) {
			t.Fatalf("case %d: expected InvalidDeclaration, got %v", i, err)
		}
	}
}

func TestConditionHolds(t *testing.T) {
	state := testState()
	lo, hi := 1000.0, 2000.0

	cond := Condition{Attribute: domain.AttrStemsPerHa, GTE: &lo, LTE: &hi}
	if ok, detail := cond.Holds(state); !ok {
		t.Fatalf("condition should hold: %s", detail)
	}

	tight := 5000.0
	cond = Condition{Attribute: domain.AttrStemsPerHa, GTE: &tight}
	if ok, detail := cond.Holds(state); ok || detail == "" {
		t.Fatalf("condition should fail with detail, got ok=%v detail=%q", ok, detail)
	}

	upper := 100.0
	cond = Condition{Attribute: domain.AttrStemsPerHa, LTE: &upper}
	if ok, _ := cond.Holds(state); ok {
		t.Fatalf("upper bound should fail")
	}
}

func TestEligibleOperationsOrderAndIsolation(t *testing.T) {
	registry := newTestRegistry(t)
	second := thinOp()
	second.Name = "thin_light"
	if err := registry.RegisterOperation(second); err != nil {
		t.Fatalf("register operation: %v", err)
	}

	table := mustTable(t, registry, 2, []Declaration{
		{Period: 1, Operation: "thin_light"},
		{Period: 1, Operation: "thin"},
	})

	entries := table.EligibleOperations(1)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Operation.Name != "thin_light" || entries[1].Operation.Name != "thin" {
		t.Fatalf("entries not in declaration order: %s, %s", entries[0].Operation.Name, entries[1].Operation.Name)
	}

	// Mutating the returned slice must not affect the table.
	entries[0].Operation.Name = "mutated"
	again := table.EligibleOperations(1)
	if again[0].Operation.Name != "thin_light" {
		t.Fatalf("table state leaked to callers")
	}

	if got := table.EligibleOperations(0); len(got) != 0 {
		t.Fatalf("undeclared period should be empty, got %d", len(got))
	}
	if got := table.EligibleOperations(99); len(got) != 0 {
		t.Fatalf("out-of-range period should be empty, got %d", len(got))
	}
	if table.Horizon() != 2 {
		t.Fatalf("horizon = %d, want 2", table.Horizon())
	}
}
