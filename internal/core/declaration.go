package core

import (
	"fmt"
	"strings"

	"metsicore/pkg/domain"
)

// Condition is a declarative precondition over the stand-state attribute
// schema: an attribute bounded below, above, or both. Structured conditions
// keep declarations validatable at construction time.
type Condition struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	GTE       *float64 `json:"gte,omitempty" yaml:"gte,omitempty"`
	LTE       *float64 `json:"lte,omitempty" yaml:"lte,omitempty"`
}

func (c Condition) validate() error {
	if strings.TrimSpace(c.Attribute) == "" {
		return fmt.Errorf("condition attribute cannot be empty")
	}
	if !domain.HasAttribute(c.Attribute) {
		return fmt.Errorf("condition references unknown attribute %q (schema: %v)", c.Attribute, domain.AttributeNames())
	}
	if c.GTE == nil && c.LTE == nil {
		return fmt.Errorf("condition on %q declares no bounds", c.Attribute)
	}
	if c.GTE != nil && c.LTE != nil && *c.GTE > *c.LTE {
		return fmt.Errorf("condition on %q has empty interval [%v, %v]", c.Attribute, *c.GTE, *c.LTE)
	}
	return nil
}

// Holds evaluates the condition against a state. The string return carries
// the failure detail.
func (c Condition) Holds(state domain.StandState) (bool, string) {
	value, ok := state.Attribute(c.Attribute)
	if !ok {
		return false, fmt.Sprintf("attribute %q not in schema", c.Attribute)
	}
	if c.GTE != nil && value < *c.GTE {
		return false, fmt.Sprintf("%s=%v below %v", c.Attribute, value, *c.GTE)
	}
	if c.LTE != nil && value > *c.LTE {
		return false, fmt.Sprintf("%s=%v above %v", c.Attribute, value, *c.LTE)
	}
	return true, ""
}

// Declaration names one operation eligible in one period, with its parameter
// set and optional declarative precondition.
type Declaration struct {
	Period     int               `json:"period"`
	Operation  string            `json:"operation"`
	Parameters domain.Parameters `json:"parameters,omitempty"`
	Condition  *Condition        `json:"condition,omitempty"`
}

// EligibleOperation is one resolved declaration entry: the registered
// operation spec plus the declared parameters and condition.
type EligibleOperation struct {
	Operation  domain.OperationSpec
	Parameters domain.Parameters
	Condition  *Condition
}

// DeclarationTable maps period indexes to their eligible operations in
// declaration order. The table is validated at construction and read-only
// for the duration of a run.
type DeclarationTable struct {
	horizon int
	periods map[int][]EligibleOperation
}

// NewDeclarationTable resolves and validates declarations against the
// registry and horizon. Every declared period must lie within [0, horizon);
// every operation must be registered with parameters admissible by its
// schema; every condition must reference the stand-state attribute schema.
// Violations fail construction with InvalidDeclaration before any
// simulation begins.
func NewDeclarationTable(registry *Registry, horizon int, declarations []Declaration) (*DeclarationTable, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	table := &DeclarationTable{
		horizon: horizon,
		periods: make(map[int][]EligibleOperation),
	}
	for _, decl := range declarations {
		if decl.Period < 0 || decl.Period >= horizon {
			return nil, domain.InvalidDeclaration{
				Period:    decl.Period,
				Operation: decl.Operation,
				Detail:    fmt.Sprintf("period outside [0, %d)", horizon),
			}
		}
		spec, ok := registry.Operation(decl.Operation)
		if !ok {
			return nil, domain.InvalidDeclaration{
				Period:    decl.Period,
				Operation: decl.Operation,
				Detail:    "operation not registered",
			}
		}
		if _, err := spec.Schema.Bind(decl.Parameters); err != nil {
			return nil, domain.InvalidDeclaration{
				Period:    decl.Period,
				Operation: decl.Operation,
				Detail:    err.Error(),
			}
		}
		if decl.Condition != nil {
			if err := decl.Condition.validate(); err != nil {
				return nil, domain.InvalidDeclaration{
					Period:    decl.Period,
					Operation: decl.Operation,
					Detail:    err.Error(),
				}
			}
		}
		entry := EligibleOperation{
			Operation:  spec,
			Parameters: decl.Parameters.Clone(),
		}
		if decl.Condition != nil {
			cond := *decl.Condition
			entry.Condition = &cond
		}
		table.periods[decl.Period] = append(table.periods[decl.Period], entry)
	}
	return table, nil
}

// Horizon returns the number of simulated periods the table was built for.
func (t *DeclarationTable) Horizon() int { return t.horizon }

// EligibleOperations returns the declaration-order entries for a period.
// Periods with no declarations, or outside the horizon, yield an empty
// sequence: only the no-action growth branch applies there.
func (t *DeclarationTable) EligibleOperations(period int) []EligibleOperation {
	entries := t.periods[period]
	out := make([]EligibleOperation, len(entries))
	copy(out, entries)
	return out
}
