// Package simapi is the stable surface model packs build against. Packs
// contribute growth models and management operations; they never import the
// engine internals.
package simapi

import (
	"metsicore/pkg/domain"
)

// Registry accepts model-pack contributions during installation.
type Registry interface {
	// RegisterGrowthModel adds a named growth model. Registering a duplicate
	// name fails installation.
	RegisterGrowthModel(name string, model domain.GrowthModel) error
	// RegisterOperation adds a management operation. Registering a duplicate
	// name fails installation.
	RegisterOperation(spec domain.OperationSpec) error
}

// Plugin is a model pack: a named, versioned bundle of growth models and
// operations.
type Plugin interface {
	Name() string
	Version() string
	Register(Registry) error
}

const Version = "v1"
