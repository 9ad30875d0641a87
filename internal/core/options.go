package core

import (
	"runtime"
	"time"

	"metsicore/pkg/domain"
)

// Options configures one build. Use DefaultOptions as the base; the zero
// value disables the no-action branch.
type Options struct {
	// AllowNoAction keeps the implicit "grow only" branch at every node.
	AllowNoAction bool
	// MaxParallelism bounds concurrent frontier-node expansion within one
	// period. Zero or negative selects runtime.GOMAXPROCS(0).
	MaxParallelism int
	// MaxChildrenPerNode caps the children committed per node, keeping the
	// declaration-order prefix. Zero means unlimited. Full-tree enumeration
	// is only tractable for small horizons and operation counts.
	MaxChildrenPerNode int
	// Observer receives build progress callbacks. Nil installs a no-op.
	Observer BuildObserver
}

// DefaultOptions returns the documented defaults: no-action allowed,
// platform parallelism, unlimited children.
func DefaultOptions() Options {
	return Options{AllowNoAction: true}
}

func (o Options) normalized() Options {
	if o.MaxParallelism <= 0 {
		o.MaxParallelism = runtime.GOMAXPROCS(0)
	}
	if o.Observer == nil {
		o.Observer = NoopObserver{}
	}
	return o
}

// BuildObserver receives schedule-builder progress events. All events fire
// sequentially from the building goroutine, in frontier order within each
// period.
type BuildObserver interface {
	PeriodStarted(period, frontier int)
	NodeExpanded(period, children int)
	OperationRejected(period int, operation string, reason domain.RejectionReason)
	BranchFailed(period int, reason string)
	PeriodCompleted(period int, duration time.Duration)
}

// NoopObserver discards all build events.
type NoopObserver struct{}

func (NoopObserver) PeriodStarted(int, int)                                {}
func (NoopObserver) NodeExpanded(int, int)                                 {}
func (NoopObserver) OperationRejected(int, string, domain.RejectionReason) {}
func (NoopObserver) BranchFailed(int, string)                              {}
func (NoopObserver) PeriodCompleted(int, time.Duration)                    {}
