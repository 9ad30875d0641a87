package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"metsicore/pkg/domain"
)

// childResult is one successfully produced child during node expansion.
type childResult struct {
	label string
	state domain.StandState
}

// rejection records a pruned operation for observability.
type rejection struct {
	operation string
	reason    domain.RejectionReason
}

// expansion is the outcome of expanding one frontier node: either a failure
// reason, or the ordered children plus the rejections encountered.
type expansion struct {
	children   []childResult
	rejections []rejection
	failure    string
}

// BuildTrajectories expands the initial stand state period by period into
// the full trajectory tree: the single entry point of the engine.
//
// Per period, every frontier node is grown by the named model, then every
// eligible operation is evaluated in declaration order against the grown
// state; the no-action branch is appended last. Branch-local failures are
// absorbed into per-branch status; only input validation and cancellation
// abort the run. Frontier nodes may expand in parallel, but results are
// committed in frontier order, so the resulting tree is identical at any
// parallelism setting. Cancellation is checked at period boundaries only.
func BuildTrajectories(ctx context.Context, initial domain.StandState, table *DeclarationTable, registry *Registry, growthModel string, opts Options) (*Tree, error) {
	if table == nil {
		return nil, domain.FatalError{Component: "schedule builder", Cause: errors.New("declaration table is nil")}
	}
	if registry == nil {
		return nil, domain.FatalError{Component: "schedule builder", Cause: errors.New("registry is nil")}
	}
	if err := initial.Validate(); err != nil {
		return nil, domain.FatalError{Component: "initial stand state", Cause: err}
	}
	if initial.Period != 0 {
		return nil, domain.FatalError{
			Component: "initial stand state",
			Cause:     fmt.Errorf("period index must be 0 at the start of a run, got %d", initial.Period),
		}
	}
	model, ok := registry.GrowthModel(growthModel)
	if !ok {
		return nil, domain.FatalError{
			Component: "schedule builder",
			Cause:     fmt.Errorf("growth model %q not registered", growthModel),
		}
	}

	opts = opts.normalized()
	horizon := table.Horizon()
	tree := newTree(initial, horizon)
	frontier := []int{tree.Root()}

	// The builder moves Idle -> Expanding(period) -> ... -> Complete. A
	// period's expansion is atomic: no partial period is ever committed.
	for period := 0; period < horizon; period++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.FatalError{
				Component: fmt.Sprintf("schedule builder at period %d", period),
				Cause:     err,
			}
		}
		started := time.Now()
		opts.Observer.PeriodStarted(period, len(frontier))

		eligible := table.EligibleOperations(period)
		results := make([]expansion, len(frontier))

		var group errgroup.Group
		group.SetLimit(opts.MaxParallelism)
		for i, id := range frontier {
			state := tree.nodes[id].State
			group.Go(func() error {
				results[i] = expandNode(state, growthModel, model, eligible, opts)
				return nil
			})
		}
		// Workers report failures as data, never as errors.
		_ = group.Wait()

		next := make([]int, 0, len(frontier))
		for i, id := range frontier {
			result := results[i]
			for _, rej := range result.rejections {
				opts.Observer.OperationRejected(period, rej.operation, rej.reason)
			}
			if result.failure != "" {
				tree.markFailed(id, result.failure)
				opts.Observer.BranchFailed(period, result.failure)
				continue
			}
			for _, child := range result.children {
				next = append(next, tree.addChild(id, child.label, child.state))
			}
			tree.markExpanded(id)
			opts.Observer.NodeExpanded(period, len(result.children))
		}
		opts.Observer.PeriodCompleted(period, time.Since(started))
		frontier = next
	}

	for _, id := range frontier {
		tree.markComplete(id)
	}
	return tree, nil
}

// expandNode computes the children of one frontier node: grow, evaluate the
// eligible operations in declaration order, then append the no-action branch.
// Pure over its inputs; safe to run concurrently across nodes.
func expandNode(state domain.StandState, modelName string, model domain.GrowthModel, eligible []EligibleOperation, opts Options) expansion {
	grown, err := domain.ApplyGrowth(state, modelName, model)
	if err != nil {
		return expansion{failure: err.Error()}
	}

	var result expansion
	for _, entry := range eligible {
		if entry.Condition != nil {
			ok, _ := entry.Condition.Holds(grown)
			if !ok {
				result.rejections = append(result.rejections, rejection{
					operation: entry.Operation.Name,
					reason:    domain.RejectedPrecondition,
				})
				continue
			}
		}
		child, err := domain.ApplyOperation(grown, entry.Operation, entry.Parameters)
		if err != nil {
			var rejected domain.OperationRejected
			if errors.As(err, &rejected) {
				result.rejections = append(result.rejections, rejection{
					operation: rejected.Operation,
					reason:    rejected.Reason,
				})
			}
			continue
		}
		result.children = append(result.children, childResult{label: entry.Operation.Name, state: child})
	}

	if opts.AllowNoAction {
		result.children = append(result.children, childResult{label: LabelNoAction, state: grown})
	} else if len(result.children) == 0 {
		result.failure = "exhausted: no operation applicable and no-action disabled"
		return result
	}

	if opts.MaxChildrenPerNode > 0 && len(result.children) > opts.MaxChildrenPerNode {
		result.children = result.children[:opts.MaxChildrenPerNode]
	}
	return result
}
