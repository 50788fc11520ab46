// Package compile wires the full pass together: dependency graph, planner,
// signal order optimizer, memory layout. Callers that need the stages
// individually can use the underlying packages directly; this facade exists
// for the CLI and for end-to-end tests.
package compile

import (
	"context"
	"fmt"

	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/depgraph"
	"github.com/vk/signalgrid/internal/layout"
	"github.com/vk/signalgrid/internal/planner"
	"github.com/vk/signalgrid/internal/sigorder"
	"github.com/vk/signalgrid/internal/signal"
)

// Options configure one compile pass.
type Options struct {
	// Planner names the strategy passed to planner.ByName.
	Planner string
	// FloatType is the simulation precision for the layout.
	FloatType signal.Dtype
	// MinibatchSize is the minibatch tiling factor for the layout.
	MinibatchSize int
	// SortPasses caps the signal order refinement loop; zero means the
	// default.
	SortPasses int
	// SkipOrdering uses the debug no-reorder signal order.
	SkipOrdering bool
}

// Result is the finished compile artifact set. All fields are immutable once
// returned; ownership transfers to the caller.
type Result struct {
	Plan        planner.Plan
	Signals     []*signal.Signal
	Arrays      map[layout.Key]*layout.BaseArray
	Descriptors map[*signal.Signal]*layout.TensorSignal
}

// Run executes the full pass over the given operators.
func Run(ctx context.Context, ops []*signal.Operator, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	plan, err := planOperators(ctx, ops, opts.Planner)
	if err != nil {
		return nil, err
	}

	var sigs []*signal.Signal
	if opts.SkipOrdering {
		sigs, plan = sigorder.NoopOrder(plan)
	} else {
		sigs, plan, err = sigorder.Optimize(ctx, plan, opts.SortPasses)
		if err != nil {
			return nil, err
		}
	}

	arrays, descriptors, err := layout.Build(ctx, sigs, plan, layout.Config{
		FloatType:     opts.FloatType,
		MinibatchSize: opts.MinibatchSize,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("compile complete",
		"operators", len(ops),
		"groups", len(plan),
		"signals", len(sigs),
		"base_arrays", len(arrays),
	)
	return &Result{
		Plan:        plan,
		Signals:     sigs,
		Arrays:      arrays,
		Descriptors: descriptors,
	}, nil
}

func planOperators(ctx context.Context, ops []*signal.Operator, name string) (planner.Plan, error) {
	strategy, err := planner.ByName(name)
	if err != nil {
		return nil, err
	}
	g := depgraph.Build(ops)
	plan, err := strategy(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("planning with %s: %w", name, err)
	}
	return plan, nil
}
