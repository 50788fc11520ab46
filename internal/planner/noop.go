package planner

import (
	"context"

	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/depgraph"
)

// Noop orders operators topologically without any merging; every group is a
// singleton. Debug/baseline mode.
func Noop(ctx context.Context, g *depgraph.Graph) (Plan, error) {
	order, err := g.Toposort()
	if err != nil {
		return nil, &CycleError{Unscheduled: g.N()}
	}

	plan := make(Plan, len(order))
	for k, i := range order {
		plan[k] = Group{g.Op(i)}
	}
	ctxlog.FromContext(ctx).Debug("noop plan complete", "operators", g.N(), "groups", len(plan))
	return plan, nil
}
