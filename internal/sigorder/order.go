// Package sigorder reorders base signals, and operators within their groups,
// so that the per-slot reads of each merged group land on contiguous runs of
// the global signal order. The heuristic has two stages: a greedy chaining of
// read blocks by hamming distance, then a fixed-point refinement that
// alternates sorting operators by signal position and re-sorting signals to
// match the operator order.
package sigorder

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/planner"
	"github.com/vk/signalgrid/internal/signal"
)

// DefaultPasses is the refinement pass cap. A tunable, not a convergence
// guarantee; the loop stops early as soon as a pass changes nothing.
const DefaultPasses = 10

// readBlock is the set of base signals read at one fixed input slot across
// all operators of one group.
type readBlock struct {
	group int
	slot  int
	bases map[*signal.Signal]struct{}
	key   string
}

// Optimize returns the base signals arranged into the order in which they
// should reside in memory, and the plan with operators reordered within
// groups to align with that order. Group contents and plan order are
// otherwise unchanged.
func Optimize(ctx context.Context, plan planner.Plan, passes int) ([]*signal.Signal, planner.Plan, error) {
	logger := ctxlog.FromContext(ctx)
	if passes <= 0 {
		passes = DefaultPasses
	}

	allSignals, sigID := baseSignals(plan)

	// Inputs per operator, including implicit read-backs. Derived fresh so
	// the stored operator lists stay untouched and the plan stays
	// re-plannable.
	reads := make(map[*signal.Operator][]*signal.Signal)
	for _, ops := range plan {
		for _, op := range ops {
			reads[op] = op.InputSignals()
		}
	}

	blocksList := formReadBlocks(plan, reads, sigID)
	if len(blocksList) == 0 {
		return allSignals, append(planner.Plan{}, plan...), nil
	}

	sortedBlocks, blockIndex := dedupAndSort(blocksList)

	// Membership signature per signal: the sorted set of block indices the
	// signal participates in.
	sigBlocks := make(map[*signal.Signal][]int)
	for i, b := range sortedBlocks {
		for s := range b.bases {
			sigBlocks[s] = append(sigBlocks[s], i)
		}
	}
	for s := range sigBlocks {
		sort.Ints(sigBlocks[s])
	}

	// Read blocks sorted by increasing weight, so that when operator
	// reordering cascades into signal reordering the heaviest blocks are
	// processed last and win out.
	sortedReads := append([]*readBlock{}, blocksList...)
	sort.SliceStable(sortedReads, func(i, j int) bool {
		return blockIndex[sortedReads[i].key] > blockIndex[sortedReads[j].key]
	})

	ranks := hammingSort(allSignals, sigBlocks)
	sort.SliceStable(allSignals, func(i, j int) bool {
		return ranks[allSignals[i]] < ranks[allSignals[j]]
	})

	newPlan := append(planner.Plan{}, plan...)
	sigIdxs := make(map[*signal.Signal]int, len(allSignals))
	for i, s := range allSignals {
		sigIdxs[s] = i
	}

	for pass := 0; pass < passes; pass++ {
		prevPlan := append(planner.Plan{}, newPlan...)
		prevIdxs := make(map[*signal.Signal]int, len(sigIdxs))
		for s, i := range sigIdxs {
			prevIdxs[s] = i
		}

		sortOpsBySignals(sortedReads, sigIdxs, newPlan, sigBlocks, reads)

		if plansEqual(prevPlan, newPlan) && idxsEqual(prevIdxs, sigIdxs) {
			logger.Debug("signal order converged", "pass", pass+1)
			break
		}
	}

	sorted := append([]*signal.Signal{}, allSignals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sigIdxs[sorted[i]] < sigIdxs[sorted[j]]
	})

	// Refinement must only permute signals inside their hamming-sort
	// blocks and operators inside their groups.
	for i := range allSignals {
		if !sameSignature(sigBlocks[allSignals[i]], sigBlocks[sorted[i]]) {
			return nil, nil, fmt.Errorf("signal order optimizer moved %s across block boundaries", sorted[i])
		}
	}
	if len(newPlan) != len(plan) {
		return nil, nil, fmt.Errorf("signal order optimizer changed group count: %d -> %d", len(plan), len(newPlan))
	}
	for gi := range plan {
		if len(newPlan[gi]) != len(plan[gi]) {
			return nil, nil, fmt.Errorf("signal order optimizer changed group %d size: %d -> %d", gi, len(plan[gi]), len(newPlan[gi]))
		}
	}

	logger.Debug("signal order complete", "signals", len(sorted), "read_blocks", len(blocksList), "unique_blocks", len(sortedBlocks))
	return sorted, newPlan, nil
}

// NoopOrder returns the unique base signals in discovery order and the plan
// untouched. Debug counterpart of Optimize.
func NoopOrder(plan planner.Plan) ([]*signal.Signal, planner.Plan) {
	allSignals, _ := baseSignals(plan)
	return allSignals, plan
}

// baseSignals collects the unique base signals of a plan in first-encounter
// order, along with a stable id per base.
func baseSignals(plan planner.Plan) ([]*signal.Signal, map[*signal.Signal]int) {
	var all []*signal.Signal
	ids := make(map[*signal.Signal]int)
	for _, ops := range plan {
		for _, op := range ops {
			for _, s := range op.AllSignals() {
				b := s.Base()
				if _, ok := ids[b]; !ok {
					ids[b] = len(all)
					all = append(all, b)
				}
			}
		}
	}
	return all, ids
}

// formReadBlocks builds one read block per (group, input slot) pair, in plan
// traversal order.
func formReadBlocks(plan planner.Plan, reads map[*signal.Operator][]*signal.Signal, sigID map[*signal.Signal]int) []*readBlock {
	var blocks []*readBlock
	for gi, ops := range plan {
		if len(ops) == 0 {
			continue
		}
		for slot := range reads[ops[0]] {
			bases := make(map[*signal.Signal]struct{}, len(ops))
			for _, op := range ops {
				bases[reads[op][slot].Base()] = struct{}{}
			}
			blocks = append(blocks, &readBlock{
				group: gi,
				slot:  slot,
				bases: bases,
				key:   basesKey(bases, sigID),
			})
		}
	}
	return blocks
}

// dedupAndSort collapses duplicate read blocks and orders the unique ones by
// descending weight, where weight is total element count times duplicate
// count. Blocks read by several groups matter proportionally more.
func dedupAndSort(blocks []*readBlock) ([]*readBlock, map[string]int) {
	counts := make(map[string]int)
	var unique []*readBlock
	for _, b := range blocks {
		if counts[b.key] == 0 {
			unique = append(unique, b)
		}
		counts[b.key]++
	}

	weight := func(b *readBlock) int {
		total := 0
		for s := range b.bases {
			total += s.Size()
		}
		return total * counts[b.key]
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return weight(unique[i]) > weight(unique[j])
	})

	index := make(map[string]int, len(unique))
	for i, b := range unique {
		index[b.key] = i
	}
	return unique, index
}

func basesKey(bases map[*signal.Signal]struct{}, sigID map[*signal.Signal]int) string {
	ids := make([]int, 0, len(bases))
	for s := range bases {
		ids = append(ids, sigID[s])
	}
	sort.Ints(ids)
	return intsKey(ids)
}

func intsKey(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	return sb.String()
}

func sameSignature(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func plansEqual(a, b planner.Plan) bool {
	for gi := range a {
		for k := range a[gi] {
			if a[gi][k] != b[gi][k] {
				return false
			}
		}
	}
	return true
}

func idxsEqual(a, b map[*signal.Signal]int) bool {
	for s, i := range a {
		if b[s] != i {
			return false
		}
	}
	return true
}
