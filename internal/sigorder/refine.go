package sigorder

import (
	"sort"

	"github.com/vk/signalgrid/internal/planner"
	"github.com/vk/signalgrid/internal/signal"
)

// sortOpsBySignals rearranges operators within each group to match the
// current signal order, then cascades each rearrangement back into the
// signal order. The same operators can sit behind several read blocks (one
// per input slot), so sorting by one block can disturb another; blocks are
// visited in increasing weight so the heaviest ones settle last and win.
func sortOpsBySignals(sortedReads []*readBlock, sigIdxs map[*signal.Signal]int, newPlan planner.Plan, sigBlocks map[*signal.Signal][]int, reads map[*signal.Operator][]*signal.Signal) {
	for _, rb := range sortedReads {
		ops := newPlan[rb.group]
		if len(ops) <= 1 {
			continue
		}

		sorted := append(planner.Group{}, ops...)
		sort.SliceStable(sorted, func(i, j int) bool {
			si := reads[sorted[i]][rb.slot]
			sj := reads[sorted[j]][rb.slot]
			if sigIdxs[si.Base()] != sigIdxs[sj.Base()] {
				return sigIdxs[si.Base()] < sigIdxs[sj.Base()]
			}
			return si.ElemOffset < sj.ElemOffset
		})
		newPlan[rb.group] = sorted

		// Re-sort every read block of this group (the current one
		// included: the ops now match the signals' relative order, but
		// the signals may not be adjacent yet).
		for _, other := range sortedReads {
			if other.group == rb.group {
				sortSignalsByOps(other, sigIdxs, newPlan, sigBlocks, reads)
			}
		}
	}
}

// sortSignalsByOps tries to rearrange the signals of one read block to match
// the group's operator order without changing the block-to-block order
// established by the hamming sort. The rearrangement is only permitted when
// the non-member signals spanned by the block form a clean trailing run;
// members interleaved with foreign blocks are left alone.
func sortSignalsByOps(rb *readBlock, sigIdxs map[*signal.Signal]int, newPlan planner.Plan, sigBlocks map[*signal.Signal][]int, reads map[*signal.Operator][]*signal.Signal) {
	ops := newPlan[rb.group]

	// Desired position per base; later operators overwrite earlier ones.
	sortVals := make(map[*signal.Signal]int)
	for i, op := range ops {
		sortVals[reads[op][rb.slot].Base()] = i
	}
	if len(sortVals) <= 1 {
		return
	}

	minIdx, maxIdx := -1, -1
	for s := range sortVals {
		idx := sigIdxs[s]
		if minIdx == -1 || idx < minIdx {
			minIdx = idx
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	// Current global order, inverted from the index map.
	ordered := make([]*signal.Signal, len(sigIdxs))
	for s, i := range sigIdxs {
		ordered[i] = s
	}

	// Walk the spanned range, checking that member signals never need to
	// cross a block boundary and that non-members only trail the members.
	var members, post []*signal.Signal
	var currSig []int
	haveSig := false
	lastBlock := false
	prevMax, currMax := -1, -1
	sortable := true

	for pos := minIdx; pos <= maxIdx; pos++ {
		s := ordered[pos]
		_, isMember := sortVals[s]

		if !haveSig || !sameSignature(sigBlocks[s], currSig) {
			if lastBlock {
				// Sortable members in a new block after trailing
				// non-members: the range cannot be flattened.
				sortable = false
				break
			}
			prevMax = currMax
			currMax = -1
			currSig = sigBlocks[s]
			haveSig = true
		}

		if isMember {
			if sortVals[s] < prevMax {
				// Desired position conflicts with an earlier
				// block's members.
				sortable = false
				break
			}
			if sortVals[s] > currMax {
				currMax = sortVals[s]
			}
			members = append(members, s)
		} else {
			lastBlock = true
			post = append(post, s)
		}
	}

	if !sortable {
		return
	}

	sort.SliceStable(members, func(i, j int) bool {
		return sortVals[members[i]] < sortVals[members[j]]
	})
	for i, s := range members {
		sigIdxs[s] = minIdx + i
	}
	offset := minIdx + len(members)
	for i, s := range post {
		sigIdxs[s] = offset + i
	}
}
