package sigorder

import "github.com/vk/signalgrid/internal/signal"

// hammingSort chains the unique block-membership signatures into a sequence,
// at each step preferring signatures that continue the currently active
// block, tie-broken by minimum hamming distance (symmetric set difference)
// to the previous signature, then by matching on the largest-weighted shared
// blocks. Each signal's rank is its signature's position in the chain;
// signals in no block rank -1 and stay unordered relative to each other.
func hammingSort(allSignals []*signal.Signal, sigBlocks map[*signal.Signal][]int) map[*signal.Signal]int {
	// Unique signatures, deterministic by first signal encounter.
	var unique [][]int
	seen := make(map[string]struct{})
	for _, s := range allSignals {
		sig, ok := sigBlocks[s]
		if !ok {
			continue
		}
		key := intsKey(sig)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			unique = append(unique, sig)
		}
	}

	nUnique := len(unique)
	var chain [][]int

	// Signatures are sorted ascending, and block 0 carries the largest
	// weight, so the synthetic seed {0} steers the chain to start near
	// the heaviest block.
	curr := []int{0}
	active := -1
	started := false

	for {
		if started {
			chain = append(chain, curr)
			unique = removeSignature(unique, curr)
		}
		started = true

		if len(chain) == nUnique {
			break
		}

		if active == -1 && len(curr) > 0 {
			// The smallest index in the signature is its
			// largest-weighted block.
			active = curr[0]
		}

		next := filterContaining(unique, active)
		if len(next) == 0 {
			// No continuation of the active block remains; every
			// signature is up for grabs.
			next = unique
			active = -1
		}

		// Keep the candidates closest to the current signature.
		minDist := -1
		for _, b := range next {
			d := hammingDistance(curr, b)
			if minDist == -1 || d < minDist {
				minDist = d
			}
		}
		var closest [][]int
		for _, b := range next {
			if hammingDistance(curr, b) == minDist {
				closest = append(closest, b)
			}
		}
		next = closest

		// Among equally close candidates, prefer those sharing the
		// current signature's largest blocks.
		for _, i := range curr {
			if len(next) == 1 {
				break
			}
			matching := filterContaining(next, i)
			if len(matching) > 0 {
				next = matching
			}
		}

		// Still tied: take the lexicographically smallest signature,
		// which contains the largest-weighted blocks.
		best := next[0]
		for _, b := range next[1:] {
			if lessInts(b, best) {
				best = b
			}
		}
		curr = best
	}

	ranks := make(map[*signal.Signal]int, len(allSignals))
	position := make(map[string]int, len(chain))
	for i, sig := range chain {
		position[intsKey(sig)] = i
	}
	for _, s := range allSignals {
		if sig, ok := sigBlocks[s]; ok {
			ranks[s] = position[intsKey(sig)]
		} else {
			ranks[s] = -1
		}
	}
	return ranks
}

// hammingDistance returns the size of the symmetric difference between two
// sorted int slices.
func hammingDistance(a, b []int) int {
	d := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case a[i] < b[j]:
			d++
			i++
		default:
			d++
			j++
		}
	}
	return d + (len(a) - i) + (len(b) - j)
}

func filterContaining(sigs [][]int, block int) [][]int {
	if block == -1 {
		return nil
	}
	var out [][]int
	for _, sig := range sigs {
		if containsInt(sig, block) {
			out = append(out, sig)
		}
	}
	return out
}

func containsInt(sorted []int, v int) bool {
	for _, x := range sorted {
		if x == v {
			return true
		}
		if x > v {
			return false
		}
	}
	return false
}

func removeSignature(sigs [][]int, target []int) [][]int {
	key := intsKey(target)
	for i, sig := range sigs {
		if intsKey(sig) == key {
			return append(sigs[:i], sigs[i+1:]...)
		}
	}
	return sigs
}

func lessInts(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
