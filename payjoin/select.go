package payjoin

import "sort"

// maxBruteForceUTXOs bounds the exact subset-sum search in
// utxoSelectBest/utxoSelectInRange. Wallets feeding a payjoin rarely
// hold more than a handful of UTXOs of a given asset; beyond this
// count the exhaustive search is skipped: utxoSelectBest falls back to
// utxoSelectBasic and utxoSelectInRange finds no selection.
const maxBruteForceUTXOs = 20

// utxoSelectBasic accumulates utxos in the order given until their sum
// reaches target, returning the prefix it stopped at. Returns
// (nil, false) if the full list still falls short.
func utxoSelectBasic(target uint64, utxos []uint64) ([]uint64, bool) {
	if target == 0 {
		return []uint64{}, true
	}
	var sum uint64
	for i, v := range utxos {
		sum += v
		if sum >= target {
			out := make([]uint64, i+1)
			copy(out, utxos[:i+1])
			return out, true
		}
	}
	return nil, false
}

// utxoSelectFixed takes exactly the first count utxos and accepts the
// selection only if their sum meets target. count == 0 never matches.
func utxoSelectFixed(target uint64, count int, utxos []uint64) ([]uint64, bool) {
	if count == 0 || count > len(utxos) {
		return nil, false
	}
	var sum uint64
	for _, v := range utxos[:count] {
		sum += v
	}
	if sum < target {
		return nil, false
	}
	out := make([]uint64, count)
	copy(out, utxos[:count])
	return out, true
}

// utxoSelectBest looks for an exact-sum subset of utxos, preferring
// the smallest number of coins (ties broken by the order utxos are
// given in). Falls back to utxoSelectBasic when no exact subset
// exists, or when there are too many utxos to search exhaustively.
func utxoSelectBest(target uint64, utxos []uint64) ([]uint64, bool) {
	if target == 0 {
		return []uint64{}, true
	}
	if len(utxos) <= maxBruteForceUTXOs {
		if subset, ok := smallestExactSubset(target, target, 0, utxos); ok {
			return subset, true
		}
	}
	return utxoSelectBasic(target, utxos)
}

// utxoSelectInRange searches for a subset whose sum lies in
// [target, target+delta], preferring the fewest coins and, among
// subsets of the same size, the largest coins first (the result is in
// descending order). If count is nonzero the subset must contain exactly
// that many coins.
func utxoSelectInRange(target, delta uint64, count int, utxos []uint64) ([]uint64, bool) {
	if len(utxos) > maxBruteForceUTXOs {
		return nil, false
	}
	sorted := make([]uint64, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return smallestExactSubset(target, target+delta, count, sorted)
}

// smallestExactSubset searches subsets of utxos by increasing
// cardinality (or exactly fixedCount, if nonzero) for the first whose
// sum falls in [low, high], scanning combinations of each size in the
// order utxos are given.
func smallestExactSubset(low, high uint64, fixedCount int, utxos []uint64) ([]uint64, bool) {
	n := len(utxos)
	sizes := make([]int, 0, n)
	if fixedCount > 0 {
		if fixedCount > n {
			return nil, false
		}
		sizes = append(sizes, fixedCount)
	} else {
		for size := 1; size <= n; size++ {
			sizes = append(sizes, size)
		}
	}

	for _, size := range sizes {
		combo := make([]int, size)
		for i := range combo {
			combo[i] = i
		}
		for {
			var sum uint64
			for _, idx := range combo {
				sum += utxos[idx]
			}
			if sum >= low && sum <= high {
				out := make([]uint64, size)
				for i, idx := range combo {
					out[i] = utxos[idx]
				}
				return out, true
			}
			if !nextCombination(combo, n) {
				break
			}
		}
	}
	return nil, false
}

// nextCombination advances combo (a strictly increasing slice of
// indices into a slice of length n) to the next combination in
// lexicographic order. Returns false once combo was the last one.
func nextCombination(combo []int, n int) bool {
	size := len(combo)
	i := size - 1
	for i >= 0 && combo[i] == n-size+i {
		i--
	}
	if i < 0 {
		return false
	}
	combo[i]++
	for j := i + 1; j < size; j++ {
		combo[j] = combo[j-1] + 1
	}
	return true
}
