package quantize

// ComputeRecall measures Recall@k across a batch of queries, grounded on
// the teacher's internal/quantization/utils.go ComputeRecall: the fraction
// of each query's true top-k ids that also appear in the reported top-k.
func ComputeRecall(groundTruth [][]uint64, results [][]uint64, k int) float32 {
	if len(groundTruth) != len(results) {
		return 0
	}

	var total float32
	var n int
	for i := range groundTruth {
		gt := groundTruth[i]
		res := results[i]
		if len(gt) == 0 {
			continue
		}
		if len(gt) > k {
			gt = gt[:k]
		}
		if len(res) > k {
			res = res[:k]
		}

		seen := make(map[uint64]struct{}, len(res))
		for _, id := range res {
			seen[id] = struct{}{}
		}
		var hits int
		for _, id := range gt {
			if _, ok := seen[id]; ok {
				hits++
			}
		}
		total += float32(hits) / float32(len(gt))
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float32(n)
}

// KendallTau computes the Kendall rank-correlation coefficient between two
// equal-length orderings of the same id set, a measure of the ranking drift
// introduced by quantization (spec.md §4.3's Contract / §8 property 7). No
// test in this module applies it to a Scalar8 round trip; its own unit
// tests cover fixed orderings.
func KendallTau(a, b []uint64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 1.0
	}
	rank := make(map[uint64]int, n)
	for i, id := range b {
		rank[id] = i
	}
	var concordant, discordant int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ri, rj := rank[a[i]], rank[a[j]]
			switch {
			case ri < rj:
				concordant++
			case ri > rj:
				discordant++
			}
		}
	}
	total := n * (n - 1) / 2
	if total == 0 {
		return 1.0
	}
	return float64(concordant-discordant) / float64(total)
}
