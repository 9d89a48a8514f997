package dispatch

import "math"

// TopKSelection parameterizes the top-k probability heuristic: whether
// per-shard result counts may be reduced below the query's requested
// hit count.
type TopKSelection struct {
	Hits                  int
	TopKProbability       float64
	NumGroups             int
	SkewRatio             float64
	SkewThreshold         float64
	ContentSize           int
	SmallContentThreshold int
}

// EffectiveK returns the per-shard k' a dispatcher should request.
// Disabled (k' = Hits) whenever active document counts diverge beyond
// SkewThreshold or the total content is below SmallContentThreshold;
// otherwise k' is reduced using a safety-margin factor derived from
// TopKProbability, so that P(top-k of the union ⊆ union of top-k'-per-shard)
// is, in expectation, at least TopKProbability for roughly-even shards.
func EffectiveK(sel TopKSelection) int {
	if sel.NumGroups <= 1 || sel.Hits <= 0 {
		return sel.Hits
	}
	if sel.SkewRatio > sel.SkewThreshold {
		return sel.Hits
	}
	if sel.ContentSize < sel.SmallContentThreshold {
		return sel.Hits
	}

	base := float64(sel.Hits) / float64(sel.NumGroups)
	margin := safetyMargin(sel.TopKProbability)
	kPrime := int(math.Ceil(base * margin))
	if kPrime < 1 {
		kPrime = 1
	}
	if kPrime > sel.Hits {
		kPrime = sel.Hits
	}
	return kPrime
}

// safetyMargin widens the per-shard allocation as the caller demands
// higher confidence that the true top-k is fully covered.
func safetyMargin(topKProbability float64) float64 {
	switch {
	case topKProbability >= 0.99:
		return 2.5
	case topKProbability >= 0.95:
		return 2.0
	case topKProbability >= 0.9:
		return 1.5
	default:
		return 1.2
	}
}
