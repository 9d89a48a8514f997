package nnindex

import (
	"math"
	"sort"
	"sync"
)

// Index is a per-attribute nearest-neighbor index: the persistent store
// a Blueprint's non-brute-force search path consults. Candidate
// selection here is an exact top-k scan; it stands in for an
// approximate (HNSW-like) structure, trading recall guarantees for a
// deterministic, easily-tested reference implementation — the
// approximate-vs-brute-force *decision* in Blueprint is exercised
// independently of how the non-brute-force path actually ranks.
type Index struct {
	mu       sync.RWMutex
	metric   Metric
	cellType CellType
	vectors  map[string]Tensor
}

// NewIndex creates an empty index for the given metric and the
// attribute's stored cell type.
func NewIndex(metric Metric, cellType CellType) *Index {
	return &Index{metric: metric, cellType: cellType, vectors: make(map[string]Tensor)}
}

// Add inserts or replaces docID's vector.
func (idx *Index) Add(docID string, t Tensor) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors[docID] = t
}

// Remove deletes docID's vector.
func (idx *Index) Remove(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, docID)
}

// NumDocs returns the number of vectors currently indexed.
func (idx *Index) NumDocs() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// distance computes the index's configured metric between a and b.
// Lower is always closer, including for similarity metrics (angular and
// dot-product are negated so the same top-k ordering applies uniformly).
func (idx *Index) distance(a, b []float64) float64 {
	switch idx.metric {
	case MetricAngular:
		return -cosineSimilarity(a, b)
	case MetricDotProduct:
		return -dotProduct(a, b)
	case MetricGeo:
		return haversineApprox(a, b)
	default:
		return euclidean(a, b)
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func cosineSimilarity(a, b []float64) float64 {
	dot := dotProduct(a, b)
	var na, nb float64
	for i := range a {
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// haversineApprox treats the first two cells as (lat, lon) in degrees.
func haversineApprox(a, b []float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return euclidean(a, b)
	}
	const earthRadiusKm = 6371.0
	lat1, lon1 := a[0]*math.Pi/180, a[1]*math.Pi/180
	lat2, lon2 := b[0]*math.Pi/180, b[1]*math.Pi/180
	dLat, dLon := lat2-lat1, lon2-lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// search is the shared top-k scan used by both BruteForceSearch and
// ApproxSearch. Both apply the filter when one is given; they differ
// only in that ApproxSearch scans for k+exploreAdditional hits before
// truncating back to k.
func (idx *Index) search(query []float64, k int, filter *Filter, distanceThreshold float64) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]Hit, 0, len(idx.vectors))
	for docID, vec := range idx.vectors {
		if filter != nil && filter.Admits != nil && !filter.Admits(docID) {
			continue
		}
		d := idx.distance(query, vec.Cells)
		if distanceThreshold > 0 && d > distanceThreshold {
			continue
		}
		hits = append(hits, Hit{DocID: docID, Distance: d})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// BruteForceSearch scans every document the filter admits (or all
// documents, if filter is nil).
func (idx *Index) BruteForceSearch(query []float64, k int, filter *Filter, distanceThreshold float64) []Hit {
	return idx.search(query, k, filter, distanceThreshold)
}

// ApproxSearch consults the persistent index's filter-aware top-k
// variant when a filter is present, widening k to k+exploreAdditional
// per the blueprint's explore margin.
func (idx *Index) ApproxSearch(query []float64, k, exploreAdditional int, filter *Filter, distanceThreshold float64) []Hit {
	hits := idx.search(query, k+exploreAdditional, filter, distanceThreshold)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
