package nnindex

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// BlueprintConfig parameterizes one NearestNeighborBlueprint
// construction.
type BlueprintConfig struct {
	Metric             Metric
	AttributeCellType  CellType
	TargetK            int
	Approximate        bool
	ExploreAdditional  int
	DistanceThreshold  float64
	BruteForceLimit    float64
}

// Blueprint is the leaf search iterator factory for one nearest-
// neighbor query against one attribute: it decides brute-force vs
// approximate once, converts the query tensor's cell type once, and
// exposes Search to run the decided strategy.
type Blueprint struct {
	cfg         BlueprintConfig
	query       Tensor
	approximate bool
	filter      *Filter
	index       *Index
}

// NewBlueprint resolves the brute-force-vs-approximate decision and
// converts query to the attribute's cell type, both exactly once: a
// present filter whose active fraction is below BruteForceLimit always
// forces brute force regardless of what the caller requested.
func NewBlueprint(cfg BlueprintConfig, query Tensor, filter *Filter, index *Index) *Blueprint {
	converted := convertCellType(query, cfg.AttributeCellType)

	approximate := cfg.Approximate
	if filter != nil && filter.activeFraction() < cfg.BruteForceLimit {
		approximate = false
	}

	return &Blueprint{cfg: cfg, query: converted, approximate: approximate, filter: filter, index: index}
}

// Approximate reports whether this blueprint resolved to the
// approximate (index-backed) search path.
func (b *Blueprint) Approximate() bool { return b.approximate }

// Search runs the resolved strategy and returns up to TargetK hits.
func (b *Blueprint) Search() []Hit {
	if !b.approximate {
		return b.index.BruteForceSearch(b.query.Cells, b.cfg.TargetK, b.filter, b.cfg.DistanceThreshold)
	}
	return b.index.ApproxSearch(b.query.Cells, b.cfg.TargetK, b.cfg.ExploreAdditional, b.filter, b.cfg.DistanceThreshold)
}

// TensorCache bounds the set of recently-queried tensors kept decoded
// in memory, so repeated nearest-neighbor queries against the same
// vector (a common client retry or pagination pattern) skip
// re-converting cell types.
type TensorCache struct {
	cache *lru.Cache[string, Tensor]
}

// NewTensorCache creates a TensorCache holding up to size entries.
func NewTensorCache(size int) (*TensorCache, error) {
	c, err := lru.New[string, Tensor](size)
	if err != nil {
		return nil, err
	}
	return &TensorCache{cache: c}, nil
}

// GetOrConvert returns the cached conversion of raw to target for key,
// converting and caching it if absent.
func (c *TensorCache) GetOrConvert(key string, raw Tensor, target CellType) Tensor {
	if cached, ok := c.cache.Get(key); ok && cached.CellType == target {
		return cached
	}
	converted := convertCellType(raw, target)
	c.cache.Add(key, converted)
	return converted
}

// Len returns the number of entries currently cached.
func (c *TensorCache) Len() int { return c.cache.Len() }
