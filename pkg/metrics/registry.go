// Package metrics provides centralized Prometheus metrics management for
// the serving-core daemon.
//
// This package implements a taxonomy of metrics grouped by the
// SPEC_FULL.md component that emits them:
//   - ConfigAgent: subscription generation, poll outcomes, back-off delay
//   - Graph: component graph build/publish/deconstruct
//   - DocDB: feed throughput, flush targets, visibility delay
//   - AttrStore: buffer counts, compaction, free-list depth
//   - Dispatch: coverage, adaptive timeout, top-k merge
//   - Distributor: bucket GC, merge throttling, three-phase updates
//   - Sampler: disk/memory utilization, write-block state
//
// All metrics follow the naming convention:
// <namespace>_<subsystem>_<metric_name>, where the namespace defaults to
// servingcore and the subsystem is the owning component (e.g.
// servingcore_configagent_generations_applied_total).
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.ConfigAgent().GenerationsAppliedTotal.Inc()
//	registry.Dispatch().CoverageDocsRatio.Observe(0.97)
package metrics

import (
	"sync"
)

// MetricCategory represents the component that owns a group of metrics.
type MetricCategory string

const (
	CategoryConfigAgent  MetricCategory = "configagent"
	CategoryGraph        MetricCategory = "graph"
	CategoryDocDB        MetricCategory = "docdb"
	CategoryAttrStore    MetricCategory = "attrstore"
	CategoryDispatch     MetricCategory = "dispatch"
	CategoryDistributor  MetricCategory = "distributor"
	CategorySampler      MetricCategory = "sampler"
)

// MetricsRegistry is the central registry for all Prometheus metrics,
// organized by owning component. Thread-safe; use DefaultRegistry() for
// the process-wide singleton.
type MetricsRegistry struct {
	namespace string

	configAgent *ConfigAgentMetrics
	graph       *GraphMetrics
	docdb       *DocDBMetrics
	attrStore   *AttrStoreMetrics
	dispatch    *DispatchMetrics
	distributor *DistributorMetrics
	sampler     *SamplerMetrics
	dbPool      *DatabaseMetrics
	cache       *CacheMetrics

	configAgentOnce sync.Once
	graphOnce       sync.Once
	docdbOnce       sync.Once
	attrStoreOnce   sync.Once
	dispatchOnce    sync.Once
	distributorOnce sync.Once
	samplerOnce     sync.Once
	dbPoolOnce      sync.Once
	cacheOnce       sync.Once
}

var (
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry.
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("servingcore")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a new MetricsRegistry with the given
// namespace. Most callers should use DefaultRegistry(); constructing a
// second registry with the same namespace in the same process will panic
// on duplicate Prometheus registration, so tests use distinct namespaces.
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "servingcore"
	}
	return &MetricsRegistry{namespace: namespace}
}

// ConfigAgent returns the config-subscription metrics, lazy-initialized.
func (r *MetricsRegistry) ConfigAgent() *ConfigAgentMetrics {
	r.configAgentOnce.Do(func() {
		r.configAgent = NewConfigAgentMetrics(r.namespace)
	})
	return r.configAgent
}

// Graph returns the component-graph metrics, lazy-initialized.
func (r *MetricsRegistry) Graph() *GraphMetrics {
	r.graphOnce.Do(func() {
		r.graph = NewGraphMetrics(r.namespace)
	})
	return r.graph
}

// DocDB returns the document-DB metrics, lazy-initialized.
func (r *MetricsRegistry) DocDB() *DocDBMetrics {
	r.docdbOnce.Do(func() {
		r.docdb = NewDocDBMetrics(r.namespace)
	})
	return r.docdb
}

// AttrStore returns the attribute-store metrics, lazy-initialized.
func (r *MetricsRegistry) AttrStore() *AttrStoreMetrics {
	r.attrStoreOnce.Do(func() {
		r.attrStore = NewAttrStoreMetrics(r.namespace)
	})
	return r.attrStore
}

// Dispatch returns the dispatcher/interleaved-invoker metrics, lazy-initialized.
func (r *MetricsRegistry) Dispatch() *DispatchMetrics {
	r.dispatchOnce.Do(func() {
		r.dispatch = NewDispatchMetrics(r.namespace)
	})
	return r.dispatch
}

// Distributor returns the bucket-distributor metrics, lazy-initialized.
func (r *MetricsRegistry) Distributor() *DistributorMetrics {
	r.distributorOnce.Do(func() {
		r.distributor = NewDistributorMetrics(r.namespace)
	})
	return r.distributor
}

// Sampler returns the disk/memory sampler metrics, lazy-initialized.
func (r *MetricsRegistry) Sampler() *SamplerMetrics {
	r.samplerOnce.Do(func() {
		r.sampler = NewSamplerMetrics(r.namespace)
	})
	return r.sampler
}

// DatabasePool returns the database connection-pool metrics, used by the
// file config manager's Postgres-backed snapshot index. Lazy-initialized.
func (r *MetricsRegistry) DatabasePool() *DatabaseMetrics {
	r.dbPoolOnce.Do(func() {
		r.dbPool = NewDatabaseMetrics(r.namespace)
	})
	return r.dbPool
}

// Cache returns the shared Redis cache metrics, used by the config
// agent's snapshot cache and any other Redis-backed lookup. Lazy-initialized.
func (r *MetricsRegistry) Cache() *CacheMetrics {
	r.cacheOnce.Do(func() {
		r.cache = NewCacheMetrics(r.namespace)
	})
	return r.cache
}

// Namespace returns the configured Prometheus namespace for this registry.
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}
