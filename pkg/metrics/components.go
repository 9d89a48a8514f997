package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConfigAgentMetrics tracks config subscription & generation discipline.
type ConfigAgentMetrics struct {
	Generation              prometheus.Gauge
	GenerationsAppliedTotal prometheus.Counter
	PollDurationSeconds     prometheus.Histogram
	PollErrorsTotal         *prometheus.CounterVec // error_type: transport|validation
	BackoffDelaySeconds     prometheus.Gauge
}

func NewConfigAgentMetrics(namespace string) *ConfigAgentMetrics {
	return &ConfigAgentMetrics{
		Generation: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "configagent", Name: "generation",
			Help: "Current applied configuration generation",
		}),
		GenerationsAppliedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "configagent", Name: "generations_applied_total",
			Help: "Total number of configuration generations successfully applied",
		}),
		PollDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "configagent", Name: "poll_duration_seconds",
			Help:    "Duration of a single config source poll",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		PollErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "configagent", Name: "poll_errors_total",
			Help: "Total number of failed config polls by error type",
		}, []string{"error_type"}),
		BackoffDelaySeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "configagent", Name: "backoff_delay_seconds",
			Help: "Current back-off delay before the next config poll",
		}),
	}
}

// GraphMetrics tracks component graph generation swaps.
type GraphMetrics struct {
	SwapsTotal              prometheus.Counter
	SwapFailuresTotal       prometheus.Counter
	BuildDurationSeconds    prometheus.Histogram
	DeconstructionsPending  prometheus.Gauge
	LeastGeneration         prometheus.Gauge
}

func NewGraphMetrics(namespace string) *GraphMetrics {
	return &GraphMetrics{
		SwapsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graph", Name: "swaps_total",
			Help: "Total number of successful component graph generation swaps",
		}),
		SwapFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graph", Name: "swap_failures_total",
			Help: "Total number of component graph builds that failed and were discarded",
		}),
		BuildDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "graph", Name: "build_duration_seconds",
			Help:    "Duration of a component graph build (pull+build+publish)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		DeconstructionsPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "deconstructions_pending",
			Help: "Number of component instances awaiting asynchronous deconstruction",
		}),
		LeastGeneration: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "least_generation",
			Help: "Smallest generation number that will be attempted again after a failure",
		}),
	}
}

// DocDBMetrics tracks feed/replay/flush activity.
type DocDBMetrics struct {
	FeedOpsTotal         *prometheus.CounterVec // op: put|update|remove|get, subdb: ready|not-ready|removed
	ReplayLagOps         prometheus.Gauge
	VisibilityDelaySeconds prometheus.Histogram
	FlushTargetsPending  prometheus.Gauge
	NumDocs              *prometheus.GaugeVec // subdb: ready|not-ready|removed
	ReconfigurationsTotal prometheus.Counter
}

func NewDocDBMetrics(namespace string) *DocDBMetrics {
	return &DocDBMetrics{
		FeedOpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "docdb", Name: "feed_ops_total",
			Help: "Total number of feed operations applied",
		}, []string{"op", "subdb"}),
		ReplayLagOps: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "docdb", Name: "replay_lag_ops",
			Help: "Number of transaction log records remaining before replay catches up to the tail",
		}),
		VisibilityDelaySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "docdb", Name: "visibility_delay_seconds",
			Help:    "Observed delay between feed acknowledgement and searchable visibility",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		FlushTargetsPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "docdb", Name: "flush_targets_pending",
			Help: "Number of flush targets currently reported by sub-DBs",
		}),
		NumDocs: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "docdb", Name: "num_docs",
			Help: "Number of documents per sub-DB",
		}, []string{"subdb"}),
		ReconfigurationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "docdb", Name: "reconfigurations_total",
			Help: "Total number of configuration reconfigurations applied",
		}),
	}
}

// AttrStoreMetrics tracks the array/attribute store.
type AttrStoreMetrics struct {
	BuffersActive     *prometheus.GaugeVec // type_id
	CompactionsTotal  prometheus.Counter
	DeadBytesRatio    *prometheus.GaugeVec // type_id
	FreeListDepth     *prometheus.GaugeVec // type_id
	HeldRefsPending   prometheus.Gauge
}

func NewAttrStoreMetrics(namespace string) *AttrStoreMetrics {
	return &AttrStoreMetrics{
		BuffersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "attrstore", Name: "buffers_active",
			Help: "Number of active buffers per type id",
		}, []string{"type_id"}),
		CompactionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attrstore", Name: "compactions_total",
			Help: "Total number of compactWorst passes executed",
		}),
		DeadBytesRatio: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "attrstore", Name: "dead_bytes_ratio",
			Help: "Fraction of dead (removed but unreclaimed) bytes per type id",
		}, []string{"type_id"}),
		FreeListDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "attrstore", Name: "free_list_depth",
			Help: "Number of free slots currently tracked per type id",
		}, []string{"type_id"}),
		HeldRefsPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "attrstore", Name: "held_refs_pending",
			Help: "Number of removed refs held pending generation reclamation",
		}),
	}
}

// DispatchMetrics tracks the interleaved invoker.
type DispatchMetrics struct {
	QueriesTotal          prometheus.Counter
	CoverageDocsRatio     prometheus.Histogram
	DegradedTotal         *prometheus.CounterVec // reason
	AdaptiveTimeoutsTotal prometheus.Counter
	MergeDurationSeconds  prometheus.Histogram
	ShardTimeoutsTotal    prometheus.Counter
}

func NewDispatchMetrics(namespace string) *DispatchMetrics {
	return &DispatchMetrics{
		QueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "queries_total",
			Help: "Total number of queries dispatched to shards",
		}),
		CoverageDocsRatio: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "coverage_docs_ratio",
			Help:    "Fraction of active documents actually covered by a response",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 1.0},
		}),
		DegradedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "degraded_total",
			Help: "Total number of responses tagged with a degradation reason",
		}, []string{"reason"}),
		AdaptiveTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "adaptive_timeouts_total",
			Help: "Total number of times the adaptive timeout shortened a remaining shard deadline",
		}),
		MergeDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "merge_duration_seconds",
			Help:    "Duration of top-k hit merging across shard replies",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		ShardTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "shard_timeouts_total",
			Help: "Total number of individual shard invocations that missed their deadline",
		}),
	}
}

// DistributorMetrics tracks bucket GC, merges, and three-phase updates.
type DistributorMetrics struct {
	MergesActive          prometheus.Gauge
	MergesQueued          prometheus.Gauge
	MergesRejectedTotal   prometheus.Counter
	GCBatchesTotal        prometheus.Counter
	GCDocsRemovedTotal    prometheus.Counter
	ThreePhaseUpdatesTotal *prometheus.CounterVec // outcome: converged|conflict
	ActivationInhibited   prometheus.Gauge
}

func NewDistributorMetrics(namespace string) *DistributorMetrics {
	return &DistributorMetrics{
		MergesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "distributor", Name: "merges_active",
			Help: "Number of merges currently in flight",
		}),
		MergesQueued: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "distributor", Name: "merges_queued",
			Help: "Number of merges waiting for an admission slot",
		}),
		MergesRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "distributor", Name: "merges_rejected_total",
			Help: "Total number of merges rejected because the queue was full",
		}),
		GCBatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "distributor", Name: "gc_batches_total",
			Help: "Total number of garbage-collection evaluation batches run",
		}),
		GCDocsRemovedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "distributor", Name: "gc_docs_removed_total",
			Help: "Total number of documents removed by garbage collection",
		}),
		ThreePhaseUpdatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "distributor", Name: "three_phase_updates_total",
			Help: "Total number of three-phase updates by outcome",
		}, []string{"outcome"}),
		ActivationInhibited: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "distributor", Name: "activation_inhibited",
			Help: "Number of groups currently held out of activation pending global-space convergence",
		}),
	}
}

// DatabaseMetrics tracks the Postgres connection pool behind the file
// config manager's snapshot index.
type DatabaseMetrics struct {
	ConnectionsActive             prometheus.Gauge
	ConnectionsIdle               prometheus.Gauge
	ConnectionsTotal              prometheus.Counter
	ConnectionWaitDurationSeconds prometheus.Histogram
	QueryDurationSeconds          *prometheus.HistogramVec
	QueriesTotal                  *prometheus.CounterVec
	ErrorsTotal                   *prometheus.CounterVec
}

func NewDatabaseMetrics(namespace string) *DatabaseMetrics {
	return &DatabaseMetrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dbpool", Name: "connections_active",
			Help: "Number of active database connections currently in use",
		}),
		ConnectionsIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dbpool", Name: "connections_idle",
			Help: "Number of idle database connections in the pool",
		}),
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dbpool", Name: "connections_total",
			Help: "Total number of database connections created",
		}),
		ConnectionWaitDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dbpool", Name: "connection_wait_duration_seconds",
			Help:    "Time spent waiting for a database connection from the pool",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		QueryDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dbpool", Name: "query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dbpool", Name: "queries_total",
			Help: "Total number of database queries executed",
		}, []string{"operation", "status"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dbpool", Name: "errors_total",
			Help: "Total number of database errors encountered",
		}, []string{"error_type"}),
	}
}

// CacheMetrics tracks the shared Redis cache used by the config agent's
// snapshot cache.
type CacheMetrics struct {
	HitsTotal      *prometheus.CounterVec
	MissesTotal    *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	EvictionsTotal prometheus.Counter
	SizeBytes      prometheus.Gauge
}

func NewCacheMetrics(namespace string) *CacheMetrics {
	return &CacheMetrics{
		HitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Total number of cache hits",
		}, []string{"cache_type"}),
		MissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Total number of cache misses",
		}, []string{"cache_type"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "errors_total",
			Help: "Total number of cache errors encountered",
		}, []string{"cache_type", "error_type"}),
		EvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Total number of cache evictions",
		}),
		SizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "size_bytes",
			Help: "Current size of cache in bytes",
		}),
	}
}

// SamplerMetrics tracks disk/memory sampling and the write-block filter.
type SamplerMetrics struct {
	DiskUtilization   prometheus.Gauge
	MemoryUtilization prometheus.Gauge
	TransientUsageBytes *prometheus.GaugeVec // provider
	WriteBlocked      prometheus.Gauge
	WriteBlockedTotal *prometheus.CounterVec // resource
}

func NewSamplerMetrics(namespace string) *SamplerMetrics {
	return &SamplerMetrics{
		DiskUtilization: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sampler", Name: "disk_utilization_ratio",
			Help: "Fraction of the disk budget currently in use",
		}),
		MemoryUtilization: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sampler", Name: "memory_utilization_ratio",
			Help: "Fraction of the memory budget currently in use",
		}),
		TransientUsageBytes: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sampler", Name: "transient_usage_bytes",
			Help: "Transient resource usage reported by a registered provider",
		}, []string{"provider"}),
		WriteBlocked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sampler", Name: "write_blocked",
			Help: "1 if feed writes are currently blocked by the write-block filter, else 0",
		}),
		WriteBlockedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sampler", Name: "write_blocked_total",
			Help: "Total number of times the write-block filter transitioned to blocked, by resource",
		}, []string{"resource"}),
	}
}
