// Package sampler periodically measures disk and memory usage,
// aggregates transient usage reported by registered providers, and
// exposes a write-block filter that rejects feed operations once any
// resource exceeds its configured utilization ratio.
package sampler

import "fmt"

// Resource names a sampled quantity.
type Resource string

const (
	ResourceDisk   Resource = "disk"
	ResourceMemory Resource = "memory"
)

// Usage is one resource's current utilization, expressed as a ratio
// of used to limit (0 means unused, 1 means at limit).
type Usage struct {
	Resource Resource
	Used     uint64
	Limit    uint64
}

// Ratio returns Used/Limit, or 0 if Limit is 0 (an unconfigured
// limit never trips the write-block filter).
func (u Usage) Ratio() float64 {
	if u.Limit == 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Limit)
}

// BlockReason describes why the write-block filter is currently
// rejecting feed operations.
type BlockReason struct {
	Resource Resource
	Ratio    float64
	Limit    float64
}

func (r BlockReason) String() string {
	return fmt.Sprintf("%s utilization %.2f exceeds limit %.2f", r.Resource, r.Ratio, r.Limit)
}

// DiskStatProvider reports the data path's disk usage. Implementations
// may read filesystem statistics directly, or, on a shared filesystem
// where statfs isn't meaningful per-tenant, recursively sum regular
// file sizes under the data path instead.
type DiskStatProvider interface {
	DiskUsage() (used, limit uint64, err error)
}

// MemStatProvider reports current process/host memory usage.
type MemStatProvider interface {
	MemoryUsage() (used, limit uint64, err error)
}

// TransientProvider is a registered source of additional, short-lived
// resource usage not captured by the disk/memory stat providers
// directly - e.g. the extra memory an attribute load temporarily
// holds before it's committed.
type TransientProvider interface {
	Name() string
	TransientUsageBytes() uint64
}
