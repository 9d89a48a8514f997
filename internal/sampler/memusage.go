package sampler

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// ProcessMemProvider reports the current process's resident memory
// against a configured limit (e.g. a container's memory cgroup limit,
// passed in rather than read from cgroupfs to keep this portable
// across cgroup v1/v2).
type ProcessMemProvider struct {
	Limit uint64
}

// MemoryUsage implements MemStatProvider using runtime.MemStats as a
// process-local stand-in for RSS: Sys approximates the memory the Go
// runtime has obtained from the OS, which tracks actual resident usage
// closely enough for write-block-filter purposes without requiring a
// /proc read that wouldn't be portable off Linux.
func (p ProcessMemProvider) MemoryUsage() (used, limit uint64, err error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Sys, p.Limit, nil
}

// HostMemProvider reports total host memory usage via sysinfo(2),
// useful when the sampler should account for the whole machine rather
// than just this process (e.g. a single-tenant node).
type HostMemProvider struct{}

// MemoryUsage implements MemStatProvider.
func (HostMemProvider) MemoryUsage() (used, limit uint64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, err
	}
	limit = uint64(info.Totalram) * uint64(info.Unit)
	free := uint64(info.Freeram) * uint64(info.Unit)
	if free > limit {
		free = limit
	}
	used = limit - free
	return used, limit, nil
}
