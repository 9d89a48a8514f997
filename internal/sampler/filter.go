package sampler

import "sync"

// FilterConfig sets the per-resource utilization ratio above which
// the write-block filter rejects feed operations.
type FilterConfig struct {
	DiskThreshold   float64
	MemoryThreshold float64
}

// DefaultFilterConfig matches the documented defaults: block writes
// once disk usage exceeds 75% or memory usage exceeds 80%.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{DiskThreshold: 0.75, MemoryThreshold: 0.8}
}

func (c FilterConfig) threshold(resource Resource) float64 {
	switch resource {
	case ResourceDisk:
		return c.DiskThreshold
	case ResourceMemory:
		return c.MemoryThreshold
	default:
		return 1.0
	}
}

// Subscriber is notified whenever the write-block filter's blocked
// state changes.
type Subscriber func(blocked bool, reasons []BlockReason)

// WriteBlockFilter holds the most recent per-resource utilization and
// decides whether feed writes should be rejected.
type WriteBlockFilter struct {
	cfg FilterConfig

	mu      sync.Mutex
	latest  map[Resource]float64
	blocked bool
	subs    []Subscriber
}

// NewWriteBlockFilter builds a filter from cfg.
func NewWriteBlockFilter(cfg FilterConfig) *WriteBlockFilter {
	return &WriteBlockFilter{cfg: cfg, latest: make(map[Resource]float64)}
}

// Subscribe registers fn to be called on every blocked-state
// transition from here on.
func (f *WriteBlockFilter) Subscribe(fn Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

// Update records a fresh utilization ratio for resource and
// re-evaluates the blocked state, notifying subscribers if it
// changed.
func (f *WriteBlockFilter) Update(resource Resource, ratio float64) {
	f.mu.Lock()
	f.latest[resource] = ratio
	reasons := f.reasonsLocked()
	wasBlocked := f.blocked
	f.blocked = len(reasons) > 0
	changed := f.blocked != wasBlocked
	blocked := f.blocked
	subs := append([]Subscriber(nil), f.subs...)
	f.mu.Unlock()

	if changed {
		for _, sub := range subs {
			sub(blocked, reasons)
		}
	}
}

func (f *WriteBlockFilter) reasonsLocked() []BlockReason {
	var reasons []BlockReason
	for resource, ratio := range f.latest {
		threshold := f.cfg.threshold(resource)
		if ratio > threshold {
			reasons = append(reasons, BlockReason{Resource: resource, Ratio: ratio, Limit: threshold})
		}
	}
	return reasons
}

// Check reports whether writes are currently blocked, and if so, the
// descriptive reasons why.
func (f *WriteBlockFilter) Check() (blocked bool, reasons []BlockReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked, f.reasonsLocked()
}

// Allow rejects op-level feed writes with a descriptive error when
// the filter is currently blocked. It is the narrow entry point a
// feed handler calls before accepting a write.
func (f *WriteBlockFilter) Allow() error {
	blocked, reasons := f.Check()
	if !blocked {
		return nil
	}
	return &BlockedError{Reasons: reasons}
}

// BlockedError is returned by Allow when one or more resources exceed
// their configured threshold.
type BlockedError struct {
	Reasons []BlockReason
}

func (e *BlockedError) Error() string {
	if len(e.Reasons) == 0 {
		return "sampler: writes blocked"
	}
	msg := "sampler: writes blocked: "
	for i, r := range e.Reasons {
		if i > 0 {
			msg += "; "
		}
		msg += r.String()
	}
	return msg
}
