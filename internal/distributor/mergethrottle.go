package distributor

import "sync"

// MergePolicyKind selects a throttling policy. An unrecognized kind
// falls back to PolicyStatic.
type MergePolicyKind string

const (
	PolicyStatic  MergePolicyKind = "static"
	PolicyDynamic MergePolicyKind = "dynamic"
)

// MergeThrottleConfig configures both policies; the dynamic-only
// fields are ignored under PolicyStatic.
type MergeThrottleConfig struct {
	Policy           MergePolicyKind
	MaxMergesPerNode int
	MaxQueueSize     int

	// Dynamic-only: the merge window shrinks by this factor on
	// backoff and floors at a size derived from it.
	WindowSizeDecrementFactor float64
	WindowSizeBackoff         float64
}

// resolvePolicy returns the effective policy, defaulting unknown
// values to static.
func (c MergeThrottleConfig) resolvePolicy() MergePolicyKind {
	if c.Policy == PolicyDynamic {
		return PolicyDynamic
	}
	return PolicyStatic
}

// MergeThrottle admits merges up to MaxMergesPerNode concurrently and
// queues the rest up to MaxQueueSize, except chained merges (merges
// that continue a multi-node merge already admitted elsewhere in the
// chain) which are exempt from the queue limit unconditionally: a
// chain that was already let in must be allowed to finish each of its
// hops or it can deadlock against its own earlier phase.
type MergeThrottle struct {
	cfg MergeThrottleConfig

	mu       sync.Mutex
	active   int
	queue    int
	window   int // dynamic policy's current admission window
	inFlight bool
}

// NewMergeThrottle builds a throttle. A zero-value MaxMergesPerNode or
// MaxQueueSize means "no admitted concurrency" / "no queueing",
// respectively - callers are expected to pass real configured values.
func NewMergeThrottle(cfg MergeThrottleConfig) *MergeThrottle {
	t := &MergeThrottle{cfg: cfg}
	t.window = cfg.MaxMergesPerNode
	return t
}

// TryAdmit attempts to start a merge. It returns true if the merge
// may proceed now, or false if it was queued (and should call TryAdmit
// again once queue space frees, typically driven by a Release from
// another merge) or rejected outright because the queue is full and
// the merge is not chained.
func (t *MergeThrottle) TryAdmit(chained bool) (admitted bool, queued bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit := t.cfg.MaxMergesPerNode
	if t.cfg.resolvePolicy() == PolicyDynamic {
		limit = t.window
	}

	if t.active < limit {
		t.active++
		return true, false
	}
	if chained {
		// Chained merges bypass the queue limit entirely and are
		// admitted as soon as a slot frees, but in the meantime they
		// still count against the queue for visibility.
		t.queue++
		return false, true
	}
	if t.queue < t.cfg.MaxQueueSize {
		t.queue++
		return false, true
	}
	return false, false
}

// Release frees one admitted merge slot. ok reports whether the merge
// completed cleanly; under the dynamic policy a failed merge shrinks
// the admission window (backoff), while a clean run lets it recover
// back toward MaxMergesPerNode.
func (t *MergeThrottle) Release(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > 0 {
		t.active--
	}

	if t.cfg.resolvePolicy() != PolicyDynamic {
		return
	}
	if ok {
		if t.window < t.cfg.MaxMergesPerNode {
			t.window++
		}
		return
	}
	shrunk := int(float64(t.window) * t.cfg.WindowSizeDecrementFactor)
	floor := int(float64(t.cfg.MaxMergesPerNode) * t.cfg.WindowSizeBackoff)
	if floor < 1 {
		floor = 1
	}
	if shrunk < floor {
		shrunk = floor
	}
	t.window = shrunk
}

// Dequeue marks one previously-queued merge as no longer waiting
// (either admitted or abandoned), for callers that track queue
// depth explicitly rather than always retrying TryAdmit.
func (t *MergeThrottle) Dequeue() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queue > 0 {
		t.queue--
	}
}

// ActiveCount and QueueDepth expose current state for metrics and
// tests.
func (t *MergeThrottle) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *MergeThrottle) QueueDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue
}
