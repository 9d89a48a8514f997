package distributor

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMergeThrottle_ActiveNeverExceedsMaxMergesPerNode is property 7's
// first half: across many concurrent admission attempts, the number of
// simultaneously active merges never exceeds MaxMergesPerNode.
func TestMergeThrottle_ActiveNeverExceedsMaxMergesPerNode(t *testing.T) {
	throttle := NewMergeThrottle(MergeThrottleConfig{Policy: PolicyStatic, MaxMergesPerNode: 3, MaxQueueSize: 100})

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, _ := throttle.TryAdmit(false)
			if admitted {
				mu.Lock()
				if active := throttle.ActiveCount(); active > maxObserved {
					maxObserved = active
				}
				mu.Unlock()
				throttle.Release(true)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxObserved, 3)
}

// TestMergeThrottle_QueueRejectsBeyondMaxQueueSizeExceptChained is
// property 7's second half: queued (non-admitted) non-chained merges
// never exceed MaxQueueSize, while chained merges are never outright
// rejected.
func TestMergeThrottle_QueueRejectsBeyondMaxQueueSizeExceptChained(t *testing.T) {
	throttle := NewMergeThrottle(MergeThrottleConfig{Policy: PolicyStatic, MaxMergesPerNode: 1, MaxQueueSize: 2})

	// Saturate the single admission slot.
	admitted, _ := throttle.TryAdmit(false)
	assert.True(t, admitted)

	// Fill the queue.
	_, queued1 := throttle.TryAdmit(false)
	_, queued2 := throttle.TryAdmit(false)
	assert.True(t, queued1)
	assert.True(t, queued2)

	// The queue is now full; a further non-chained merge must be
	// rejected outright.
	admitted3, queued3 := throttle.TryAdmit(false)
	assert.False(t, admitted3)
	assert.False(t, queued3)

	// A chained merge, however, is never rejected - it is always at
	// least queued.
	_, chainedQueued := throttle.TryAdmit(true)
	assert.True(t, chainedQueued)
}

// TestMergeThrottle_ConcurrentMixedLoadRespectsActiveBound fuzzes the
// throttle with a mix of chained and non-chained admission attempts
// and release outcomes, checking the active-merge bound after every
// attempt. The queue bound is not checked here.
func TestMergeThrottle_ConcurrentMixedLoadRespectsActiveBound(t *testing.T) {
	const maxActive = 4
	const maxQueue = 6
	throttle := NewMergeThrottle(MergeThrottleConfig{Policy: PolicyStatic, MaxMergesPerNode: maxActive, MaxQueueSize: maxQueue})

	rng := rand.New(rand.NewSource(1))
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		chained := rng.Intn(5) == 0
		wg.Add(1)
		go func(chained bool) {
			defer wg.Done()
			admitted, queued := throttle.TryAdmit(chained)
			assert.LessOrEqual(t, throttle.ActiveCount(), maxActive)
			if admitted {
				throttle.Release(rng.Intn(2) == 0)
			} else if queued {
				throttle.Dequeue()
			}
		}(chained)
	}
	wg.Wait()
}

func TestMergeThrottle_UnknownPolicyFallsBackToStatic(t *testing.T) {
	throttle := NewMergeThrottle(MergeThrottleConfig{Policy: "bogus", MaxMergesPerNode: 2, MaxQueueSize: 5})
	assert.Equal(t, PolicyStatic, throttle.cfg.resolvePolicy())
}

func TestMergeThrottle_DynamicPolicyShrinksWindowOnFailure(t *testing.T) {
	throttle := NewMergeThrottle(MergeThrottleConfig{
		Policy: PolicyDynamic, MaxMergesPerNode: 10, MaxQueueSize: 10,
		WindowSizeDecrementFactor: 0.5, WindowSizeBackoff: 0.2,
	})
	admitted, _ := throttle.TryAdmit(false)
	assert.True(t, admitted)
	throttle.Release(false)
	assert.Less(t, throttle.window, 10)
}

func TestMergeThrottle_DynamicPolicyRecoversOnSuccess(t *testing.T) {
	throttle := NewMergeThrottle(MergeThrottleConfig{
		Policy: PolicyDynamic, MaxMergesPerNode: 10, MaxQueueSize: 10,
		WindowSizeDecrementFactor: 0.5, WindowSizeBackoff: 0.2,
	})
	throttle.window = 3
	admitted, _ := throttle.TryAdmit(false)
	assert.True(t, admitted)
	throttle.Release(true)
	assert.Equal(t, 4, throttle.window)
}
