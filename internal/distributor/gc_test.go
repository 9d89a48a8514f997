package distributor

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGCTarget struct {
	mu      sync.Mutex
	docs    map[BucketID][]string
	removed map[BucketID][]string
}

func newFakeGCTarget() *fakeGCTarget {
	return &fakeGCTarget{docs: make(map[BucketID][]string), removed: make(map[BucketID][]string)}
}

func (f *fakeGCTarget) DocumentIDs(ctx context.Context, bucket BucketID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.docs[bucket]...), nil
}

func (f *fakeGCTarget) RemoveBatch(ctx context.Context, bucket BucketID, docIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining := f.docs[bucket][:0]
	removeSet := map[string]bool{}
	for _, id := range docIDs {
		removeSet[id] = true
	}
	for _, id := range f.docs[bucket] {
		if removeSet[id] {
			continue
		}
		remaining = append(remaining, id)
	}
	n := len(f.docs[bucket]) - len(remaining)
	f.docs[bucket] = remaining
	f.removed[bucket] = append(f.removed[bucket], docIDs...)
	return n, nil
}

func TestCollector_SweepRemovesNonMatchingDocuments(t *testing.T) {
	target := newFakeGCTarget()
	bucket := ComputeBucket("b1", 8)
	target.docs[bucket] = []string{"keep-1", "drop-1", "keep-2", "drop-2"}

	selection := func(docID string) bool {
		return len(docID) >= 5 && docID[:4] == "keep"
	}

	c := NewCollector(GCConfig{Interval: time.Millisecond, BatchSize: 1}, target, selection, func() []BucketID { return []BucketID{bucket} }, nil)
	removed, err := c.sweepBucket(context.Background(), bucket)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining := append([]string(nil), target.docs[bucket]...)
	sort.Strings(remaining)
	assert.Equal(t, []string{"keep-1", "keep-2"}, remaining)
}

func TestCollector_ZeroIntervalDisablesSweeping(t *testing.T) {
	target := newFakeGCTarget()
	bucket := ComputeBucket("b1", 8)
	target.docs[bucket] = []string{"drop-1"}

	c := NewCollector(GCConfig{Interval: 0}, target, func(string) bool { return false }, func() []BucketID { return []BucketID{bucket} }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	assert.Equal(t, []string{"drop-1"}, target.docs[bucket])
}

func TestCollector_RunSweepsOnInterval(t *testing.T) {
	target := newFakeGCTarget()
	bucket := ComputeBucket("b1", 8)
	target.docs[bucket] = []string{"drop-1", "drop-2"}

	c := NewCollector(GCConfig{Interval: 5 * time.Millisecond, BatchSize: 10}, target, func(string) bool { return false }, func() []BucketID { return []BucketID{bucket} }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	assert.Empty(t, target.docs[bucket])
}
