package main

import (
	"context"
	"sync"

	"github.com/vespacore/servingcore/internal/distributor"
)

// bucketRegistry stands in for the inter-node replica transport the
// distributor would otherwise use to fan GC removals and three-phase
// updates out to sibling content nodes. A real multi-node deployment
// replaces this with an RPC client; that transport is outside this
// binary's scope (no auxiliary binary-compatible RPC endpoints), so a
// single-node daemon tracks its own bucket membership in memory and
// treats itself as the only replica.
type bucketRegistry struct {
	mu      sync.Mutex
	byNode  map[distributor.NodeID]map[string]map[string]any
	times   map[distributor.NodeID]map[string]int64
	buckets map[distributor.BucketID]map[string]struct{}
}

func newBucketRegistry() *bucketRegistry {
	return &bucketRegistry{
		byNode:  make(map[distributor.NodeID]map[string]map[string]any),
		times:   make(map[distributor.NodeID]map[string]int64),
		buckets: make(map[distributor.BucketID]map[string]struct{}),
	}
}

// Note records that docID belongs to bucket, feeding the GC sweep's
// DocumentIDs listing.
func (r *bucketRegistry) Note(bucket distributor.BucketID, docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.buckets[bucket]
	if !ok {
		set = make(map[string]struct{})
		r.buckets[bucket] = set
	}
	set[docID] = struct{}{}
}

// Buckets lists every bucket currently tracked, for use as the
// distributor's GC sweep target enumeration.
func (r *bucketRegistry) Buckets() []distributor.BucketID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]distributor.BucketID, 0, len(r.buckets))
	for b := range r.buckets {
		out = append(out, b)
	}
	return out
}

// DocumentIDs implements distributor.GCTarget.
func (r *bucketRegistry) DocumentIDs(ctx context.Context, bucket distributor.BucketID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.buckets[bucket]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveBatch implements distributor.GCTarget.
func (r *bucketRegistry) RemoveBatch(ctx context.Context, bucket distributor.BucketID, docIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.buckets[bucket]
	if set == nil {
		return 0, nil
	}
	removed := 0
	for _, id := range docIDs {
		if _, ok := set[id]; ok {
			delete(set, id)
			removed++
		}
	}
	return removed, nil
}

// FetchMetadata implements distributor.ReplicaClient.
func (r *bucketRegistry) FetchMetadata(ctx context.Context, node distributor.NodeID, docID string) (distributor.ReplicaMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := r.byNode[node][docID]
	ts := r.times[node][docID]
	return distributor.ReplicaMetadata{Replica: node, Timestamp: ts, Fields: fields}, nil
}

// Apply implements distributor.ReplicaClient.
func (r *bucketRegistry) Apply(ctx context.Context, node distributor.NodeID, docID string, fields map[string]any, timestamp int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byNode[node] == nil {
		r.byNode[node] = make(map[string]map[string]any)
		r.times[node] = make(map[string]int64)
	}
	r.byNode[node][docID] = fields
	r.times[node][docID] = timestamp
	return nil
}
