package distributor

import (
	"context"
	"fmt"
)

// FieldUpdate describes a single field's read-modify-write update
// function, applied to whatever value a replica currently holds for
// that field.
type FieldUpdate struct {
	Field string
	Apply func(current any) any
}

// ReplicaMetadata is the timestamp/value pair a replica reports during
// the metadata-fetch phase of a three-phase update.
type ReplicaMetadata struct {
	Replica   NodeID
	Timestamp int64
	Fields    map[string]any
}

// ReplicaClient is the per-replica RPC surface the coordinator needs.
type ReplicaClient interface {
	FetchMetadata(ctx context.Context, node NodeID, docID string) (ReplicaMetadata, error)
	Apply(ctx context.Context, node NodeID, docID string, fields map[string]any, timestamp int64) error
}

// ThreePhaseResult reports what the coordinator did.
type ThreePhaseResult struct {
	AppliedTo     []NodeID
	WinningSource NodeID
	Timestamp     int64
}

// ThreePhaseCoordinator runs the metadata-fetch / conflict-resolution /
// apply sequence that keeps replicas from silently diverging when two
// clients race an update against different replicas: without it, a
// single-phase update applied independently per replica can let a
// stale read-modify-write on one replica clobber a newer write that
// landed only on another, producing a lost update. With three phases,
// every replica's update is computed from the single newest observed
// state before anything is written.
type ThreePhaseCoordinator struct {
	client ReplicaClient
	// Enabled selects three-phase mode. When false, each replica is
	// updated independently from its own local state, which is faster
	// but reintroduces the lost-update race.
	Enabled bool
}

// NewThreePhaseCoordinator builds a coordinator. enabled selects
// between the three-phase (true) and single-phase (false) code paths.
func NewThreePhaseCoordinator(client ReplicaClient, enabled bool) *ThreePhaseCoordinator {
	return &ThreePhaseCoordinator{client: client, Enabled: enabled}
}

// Update applies updates to docID across replicas, using three-phase
// coordination when c.Enabled, or independent single-phase updates
// otherwise.
func (c *ThreePhaseCoordinator) Update(ctx context.Context, docID string, replicas []NodeID, updates []FieldUpdate, nowFn func() int64) (ThreePhaseResult, error) {
	if c.Enabled {
		return c.updateThreePhase(ctx, docID, replicas, updates, nowFn)
	}
	return c.updateSinglePhase(ctx, docID, replicas, updates, nowFn)
}

func (c *ThreePhaseCoordinator) updateThreePhase(ctx context.Context, docID string, replicas []NodeID, updates []FieldUpdate, nowFn func() int64) (ThreePhaseResult, error) {
	if len(replicas) == 0 {
		return ThreePhaseResult{}, fmt.Errorf("distributor: no replicas for document %q", docID)
	}

	// Phase 1: fetch metadata (current field values + timestamp) from
	// every replica.
	metas := make([]ReplicaMetadata, 0, len(replicas))
	for _, node := range replicas {
		meta, err := c.client.FetchMetadata(ctx, node, docID)
		if err != nil {
			return ThreePhaseResult{}, fmt.Errorf("distributor: fetch metadata from %s: %w", node, err)
		}
		metas = append(metas, meta)
	}

	// Phase 2: resolve conflicts by picking the single newest replica
	// as the basis, then applying every update function to its field
	// values exactly once.
	newest := metas[0]
	for _, m := range metas[1:] {
		if m.Timestamp > newest.Timestamp {
			newest = m
		}
	}
	merged := make(map[string]any, len(newest.Fields))
	for k, v := range newest.Fields {
		merged[k] = v
	}
	for _, u := range updates {
		merged[u.Field] = u.Apply(merged[u.Field])
	}
	newTimestamp := nowFn()
	if newTimestamp <= newest.Timestamp {
		newTimestamp = newest.Timestamp + 1
	}

	// Phase 3: apply the single resolved field set to every replica.
	applied := make([]NodeID, 0, len(replicas))
	for _, node := range replicas {
		if err := c.client.Apply(ctx, node, docID, merged, newTimestamp); err != nil {
			return ThreePhaseResult{AppliedTo: applied}, fmt.Errorf("distributor: apply to %s: %w", node, err)
		}
		applied = append(applied, node)
	}

	return ThreePhaseResult{AppliedTo: applied, WinningSource: newest.Replica, Timestamp: newTimestamp}, nil
}

// updateSinglePhase applies updates to each replica independently,
// computed from that replica's own metadata - the mode that can lose
// an update when replicas have diverged.
func (c *ThreePhaseCoordinator) updateSinglePhase(ctx context.Context, docID string, replicas []NodeID, updates []FieldUpdate, nowFn func() int64) (ThreePhaseResult, error) {
	applied := make([]NodeID, 0, len(replicas))
	var lastTimestamp int64
	for _, node := range replicas {
		meta, err := c.client.FetchMetadata(ctx, node, docID)
		if err != nil {
			return ThreePhaseResult{AppliedTo: applied}, fmt.Errorf("distributor: fetch metadata from %s: %w", node, err)
		}
		fields := make(map[string]any, len(meta.Fields))
		for k, v := range meta.Fields {
			fields[k] = v
		}
		for _, u := range updates {
			fields[u.Field] = u.Apply(fields[u.Field])
		}
		ts := nowFn()
		if ts <= meta.Timestamp {
			ts = meta.Timestamp + 1
		}
		if err := c.client.Apply(ctx, node, docID, fields, ts); err != nil {
			return ThreePhaseResult{AppliedTo: applied}, fmt.Errorf("distributor: apply to %s: %w", node, err)
		}
		applied = append(applied, node)
		lastTimestamp = ts
	}
	return ThreePhaseResult{AppliedTo: applied, Timestamp: lastTimestamp}, nil
}
