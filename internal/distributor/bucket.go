// Package distributor implements bucket distribution, garbage
// collection, three-phase updates, and merge throttling for a content
// layer.
package distributor

import "hash/fnv"

// BucketID identifies a bucket: a document id's hash truncated to
// NumBits bits.
type BucketID struct {
	Hash    uint64
	NumBits uint8
}

// ComputeBucket maps docID onto a bucket using the configured split
// width. A wider numBits yields finer-grained, more numerous buckets.
func ComputeBucket(docID string, numBits uint8) BucketID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(docID))
	sum := h.Sum64()
	if numBits < 64 {
		sum &= (uint64(1) << numBits) - 1
	}
	return BucketID{Hash: sum, NumBits: numBits}
}

// NodeID names a content node that may hold a bucket replica.
type NodeID string

// ReplicaSet selects the nodes that hold replicas of bucket, by
// consistent placement over the candidate node list: each candidate gets
// a per-bucket score and the replicaCount lowest scores win, returned in
// ascending score order. When replicaCount covers every candidate, the
// candidates are returned as given. This
// keeps a bucket's replica assignment stable as long as the candidate
// set itself doesn't change.
func ReplicaSet(bucket BucketID, candidates []NodeID, replicaCount int) []NodeID {
	if replicaCount >= len(candidates) {
		out := append([]NodeID(nil), candidates...)
		return out
	}
	type scored struct {
		node  NodeID
		score uint64
	}
	scoredNodes := make([]scored, len(candidates))
	for i, n := range candidates {
		h := fnv.New64a()
		_, _ = h.Write([]byte(n))
		var buf [8]byte
		for i := range buf {
			buf[i] = byte(bucket.Hash >> (8 * i))
		}
		_, _ = h.Write(buf[:])
		scoredNodes[i] = scored{node: n, score: h.Sum64()}
	}
	// Simple selection sort over a small candidate set is sufficient;
	// replicaCount is always small relative to the cluster.
	for i := 0; i < replicaCount; i++ {
		best := i
		for j := i + 1; j < len(scoredNodes); j++ {
			if scoredNodes[j].score < scoredNodes[best].score {
				best = j
			}
		}
		scoredNodes[i], scoredNodes[best] = scoredNodes[best], scoredNodes[i]
	}
	out := make([]NodeID, replicaCount)
	for i := 0; i < replicaCount; i++ {
		out[i] = scoredNodes[i].node
	}
	return out
}
