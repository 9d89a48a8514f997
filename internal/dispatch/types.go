// Package dispatch implements the interleaved shard invoker: fan-out
// to per-shard search invokers, adaptive deadline shortening, top-k hit
// merging, and coverage-record bookkeeping.
package dispatch

import (
	"context"
	"time"
)

// Hit is one ranked result, mirroring the abstract
// (global-id, relevance score, partition id, distribution key) tuple.
// Meta hits carry diagnostic information rather than a real document and
// bypass ranking and offset accounting.
type Hit struct {
	GlobalID        string
	Score           float64
	PartitionID     int
	DistributionKey int
	Meta            bool
}

// ShardReply is what one shard invocation returns.
type ShardReply struct {
	Hits []Hit
	// Docs and ActiveDocs count documents that were matched, and that
	// were active (searchable) at match time. SoonActiveDocs counts
	// documents matched from a bucket that is converging toward active
	// but was not active yet when this shard answered.
	Docs                 int
	ActiveDocs           int
	SoonActiveDocs       int
	Full                 bool
	DegradedByMatchPhase bool
}

// ShardInvoker issues one timed search against a single shard.
type ShardInvoker interface {
	Invoke(ctx context.Context, timeout time.Duration) (ShardReply, error)
}
