package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespacore/servingcore/internal/dispatch/stream"
)

// scriptedInvoker replies after delay with reply, unless ctx is
// canceled first, in which case it returns ctx.Err(). never, if true,
// blocks until ctx is canceled instead of ever replying.
type scriptedInvoker struct {
	delay time.Duration
	reply ShardReply
	never bool
}

func (s *scriptedInvoker) Invoke(ctx context.Context, timeout time.Duration) (ShardReply, error) {
	if s.never {
		<-ctx.Done()
		return ShardReply{}, ctx.Err()
	}
	select {
	case <-time.After(s.delay):
		return s.reply, nil
	case <-ctx.Done():
		return ShardReply{}, ctx.Err()
	}
}

// TestDispatch_InterleavedRankingUnderOffset runs Scenario A end-to-end
// through the dispatcher: two shards reply immediately with the
// scripted scores, hits=3, offset=5, expecting [7.0, 6.0, 3.0].
func TestDispatch_InterleavedRankingUnderOffset(t *testing.T) {
	shardA := &scriptedInvoker{reply: ShardReply{Hits: scoredHits(11.0, 8.5, 7.5, 3.0, 2.0), Docs: 5, ActiveDocs: 5, Full: true}}
	shardB := &scriptedInvoker{reply: ShardReply{Hits: scoredHits(9.0, 8.0, 7.0, 6.0, 1.0), Docs: 5, ActiveDocs: 5, Full: true}}

	d := NewDispatcher(nil)
	reply := d.Dispatch(context.Background(), Query{
		Hits: 3, Offset: 5, MinSearchCoverage: 1.0,
		InitialTimeout: time.Second,
	}, []ShardInvoker{shardA, shardB})

	require.Len(t, reply.Hits, 3)
	wantScores := []float64{7.0, 6.0, 3.0}
	for i, want := range wantScores {
		assert.Equal(t, want, reply.Hits[i].Score)
	}
	assert.Equal(t, 0, reply.Offset)
	assert.True(t, reply.Coverage.Full)
}

// TestDispatch_AdaptiveTimeoutTriggersOnMissingShard is Scenario B,
// scaled down to millisecond delays: four shards, minSearchCoverage
// 50%, three reply quickly and the fourth never responds. Expected:
// degraded-by-adaptive-timeout, nodes == 3, and the backend-timeout
// trace entry.
func TestDispatch_AdaptiveTimeoutTriggersOnMissingShard(t *testing.T) {
	fast := func(docs int) *scriptedInvoker {
		return &scriptedInvoker{delay: 20 * time.Millisecond, reply: ShardReply{Docs: docs, ActiveDocs: docs, Full: true}}
	}
	shard0, shard1, shard2 := fast(10), fast(20), fast(30)
	shard3 := &scriptedInvoker{never: true}

	d := NewDispatcher(nil)
	reply := d.Dispatch(context.Background(), Query{
		Hits: 10, MinSearchCoverage: 0.5,
		InitialTimeout:  500 * time.Millisecond,
		AdaptiveTimeout: 60 * time.Millisecond,
	}, []ShardInvoker{shard0, shard1, shard2, shard3})

	assert.Equal(t, 60, reply.Coverage.Docs)
	assert.Equal(t, 3, reply.Coverage.Nodes)
	assert.Contains(t, reply.Coverage.DegradedBy, degradedByAdaptiveTimeout)
	assert.Contains(t, reply.Trace, backendTimeoutTrace)
}

func TestDispatch_NoShardsReturnsEmptyCoverage(t *testing.T) {
	d := NewDispatcher(nil)
	reply := d.Dispatch(context.Background(), Query{Hits: 10, InitialTimeout: time.Second}, nil)
	assert.Empty(t, reply.Hits)
	assert.Equal(t, 0, reply.Coverage.Nodes)
}

// TestDispatch_EmitsProgressEventsForAStreamHandler exercises the
// Query.Progress channel an operator's stream.Handler would drain,
// confirming the final event reports full coverage.
func TestDispatch_EmitsProgressEventsForAStreamHandler(t *testing.T) {
	shardA := &scriptedInvoker{reply: ShardReply{Hits: scoredHits(5.0), Docs: 5, ActiveDocs: 5, Full: true}}
	shardB := &scriptedInvoker{reply: ShardReply{Hits: scoredHits(4.0), Docs: 5, ActiveDocs: 5, Full: true}}

	progress := make(chan stream.ProgressEvent, 8)
	d := NewDispatcher(nil)
	reply := d.Dispatch(context.Background(), Query{
		Hits: 10, MinSearchCoverage: 1.0,
		InitialTimeout: time.Second,
		Progress:       progress,
	}, []ShardInvoker{shardA, shardB})
	close(progress)

	require.True(t, reply.Coverage.Full)
	var last stream.ProgressEvent
	count := 0
	for ev := range progress {
		last = ev
		count++
	}
	require.Greater(t, count, 0)
	assert.True(t, last.Final)
	assert.Equal(t, 10, last.Docs)
}
