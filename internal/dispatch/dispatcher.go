package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/vespacore/servingcore/internal/dispatch/stream"
	"github.com/vespacore/servingcore/pkg/metrics"
)

const backendTimeoutTrace = "Backend communication timeout"

// Query is one search request's dispatch parameters.
type Query struct {
	Hits              int
	Offset            int
	MinSearchCoverage float64
	InitialTimeout    time.Duration
	AdaptiveTimeout   time.Duration

	// Progress, if non-nil, receives a stream.ProgressEvent after every
	// error-free shard reply received before the deadline (failed shards
	// and replies collected after the deadline send none) and a final
	// event when Dispatch returns. Intended
	// to be drained by a stream.Handler serving an operator's websocket
	// connection; Dispatch never blocks waiting for a slow reader
	// since the channel is only ever sent to with a default case.
	Progress chan<- stream.ProgressEvent
}

// Reply is the merged, paged result of dispatching a Query to a set of
// shard invokers.
type Reply struct {
	Hits     []Hit
	Offset   int
	Coverage CoverageRecord
	Trace    []string
}

// Dispatcher fans a query out to shard invokers, merges their replies,
// and applies adaptive deadline shortening once sufficient coverage has
// been observed.
type Dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.DispatchMetrics
}

// NewDispatcher builds a Dispatcher. A nil logger uses slog's default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, metrics: metrics.DefaultRegistry().Dispatch()}
}

type shardResult struct {
	reply ShardReply
	err   error
}

// Dispatch runs the interleaved invoker algorithm against invokers,
// bounded by deadline, and returns the merged/paged reply.
func (d *Dispatcher) Dispatch(ctx context.Context, q Query, invokers []ShardInvoker) Reply {
	start := time.Now()
	n := len(invokers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultsCh := make(chan shardResult, n)
	for _, inv := range invokers {
		go func(inv ShardInvoker) {
			reply, err := inv.Invoke(ctx, q.InitialTimeout)
			resultsCh <- shardResult{reply: reply, err: err}
		}(inv)
	}

	deadlineTimer := time.NewTimer(q.InitialTimeout)
	defer deadlineTimer.Stop()

	acc := newCoverageAccumulator()
	var allHits []Hit
	var traceEntries []string
	responded := 0
	adaptiveApplied := false
	adaptiveActive := false

	addTrace := func(msg string) {
		for _, existing := range traceEntries {
			if existing == msg {
				return
			}
		}
		traceEntries = append(traceEntries, msg)
	}

	remaining := n
	for remaining > 0 {
		select {
		case res := <-resultsCh:
			remaining--
			if res.err != nil {
				acc.markMissing(adaptiveActive)
				addTrace(backendTimeoutTrace)
				if d.metrics != nil {
					d.metrics.ShardTimeoutsTotal.Inc()
				}
				continue
			}
			responded++
			acc.addReply(res.reply)
			allHits = append(allHits, res.reply.Hits...)

			if !adaptiveApplied && n > 0 && float64(responded)/float64(n) >= q.MinSearchCoverage {
				adaptiveApplied = true
				adaptiveActive = true
				d.shortenDeadline(deadlineTimer, start, q)
			}
			d.emitProgress(q.Progress, responded, n, acc, false)

		case <-deadlineTimer.C:
			cancel()
			d.drainRemaining(resultsCh, remaining, acc, &allHits, adaptiveActive)
			addTrace(backendTimeoutTrace)
			remaining = 0
		}
	}

	hits := mergeAndPage(allHits, q.Offset, q.Hits)
	coverage := acc.record()
	d.emitProgress(q.Progress, responded, n, acc, true)

	if d.metrics != nil {
		d.metrics.QueriesTotal.Inc()
		if coverage.Docs > 0 {
			d.metrics.CoverageDocsRatio.Observe(float64(coverage.Active) / float64(coverage.Docs))
		}
		for _, reason := range coverage.DegradedBy {
			d.metrics.DegradedTotal.WithLabelValues(reason).Inc()
		}
		d.metrics.MergeDurationSeconds.Observe(time.Since(start).Seconds())
	}

	return Reply{Hits: hits, Offset: 0, Coverage: coverage, Trace: traceEntries}
}

// shortenDeadline resets deadlineTimer to fire at
// min(current remaining budget, AdaptiveTimeout) once sufficient
// coverage has been reached.
func (d *Dispatcher) shortenDeadline(timer *time.Timer, start time.Time, q Query) {
	elapsed := time.Since(start)
	remainingBudget := q.InitialTimeout - elapsed
	adaptive := q.AdaptiveTimeout
	if remainingBudget < adaptive {
		adaptive = remainingBudget
	}
	if adaptive < 0 {
		adaptive = 0
	}
	if adaptive >= remainingBudget {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(adaptive)
	if d.metrics != nil {
		d.metrics.AdaptiveTimeoutsTotal.Inc()
	}
}

// emitProgress sends a snapshot of the in-flight dispatch to progress,
// if non-nil, without blocking: a connected operator client that falls
// behind simply misses intermediate frames rather than slowing the
// dispatch down.
func (d *Dispatcher) emitProgress(progress chan<- stream.ProgressEvent, responded, total int, acc *coverageAccumulator, final bool) {
	if progress == nil {
		return
	}
	coverage := acc.record()
	ev := stream.ProgressEvent{
		Responded: responded,
		Total:     total,
		Docs:      coverage.Docs,
		Active:    coverage.Active,
		Degraded:  coverage.DegradedBy,
		Final:     final,
		Timestamp: time.Now(),
	}
	select {
	case progress <- ev:
	default:
	}
}

// drainRemaining collects any shard results already in flight when the
// deadline fired without blocking further, then marks everything still
// missing.
func (d *Dispatcher) drainRemaining(resultsCh <-chan shardResult, remaining int, acc *coverageAccumulator, allHits *[]Hit, adaptive bool) {
	for i := 0; i < remaining; i++ {
		select {
		case res := <-resultsCh:
			if res.err == nil {
				acc.addReply(res.reply)
				*allHits = append(*allHits, res.reply.Hits...)
				continue
			}
		default:
		}
		acc.markMissing(adaptive)
	}
}
