package docdb

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// FeedSource distinguishes where an operation came from, so replay
// traffic from the transaction log and live client traffic can be
// throttled independently: a burst of live feed must never be able to
// stall transaction-log replay during startup.
type FeedSource int

const (
	FeedSourceReplay FeedSource = iota
	FeedSourceLive
)

func (s FeedSource) String() string {
	if s == FeedSourceReplay {
		return "replay"
	}
	return "live"
}

// FeedHandler admits operations onto the master executor queue,
// applying a distinct token bucket per FeedSource.
type FeedHandler struct {
	replayLimiter *rate.Limiter
	liveLimiter   *rate.Limiter
	apply         func(ctx context.Context, op Operation) (FeedResult, error)
}

// FeedHandlerConfig configures the per-source rate limits. A zero Limit
// means unlimited (rate.Inf).
type FeedHandlerConfig struct {
	ReplayOpsPerSec float64
	ReplayBurst     int
	LiveOpsPerSec   float64
	LiveBurst       int
}

// NewFeedHandler builds a FeedHandler that forwards admitted operations
// to apply.
func NewFeedHandler(cfg FeedHandlerConfig, apply func(ctx context.Context, op Operation) (FeedResult, error)) *FeedHandler {
	replay := rate.NewLimiter(rate.Inf, 0)
	if cfg.ReplayOpsPerSec > 0 {
		replay = rate.NewLimiter(rate.Limit(cfg.ReplayOpsPerSec), cfg.ReplayBurst)
	}
	live := rate.NewLimiter(rate.Inf, 0)
	if cfg.LiveOpsPerSec > 0 {
		live = rate.NewLimiter(rate.Limit(cfg.LiveOpsPerSec), cfg.LiveBurst)
	}
	return &FeedHandler{replayLimiter: replay, liveLimiter: live, apply: apply}
}

// Handle blocks until op is admitted under its source's limiter, then
// applies it. Replay operations are never blocked by live-traffic
// pressure and vice versa, since each source owns its own limiter.
func (h *FeedHandler) Handle(ctx context.Context, source FeedSource, op Operation) (FeedResult, error) {
	limiter := h.liveLimiter
	if source == FeedSourceReplay {
		limiter = h.replayLimiter
	}
	if err := limiter.Wait(ctx); err != nil {
		return FeedResult{}, fmt.Errorf("docdb: feed handler admission for %s op: %w", source, err)
	}
	return h.apply(ctx, op)
}
