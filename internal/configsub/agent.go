package configsub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vespacore/servingcore/pkg/metrics"
)

// Listener receives each newly acquired snapshot. Callers wire their own
// component-graph manager as the listener.
type Listener interface {
	OnSnapshot(ctx context.Context, snap *Snapshot)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(ctx context.Context, snap *Snapshot)

func (f ListenerFunc) OnSnapshot(ctx context.Context, snap *Snapshot) { f(ctx, snap) }

// ConfigAgent repeatedly acquires snapshots from a SubscriptionSet and
// delivers each new generation to its listener, applying BackoffPolicy
// between polls. It never reorders generations: a fetch that would move
// the generation backwards fails the poll, which is logged and backed
// off like any other failed fetch (OnUnconfiguredError), not delivered.
type ConfigAgent struct {
	subs     *SubscriptionSet
	backoff  BackoffPolicy
	listener Listener
	logger   *slog.Logger
	metrics  *metrics.ConfigAgentMetrics

	pollTimeout       time.Duration
	requireDifference bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	poke    chan struct{}
}

// NewConfigAgent builds an agent over subs, delivering snapshots to
// listener. A nil logger defaults to slog.Default(); metrics default to
// the process-wide registry.
func NewConfigAgent(subs *SubscriptionSet, listener Listener, logger *slog.Logger) *ConfigAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigAgent{
		subs:              subs,
		backoff:           DefaultBackoffPolicy(),
		listener:          listener,
		logger:            logger,
		metrics:           metrics.DefaultRegistry().ConfigAgent(),
		pollTimeout:       30 * time.Second,
		requireDifference: true,
		poke:              make(chan struct{}, 1),
	}
}

// TriggerPoll wakes the poll loop immediately, skipping any remaining
// back-off delay. Non-blocking: a trigger arriving while one is already
// queued is dropped, since the loop is about to poll anyway.
func (a *ConfigAgent) TriggerPoll() {
	select {
	case a.poke <- struct{}{}:
	default:
	}
}

// Start begins the poll loop in a background goroutine.
func (a *ConfigAgent) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	go a.run(loopCtx)
}

// Stop cancels the poll loop and waits for it to exit.
func (a *ConfigAgent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	done := a.done
	a.running = false
	a.mu.Unlock()

	cancel()
	<-done
}

func (a *ConfigAgent) run(ctx context.Context) {
	defer close(a.done)

	for {
		pollStart := time.Now()
		snap, err := a.subs.AcquireSnapshot(ctx, a.pollTimeout, a.requireDifference)
		a.metrics.PollDurationSeconds.Observe(time.Since(pollStart).Seconds())
		var delay time.Duration

		switch {
		case err == ErrClosed:
			return
		case ctx.Err() != nil:
			return
		case err != nil:
			a.logger.Warn("config poll failed", "error", err)
			delay = a.backoff.OnUnconfiguredError()
			a.metrics.PollErrorsTotal.WithLabelValues("transport").Inc()
		default:
			if !a.validate(snap) {
				a.logger.Error("config snapshot failed validation", "generation", uint64(snap.Generation))
				delay = a.backoff.OnConfiguredError()
				a.metrics.PollErrorsTotal.WithLabelValues("validation").Inc()
			} else {
				a.logger.Info("config snapshot acquired", "generation", uint64(snap.Generation), "identity_hash", snap.IdentityHash)
				a.metrics.Generation.Set(float64(snap.Generation))
				a.metrics.GenerationsAppliedTotal.Inc()
				a.listener.OnSnapshot(ctx, snap)
				delay = a.backoff.OnSuccess()
			}
		}

		a.metrics.BackoffDelaySeconds.Set(delay.Seconds())

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		case <-a.poke:
		}
	}
}

// validate is a hook a real deployment overrides with schema validation;
// the default accepts any well-formed snapshot (non-nil Configs map).
func (a *ConfigAgent) validate(snap *Snapshot) bool {
	return snap != nil && snap.Configs != nil
}
