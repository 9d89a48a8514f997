package distributor

import (
	"context"
	"log/slog"

	"github.com/vespacore/servingcore/internal/distributor/mergelock"
	"github.com/vespacore/servingcore/pkg/metrics"
)

// Config bundles every knob the Distributor needs.
type Config struct {
	GC         GCConfig
	Throttle   MergeThrottleConfig
	Activation ActivationInhibitConfig
	ThreePhase bool
}

// Distributor ties bucket GC, merge throttling, activation inhibit,
// and three-phase update coordination together behind the metrics
// registry, mirroring how internal/docdb.DB composes its own
// sub-components rather than leaving callers to wire each one by hand.
type Distributor struct {
	cfg       Config
	collector *Collector
	throttle  *MergeThrottle
	gate      *ActivationGate
	coord     *ThreePhaseCoordinator
	lockMgr   *mergelock.Manager
	logger    *slog.Logger
	metrics   *metrics.DistributorMetrics
}

// New builds a Distributor. lockMgr may be nil if cross-node merge
// admission tokens aren't needed (e.g. single-node deployments or
// tests), in which case merge admission is governed by the in-process
// MergeThrottle alone.
func New(cfg Config, target GCTarget, selection Selection, buckets func() []BucketID, replicaClient ReplicaClient, lockMgr *mergelock.Manager, logger *slog.Logger) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{
		cfg:       cfg,
		collector: NewCollector(cfg.GC, target, selection, buckets, logger),
		throttle:  NewMergeThrottle(cfg.Throttle),
		gate:      NewActivationGate(cfg.Activation),
		coord:     NewThreePhaseCoordinator(replicaClient, cfg.ThreePhase),
		lockMgr:   lockMgr,
		logger:    logger,
		metrics:   metrics.DefaultRegistry().Distributor(),
	}
}

// RunGC blocks running the garbage-collection sweep loop until ctx is
// canceled.
func (d *Distributor) RunGC(ctx context.Context) {
	d.collector.Run(ctx)
}

// SubmitMerge attempts to admit a merge for bucket, honoring both the
// in-process throttle and, if configured, the cross-node merge lock.
// It returns a release function that must be called exactly once,
// passed whether the merge completed successfully.
func (d *Distributor) SubmitMerge(ctx context.Context, bucket BucketID, chained bool) (release func(ok bool), admitted bool, err error) {
	if !chained && d.gate.InhibitDefaultMerge() {
		return nil, false, nil
	}

	admittedLocal, queued := d.throttle.TryAdmit(chained)
	d.publishThrottleGauges()
	if !admittedLocal {
		if !queued {
			d.metrics.MergesRejectedTotal.Inc()
		}
		return nil, false, nil
	}

	var tok *mergelock.Token
	if d.lockMgr != nil {
		var ok bool
		tok, ok, err = d.lockMgr.Acquire(ctx, bucket.Hash)
		if err != nil {
			d.throttle.Release(false)
			d.publishThrottleGauges()
			return nil, false, err
		}
		if !ok {
			d.throttle.Release(true)
			d.publishThrottleGauges()
			return nil, false, nil
		}
	}

	release = func(mergeOK bool) {
		d.throttle.Release(mergeOK)
		d.publishThrottleGauges()
		if tok != nil {
			if err := d.lockMgr.Release(ctx, tok); err != nil {
				d.logger.Warn("distributor: failed to release merge lock", "bucket", bucket.Hash, "err", err)
			}
		}
	}
	return release, true, nil
}

func (d *Distributor) publishThrottleGauges() {
	d.metrics.MergesActive.Set(float64(d.throttle.ActiveCount()))
	d.metrics.MergesQueued.Set(float64(d.throttle.QueueDepth()))
}

// Update runs a three-phase (or single-phase, per configuration)
// update and records the outcome.
func (d *Distributor) Update(ctx context.Context, docID string, replicas []NodeID, updates []FieldUpdate, nowFn func() int64) (ThreePhaseResult, error) {
	result, err := d.coord.Update(ctx, docID, replicas, updates, nowFn)
	outcome := "converged"
	if err != nil {
		outcome = "conflict"
	}
	d.metrics.ThreePhaseUpdatesTotal.WithLabelValues(outcome).Inc()
	return result, err
}

// Gate exposes the activation gate for callers that need to mark
// groups out of sync or note pending global merges directly.
func (d *Distributor) Gate() *ActivationGate {
	return d.gate
}

// SetGroupOutOfSync records a replica group's sync status and
// republishes the activation-inhibited gauge.
func (d *Distributor) SetGroupOutOfSync(group string, outOfSync bool, totalOutOfSyncGroups int) {
	d.gate.SetGroupOutOfSync(group, outOfSync)
	d.metrics.ActivationInhibited.Set(float64(totalOutOfSyncGroups))
}
