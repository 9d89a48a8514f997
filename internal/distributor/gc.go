package distributor

import (
	"context"
	"log/slog"
	"time"
)

// Selection decides, given a document id, whether the document should
// survive garbage collection. GC removes documents for which Selection
// returns false - i.e. it enforces "keep only documents matching
// <selection>" by deleting everything that does not match.
type Selection func(docID string) bool

// GCTarget is the thing garbage collection acts on: a bucket's
// document set, abstracted so the collector doesn't need to know
// about sub-DBs directly.
type GCTarget interface {
	// DocumentIDs returns every document id currently stored for the
	// target bucket.
	DocumentIDs(ctx context.Context, bucket BucketID) ([]string, error)
	// RemoveBatch deletes the given document ids from the target
	// bucket and reports how many were actually removed.
	RemoveBatch(ctx context.Context, bucket BucketID, docIDs []string) (int, error)
}

// GCConfig controls the collector's interval and batch size.
// Interval <= 0 disables collection entirely, matching the
// "0 disables" convention used throughout the content layer's
// periodic jobs.
type GCConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultGCConfig mirrors the content layer's documented default: an
// hourly sweep in batches of 1000.
func DefaultGCConfig() GCConfig {
	return GCConfig{Interval: time.Hour, BatchSize: 1000}
}

// Collector runs Selection against a set of buckets on a fixed
// interval and removes everything that no longer matches.
type Collector struct {
	cfg       GCConfig
	target    GCTarget
	selection Selection
	buckets   func() []BucketID
	logger    *slog.Logger
}

// NewCollector builds a Collector. buckets is called fresh on every
// sweep so a changing bucket set is picked up automatically.
func NewCollector(cfg GCConfig, target GCTarget, selection Selection, buckets func() []BucketID, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{cfg: cfg, target: target, selection: selection, buckets: buckets, logger: logger}
}

// Run blocks, sweeping on cfg.Interval until ctx is canceled. It is a
// no-op (returns immediately once ctx is done) if Interval <= 0.
func (c *Collector) Run(ctx context.Context) {
	if c.cfg.Interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

// sweepOnce runs a single collection pass over every bucket, logging
// and continuing past individual bucket errors rather than aborting
// the whole sweep.
func (c *Collector) sweepOnce(ctx context.Context) {
	for _, bucket := range c.buckets() {
		removed, err := c.sweepBucket(ctx, bucket)
		if err != nil {
			c.logger.Warn("gc: bucket sweep failed", "bucket", bucket.Hash, "err", err)
			continue
		}
		if removed > 0 {
			c.logger.Info("gc: removed documents", "bucket", bucket.Hash, "removed", removed)
		}
	}
}

// sweepBucket evaluates not(selection) over every document id in the
// bucket and removes matches in batches of cfg.BatchSize.
func (c *Collector) sweepBucket(ctx context.Context, bucket BucketID) (int, error) {
	ids, err := c.target.DocumentIDs(ctx, bucket)
	if err != nil {
		return 0, err
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(ids)
		if batchSize == 0 {
			batchSize = 1
		}
	}

	var toRemove []string
	total := 0
	flush := func() error {
		if len(toRemove) == 0 {
			return nil
		}
		n, err := c.target.RemoveBatch(ctx, bucket, toRemove)
		total += n
		toRemove = toRemove[:0]
		return err
	}

	for _, id := range ids {
		if c.selection(id) {
			continue
		}
		toRemove = append(toRemove, id)
		if len(toRemove) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
