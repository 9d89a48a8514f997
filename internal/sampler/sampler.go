package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vespacore/servingcore/pkg/metrics"
)

// Config controls the periodic sampling loop.
type Config struct {
	// SampleInterval between samples; defaults to 60s if zero.
	SampleInterval time.Duration
	Filter         FilterConfig
}

// DefaultConfig returns the documented default: sample every 60
// seconds against the default write-block thresholds.
func DefaultConfig() Config {
	return Config{SampleInterval: 60 * time.Second, Filter: DefaultFilterConfig()}
}

// Sampler periodically measures disk and memory usage, aggregates
// registered transient providers, and drives a WriteBlockFilter from
// the results.
type Sampler struct {
	cfg    Config
	disk   DiskStatProvider
	mem    MemStatProvider
	filter *WriteBlockFilter
	logger *slog.Logger
	metrics *metrics.SamplerMetrics

	mu        sync.Mutex
	providers []TransientProvider
}

// New builds a Sampler. disk or mem may be nil to skip that
// resource's periodic measurement (e.g. in tests that drive the
// filter directly).
func New(cfg Config, disk DiskStatProvider, mem MemStatProvider, logger *slog.Logger) *Sampler {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{
		cfg:     cfg,
		disk:    disk,
		mem:     mem,
		filter:  NewWriteBlockFilter(cfg.Filter),
		logger:  logger,
		metrics: metrics.DefaultRegistry().Sampler(),
	}
	s.filter.Subscribe(func(blocked bool, reasons []BlockReason) {
		if !blocked {
			return
		}
		for _, r := range reasons {
			s.metrics.WriteBlockedTotal.WithLabelValues(string(r.Resource)).Inc()
		}
	})
	return s
}

// RegisterProvider adds a transient-usage provider whose reported
// bytes are published as a metric on every sample tick. Transient
// usage does not feed into the write-block decision directly - it is
// observability only, per the documented scope of the sampler.
func (s *Sampler) RegisterProvider(p TransientProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, p)
}

// Filter exposes the write-block filter so a feed handler can call
// Allow() before accepting a write, and so callers can Subscribe to
// blocked-state transitions.
func (s *Sampler) Filter() *WriteBlockFilter {
	return s.filter
}

// Run blocks, sampling on cfg.SampleInterval until ctx is canceled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	if s.disk != nil {
		used, limit, err := s.disk.DiskUsage()
		if err != nil {
			s.logger.Warn("sampler: disk usage sample failed", "err", err)
		} else {
			ratio := Usage{Resource: ResourceDisk, Used: used, Limit: limit}.Ratio()
			s.metrics.DiskUtilization.Set(ratio)
			s.filter.Update(ResourceDisk, ratio)
		}
	}

	if s.mem != nil {
		used, limit, err := s.mem.MemoryUsage()
		if err != nil {
			s.logger.Warn("sampler: memory usage sample failed", "err", err)
		} else {
			ratio := Usage{Resource: ResourceMemory, Used: used, Limit: limit}.Ratio()
			s.metrics.MemoryUtilization.Set(ratio)
			s.filter.Update(ResourceMemory, ratio)
		}
	}

	s.mu.Lock()
	providers := append([]TransientProvider(nil), s.providers...)
	s.mu.Unlock()
	for _, p := range providers {
		s.metrics.TransientUsageBytes.WithLabelValues(p.Name()).Set(float64(p.TransientUsageBytes()))
	}

	blocked, _ := s.filter.Check()
	if blocked {
		s.metrics.WriteBlocked.Set(1)
	} else {
		s.metrics.WriteBlocked.Set(0)
	}
}
