// Package graph manages the per-generation component graph: building a
// new generation's components when a matching configuration snapshot
// arrives, atomically publishing it, and deconstructing the instances
// the previous generation no longer shares with it.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vespacore/servingcore/internal/configsub"
	"github.com/vespacore/servingcore/pkg/metrics"
)

// NodeID names a declared component within a generation.
type NodeID string

// Constructor builds one node's instance, given already-constructed
// dependencies. It returns an error if construction fails; the graph
// manager treats that as a fatal-for-this-generation failure.
type Constructor func(ctx context.Context, deps map[NodeID]any) (any, error)

// NodeSpec declares one component: its id, the ids it depends on (built
// before it), and its constructor.
type NodeSpec struct {
	ID        NodeID
	DependsOn []NodeID
	Build     Constructor
}

// Instance is a constructed component plus the node that produced it,
// retained so the next generation's publish can diff by NodeID.
type Instance struct {
	ID    NodeID
	Value any
}

// Deconstructor is implemented by component instances that must release
// resources when their generation is retired.
type Deconstructor interface {
	Deconstruct(ctx context.Context) error
}

// Generation is one fully built (or partially built) graph snapshot.
type Generation struct {
	Bootstrap  configsub.Generation
	Components configsub.Generation
	Instances  map[NodeID]Instance
}

// ErrPlatformBundleChanged is fatal: platform bundles must not change
// after generation 0.
var ErrPlatformBundleChanged = fmt.Errorf("graph: platform bundle changed after generation 0")

// Manager owns exactly one generation's constructed component instances
// at a time; handover to the next generation is atomic.
type Manager struct {
	mu               sync.Mutex
	current          *Generation
	leastGeneration  configsub.Generation
	platformBundleID string
	logger           *slog.Logger
	metrics          *metrics.GraphMetrics

	deconstructQueue chan deconstructJob
	wg               sync.WaitGroup
}

type deconstructJob struct {
	gen       configsub.Generation
	instances map[NodeID]Instance
}

// NewManager creates an empty graph manager. A nil logger defaults to
// slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:           logger,
		metrics:          metrics.DefaultRegistry().Graph(),
		deconstructQueue: make(chan deconstructJob, 16),
	}
	m.wg.Add(1)
	go m.deconstructWorker()
	return m
}

// LeastGeneration returns the smallest generation the manager will
// still attempt to build; generations below it were permanently
// abandoned after a constructor failure.
func (m *Manager) LeastGeneration() configsub.Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leastGeneration
}

// Current returns the currently published generation, or nil before the
// first successful publish.
func (m *Manager) Current() *Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Swap builds the graph declared by specs for the given bootstrap/
// components generation pair and, on success, atomically publishes it.
// Platform bundle changes after generation 0 are fatal. Partial builds
// are scheduled for asynchronous deconstruction and never block
// publication of a later generation.
func (m *Manager) Swap(ctx context.Context, bootstrapGen, componentsGen configsub.Generation, platformBundleID string, specs []NodeSpec) (*Generation, error) {
	m.mu.Lock()
	if bootstrapGen < m.leastGeneration || componentsGen < m.leastGeneration {
		m.mu.Unlock()
		return nil, fmt.Errorf("graph: generation (%d,%d) below leastGeneration %d", bootstrapGen, componentsGen, m.leastGeneration)
	}
	if m.platformBundleID == "" {
		m.platformBundleID = platformBundleID
	} else if m.platformBundleID != platformBundleID {
		m.mu.Unlock()
		return nil, ErrPlatformBundleChanged
	}
	previous := m.current
	m.mu.Unlock()

	built, err := m.build(ctx, specs)
	if err != nil {
		m.logger.Error("graph build failed, partial instances scheduled for deconstruction",
			"bootstrap_generation", uint64(bootstrapGen), "components_generation", uint64(componentsGen), "error", err)
		m.metrics.SwapFailuresTotal.Inc()

		m.mu.Lock()
		newLeast := componentsGen + 1
		if bootstrapGen+1 > newLeast {
			newLeast = bootstrapGen + 1
		}
		if newLeast > m.leastGeneration {
			m.leastGeneration = newLeast
		}
		m.mu.Unlock()

		m.scheduleDeconstruction(componentsGen, partialNotShared(built, previous))
		return nil, err
	}

	next := &Generation{Bootstrap: bootstrapGen, Components: componentsGen, Instances: built}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	m.metrics.SwapsTotal.Inc()
	m.metrics.LeastGeneration.Set(float64(m.LeastGeneration()))
	m.logger.Info("graph generation published", "components_generation", uint64(componentsGen))

	if previous != nil {
		m.scheduleDeconstruction(previous.Components, notShared(previous.Instances, next.Instances))
	}
	return next, nil
}

// build resolves specs in dependency order and constructs each node.
func (m *Manager) build(ctx context.Context, specs []NodeSpec) (map[NodeID]Instance, error) {
	buildStart := time.Now()
	defer func() { m.metrics.BuildDurationSeconds.Observe(time.Since(buildStart).Seconds()) }()

	byID := make(map[NodeID]NodeSpec, len(specs))
	for _, s := range specs {
		byID[s.ID] = s
	}

	instances := make(map[NodeID]Instance, len(specs))
	deps := make(map[NodeID]any, len(specs))
	visiting := make(map[NodeID]bool)

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		if _, done := instances[id]; done {
			return nil
		}
		if visiting[id] {
			return fmt.Errorf("graph: dependency cycle at %s", id)
		}
		spec, ok := byID[id]
		if !ok {
			return fmt.Errorf("graph: undeclared dependency %s", id)
		}
		visiting[id] = true
		for _, dep := range spec.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[id] = false

		if ctx.Err() != nil {
			return fmt.Errorf("graph: build interrupted: %w", ctx.Err())
		}

		value, err := spec.Build(ctx, deps)
		if err != nil {
			return fmt.Errorf("graph: construct %s: %w", id, err)
		}
		instances[id] = Instance{ID: id, Value: value}
		deps[id] = value
		return nil
	}

	for _, s := range specs {
		if err := visit(s.ID); err != nil {
			return instances, err
		}
	}
	return instances, nil
}

func (m *Manager) scheduleDeconstruction(gen configsub.Generation, instances map[NodeID]Instance) {
	if len(instances) == 0 {
		return
	}
	m.metrics.DeconstructionsPending.Add(float64(len(instances)))
	select {
	case m.deconstructQueue <- deconstructJob{gen: gen, instances: instances}:
	default:
		m.logger.Warn("deconstruct queue full, deconstructing inline", "generation", uint64(gen))
		m.deconstruct(deconstructJob{gen: gen, instances: instances})
	}
}

func (m *Manager) deconstructWorker() {
	defer m.wg.Done()
	for job := range m.deconstructQueue {
		m.deconstruct(job)
	}
}

func (m *Manager) deconstruct(job deconstructJob) {
	ctx := context.Background()
	for _, inst := range job.instances {
		if d, ok := inst.Value.(Deconstructor); ok {
			if err := d.Deconstruct(ctx); err != nil {
				m.logger.Error("component deconstruction failed", "node", string(inst.ID), "generation", uint64(job.gen), "error", err)
			}
		}
		m.metrics.DeconstructionsPending.Add(-1)
	}
}

// Close stops the deconstruction worker after draining the queue.
func (m *Manager) Close() {
	close(m.deconstructQueue)
	m.wg.Wait()
}

// notShared returns the entries of prev whose NodeID is absent from
// next or whose Value pointer differs (rebuild produced a new instance).
func notShared(prev, next map[NodeID]Instance) map[NodeID]Instance {
	out := make(map[NodeID]Instance)
	for id, inst := range prev {
		if nextInst, ok := next[id]; !ok || nextInst.Value != inst.Value {
			out[id] = inst
		}
	}
	return out
}

// partialNotShared is notShared applied to a failed partial build: only
// instances not also held by the still-current previous generation are
// eligible for deconstruction.
func partialNotShared(partial map[NodeID]Instance, previous *Generation) map[NodeID]Instance {
	if previous == nil {
		return partial
	}
	return notShared(partial, previous.Instances)
}
