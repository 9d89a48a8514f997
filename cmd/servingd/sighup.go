package main

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// reloadTrigger is the subset of *configsub.ConfigAgent the signal
// handler needs: a non-blocking wake-up of the poll loop.
type reloadTrigger interface {
	TriggerPoll()
}

// sighupHandler turns SIGHUP into an immediate config-agent poll,
// debounced so a burst of signals only wakes the loop once per window.
type sighupHandler struct {
	agent   reloadTrigger
	logger  *slog.Logger
	metrics *sighupMetrics

	debounceWindow time.Duration
	lastTrigger    atomic.Value // time.Time

	sigChan chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

func newSighupHandler(agent reloadTrigger, logger *slog.Logger) *sighupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &sighupHandler{
		agent:          agent,
		logger:         logger,
		metrics:        newSighupMetrics(),
		debounceWindow: time.Second,
		sigChan:        make(chan os.Signal, 1),
		done:           make(chan struct{}),
	}
}

func (h *sighupHandler) Start() {
	signal.Notify(h.sigChan, syscall.SIGHUP)
	h.wg.Add(1)
	go h.run()
}

func (h *sighupHandler) Stop() {
	signal.Stop(h.sigChan)
	close(h.done)
	h.wg.Wait()
}

func (h *sighupHandler) run() {
	defer h.wg.Done()
	for {
		select {
		case _, ok := <-h.sigChan:
			if !ok {
				return
			}
			h.handle()
		case <-h.done:
			return
		}
	}
}

func (h *sighupHandler) handle() {
	if last, ok := h.lastTrigger.Load().(time.Time); ok && time.Since(last) < h.debounceWindow {
		h.logger.Debug("sighup reload debounced")
		return
	}
	h.lastTrigger.Store(time.Now())

	h.logger.Info("sighup received, triggering config poll")
	h.agent.TriggerPoll()
	h.metrics.triggersTotal.Inc()
}

type sighupMetrics struct {
	triggersTotal prometheus.Counter
}

func newSighupMetrics() *sighupMetrics {
	return &sighupMetrics{
		triggersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "servingcore",
			Subsystem: "config",
			Name:      "sighup_triggers_total",
			Help:      "Total number of SIGHUP signals that triggered a config poll.",
		}),
	}
}
