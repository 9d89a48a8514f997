package main

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReloadTrigger struct {
	count atomic.Int64
}

func (f *fakeReloadTrigger) TriggerPoll() { f.count.Add(1) }

func TestSighupHandler_SignalTriggersPoll(t *testing.T) {
	trigger := &fakeReloadTrigger{}
	h := newSighupHandler(trigger, nil)
	h.Start()
	defer h.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	require.Eventually(t, func() bool { return trigger.count.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestSighupHandler_DebouncesBurstOfSignals(t *testing.T) {
	trigger := &fakeReloadTrigger{}
	h := newSighupHandler(trigger, nil)
	h.debounceWindow = time.Hour
	h.Start()
	defer h.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	}

	require.Eventually(t, func() bool { return trigger.count.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, trigger.count.Load(), "debounce window must collapse a signal burst into one trigger")
}

func TestSighupHandler_StopAfterStartReturns(t *testing.T) {
	trigger := &fakeReloadTrigger{}
	h := newSighupHandler(trigger, nil)
	h.Start()
	h.Stop()
}
