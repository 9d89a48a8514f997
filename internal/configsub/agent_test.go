package configsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu   sync.Mutex
	seen []Generation
}

func (r *recordingListener) OnSnapshot(ctx context.Context, snap *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, snap.Generation)
}

func (r *recordingListener) generations() []Generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Generation(nil), r.seen...)
}

func TestConfigAgent_DeliversIncreasingGenerations(t *testing.T) {
	src := &fakeSource{gen: 1}
	set := NewSubscriptionSet(src)
	listener := &recordingListener{}

	agent := NewConfigAgent(set, listener, nil)
	agent.pollTimeout = 200 * time.Millisecond
	agent.backoff.SuccessDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	agent.Start(ctx)

	require.Eventually(t, func() bool { return len(listener.generations()) >= 1 }, time.Second, 5*time.Millisecond)
	src.bump()
	require.Eventually(t, func() bool { return len(listener.generations()) >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	agent.Stop()

	gens := listener.generations()
	for i := 1; i < len(gens); i++ {
		assert.GreaterOrEqual(t, gens[i], gens[i-1], "config agent must never deliver a generation regression")
	}
}

func TestConfigAgent_TriggerPollSkipsBackoffDelay(t *testing.T) {
	src := &fakeSource{gen: 1}
	set := NewSubscriptionSet(src)
	listener := &recordingListener{}

	agent := NewConfigAgent(set, listener, nil)
	agent.pollTimeout = 200 * time.Millisecond
	agent.backoff.SuccessDelay = time.Hour // would never poll again on its own

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	agent.Start(ctx)

	require.Eventually(t, func() bool { return len(listener.generations()) >= 1 }, time.Second, 5*time.Millisecond)

	src.bump()
	agent.TriggerPoll()
	require.Eventually(t, func() bool { return len(listener.generations()) >= 2 }, time.Second, 5*time.Millisecond)

	agent.Stop()
}

func TestConfigAgent_StopIsIdempotent(t *testing.T) {
	src := &fakeSource{gen: 1}
	set := NewSubscriptionSet(src)
	agent := NewConfigAgent(set, &recordingListener{}, nil)

	agent.Start(context.Background())
	agent.Stop()
	agent.Stop()
}
