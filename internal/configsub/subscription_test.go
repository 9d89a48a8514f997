package configsub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	gen int64
}

func (f *fakeSource) Fetch(ctx context.Context, keys []ConfigKey) (*Snapshot, error) {
	g := Generation(atomic.LoadInt64(&f.gen))
	return &Snapshot{Generation: g, Configs: map[ConfigKey]any{{Name: "schema", ID: "a"}: "v1"}}, nil
}

func (f *fakeSource) bump() { atomic.AddInt64(&f.gen, 1) }

func TestSubscriptionSet_SubscribeRequiresOpen(t *testing.T) {
	src := &fakeSource{gen: 1}
	set := NewSubscriptionSet(src)

	require.NoError(t, set.Subscribe(ConfigKey{Name: "schema", ID: "a"}))

	_, err := set.AcquireSnapshot(context.Background(), time.Second, false)
	require.NoError(t, err)

	err = set.Subscribe(ConfigKey{Name: "schema", ID: "b"})
	assert.ErrorIs(t, err, ErrNotOpen, "subscribing after the set has left OPEN must fail")
}

func TestSubscriptionSet_FirstAcquireFreezesSet(t *testing.T) {
	src := &fakeSource{gen: 1}
	set := NewSubscriptionSet(src)
	require.Equal(t, StateOpen, set.State())

	_, err := set.AcquireSnapshot(context.Background(), time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, StateFrozen, set.State())

	_, err = set.AcquireSnapshot(context.Background(), time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, StateConfigured, set.State())
}

func TestSubscriptionSet_RequireDifferenceBlocksUntilNewGeneration(t *testing.T) {
	src := &fakeSource{gen: 1}
	set := NewSubscriptionSet(src)

	_, err := set.AcquireSnapshot(context.Background(), time.Second, false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		snap, err := set.AcquireSnapshot(context.Background(), 2*time.Second, true)
		assert.NoError(t, err)
		assert.Equal(t, Generation(2), snap.Generation)
	}()

	time.Sleep(20 * time.Millisecond)
	src.bump()
	<-done
}

func TestSubscriptionSet_CloseInterruptsAcquire(t *testing.T) {
	src := &fakeSource{gen: 5}
	set := NewSubscriptionSet(src)
	_, err := set.AcquireSnapshot(context.Background(), time.Second, false)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := set.AcquireSnapshot(context.Background(), 5*time.Second, true)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, set.Close())
	require.NoError(t, set.Close(), "Close must be idempotent")

	err = <-errCh
	assert.ErrorIs(t, err, ErrClosed)
}

type regressingSource struct{ gen Generation }

func (r *regressingSource) Fetch(ctx context.Context, keys []ConfigKey) (*Snapshot, error) {
	return &Snapshot{Generation: r.gen, Configs: map[ConfigKey]any{}}, nil
}

func TestSubscriptionSet_GenerationRegressionIsRejected(t *testing.T) {
	set := NewSubscriptionSet(&regressingSource{gen: 5})
	_, err := set.AcquireSnapshot(context.Background(), time.Second, false)
	require.NoError(t, err)

	set.source = &regressingSource{gen: 4}
	_, err = set.AcquireSnapshot(context.Background(), time.Second, false)
	assert.Error(t, err, "a generation older than current must never be delivered")
}
