package distributor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributor_SubmitMergeRespectsThrottleWithoutLockManager(t *testing.T) {
	d := New(Config{
		Throttle: MergeThrottleConfig{Policy: PolicyStatic, MaxMergesPerNode: 1, MaxQueueSize: 1},
	}, nil, nil, nil, nil, nil, nil)

	release1, admitted1, err := d.SubmitMerge(context.Background(), ComputeBucket("b", 8), false)
	require.NoError(t, err)
	require.True(t, admitted1)

	_, admitted2, err := d.SubmitMerge(context.Background(), ComputeBucket("b", 8), false)
	require.NoError(t, err)
	assert.False(t, admitted2)

	release1(true)

	release3, admitted3, err := d.SubmitMerge(context.Background(), ComputeBucket("b", 8), false)
	require.NoError(t, err)
	assert.True(t, admitted3)
	release3(true)
}

func TestDistributor_SubmitMergeInhibitedByPendingGlobalMerge(t *testing.T) {
	d := New(Config{
		Throttle:   MergeThrottleConfig{Policy: PolicyStatic, MaxMergesPerNode: 5, MaxQueueSize: 5},
		Activation: ActivationInhibitConfig{InhibitDefaultMergesWhenGlobalMergesPending: true},
	}, nil, nil, nil, nil, nil, nil)

	d.Gate().NoteGlobalMergePending(1)

	_, admitted, err := d.SubmitMerge(context.Background(), ComputeBucket("b", 8), false)
	require.NoError(t, err)
	assert.False(t, admitted)

	// Chained merges are unaffected by the inhibit-default-merges gate.
	release, admittedChained, err := d.SubmitMerge(context.Background(), ComputeBucket("b", 8), true)
	require.NoError(t, err)
	assert.True(t, admittedChained)
	release(true)
}

func TestDistributor_UpdateDelegatesToThreePhaseCoordinator(t *testing.T) {
	client := newFakeReplicaClient()
	client.state["r1"] = ReplicaMetadata{Replica: "r1", Timestamp: 1, Fields: map[string]any{"counter": 1}}
	client.state["r2"] = ReplicaMetadata{Replica: "r2", Timestamp: 2, Fields: map[string]any{"counter": 2}}

	d := New(Config{ThreePhase: true}, nil, nil, nil, client, nil, nil)
	result, err := d.Update(context.Background(), "doc", []NodeID{"r1", "r2"},
		[]FieldUpdate{{Field: "counter", Apply: incrementCounter}}, func() int64 { return 10 })
	require.NoError(t, err)
	assert.ElementsMatch(t, []NodeID{"r1", "r2"}, result.AppliedTo)
}
