package distributor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReplicaClient models two replicas holding independent copies of
// a document, allowing tests to simulate divergence directly.
type fakeReplicaClient struct {
	mu    sync.Mutex
	state map[NodeID]ReplicaMetadata
}

func newFakeReplicaClient() *fakeReplicaClient {
	return &fakeReplicaClient{state: make(map[NodeID]ReplicaMetadata)}
}

func (f *fakeReplicaClient) FetchMetadata(ctx context.Context, node NodeID, docID string) (ReplicaMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[node], nil
}

func (f *fakeReplicaClient) Apply(ctx context.Context, node NodeID, docID string, fields map[string]any, timestamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[node] = ReplicaMetadata{Replica: node, Timestamp: timestamp, Fields: fields}
	return nil
}

func incrementCounter(current any) any {
	n, _ := current.(int)
	return n + 1
}

// TestThreePhaseCoordinator_ConvergesDivergedReplicas is literal
// Scenario F's enabled branch: two replicas start with different
// values for a numeric field (as if an earlier write landed on only
// one of them); after one three-phase update, both converge on the
// same value derived from the single newest observed state.
func TestThreePhaseCoordinator_ConvergesDivergedReplicas(t *testing.T) {
	client := newFakeReplicaClient()
	client.state["r1"] = ReplicaMetadata{Replica: "r1", Timestamp: 100, Fields: map[string]any{"counter": 5}}
	client.state["r2"] = ReplicaMetadata{Replica: "r2", Timestamp: 200, Fields: map[string]any{"counter": 7}}

	coord := NewThreePhaseCoordinator(client, true)
	now := int64(300)
	result, err := coord.Update(context.Background(), "doc-1", []NodeID{"r1", "r2"},
		[]FieldUpdate{{Field: "counter", Apply: incrementCounter}},
		func() int64 { return now })
	require.NoError(t, err)

	assert.Equal(t, NodeID("r2"), result.WinningSource)
	assert.ElementsMatch(t, []NodeID{"r1", "r2"}, result.AppliedTo)

	assert.Equal(t, client.state["r1"].Fields["counter"], client.state["r2"].Fields["counter"])
	assert.Equal(t, 8, client.state["r1"].Fields["counter"])
}

// TestThreePhaseCoordinator_SinglePhaseCanLoseAnUpdate is literal
// Scenario F's disabled branch: with coordination off, each replica is
// updated independently from its own (diverged) state, so the
// resulting values do not converge - a lost update remains possible.
func TestThreePhaseCoordinator_SinglePhaseCanLoseAnUpdate(t *testing.T) {
	client := newFakeReplicaClient()
	client.state["r1"] = ReplicaMetadata{Replica: "r1", Timestamp: 100, Fields: map[string]any{"counter": 5}}
	client.state["r2"] = ReplicaMetadata{Replica: "r2", Timestamp: 200, Fields: map[string]any{"counter": 7}}

	coord := NewThreePhaseCoordinator(client, false)
	now := int64(300)
	_, err := coord.Update(context.Background(), "doc-1", []NodeID{"r1", "r2"},
		[]FieldUpdate{{Field: "counter", Apply: incrementCounter}},
		func() int64 { return now })
	require.NoError(t, err)

	assert.Equal(t, 6, client.state["r1"].Fields["counter"])
	assert.Equal(t, 8, client.state["r2"].Fields["counter"])
	assert.NotEqual(t, client.state["r1"].Fields["counter"], client.state["r2"].Fields["counter"])
}

func TestThreePhaseCoordinator_NoReplicasErrors(t *testing.T) {
	coord := NewThreePhaseCoordinator(newFakeReplicaClient(), true)
	_, err := coord.Update(context.Background(), "doc-1", nil, nil, func() int64 { return 1 })
	assert.Error(t, err)
}
