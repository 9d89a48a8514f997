package docdb

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespacore/servingcore/internal/attrstore"
)

// fakeLog is an in-memory TransactionLog used as a test double.
type fakeLog struct {
	mu      sync.Mutex
	records []Operation
	serial  SerialNum
}

func (f *fakeLog) Replay(ctx context.Context, fromSerial SerialNum, apply func(SerialNum, Operation) error) error {
	f.mu.Lock()
	records := append([]Operation(nil), f.records...)
	f.mu.Unlock()
	for i, op := range records {
		if err := apply(SerialNum(i+1), op); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLog) Append(ctx context.Context, op Operation) (SerialNum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, op)
	f.serial++
	return f.serial, nil
}

func (f *fakeLog) Sync(ctx context.Context, serial SerialNum) error { return nil }

func TestDB_ReplaysLogBeforeGoingOnline(t *testing.T) {
	log := &fakeLog{records: []Operation{
		{Kind: OpPut, Doc: Document{ID: "doc:1", Fields: Fields{"a": 1}}},
		{Kind: OpPut, Doc: Document{ID: "doc:2", Fields: Fields{"a": 2}}},
	}}
	db := NewDB(Config{Name: "test", Log: log})

	require.NoError(t, db.Start(context.Background()))
	assert.Equal(t, StateOnline, db.State())
	assert.Equal(t, 2, db.GetNumDocs())
}

func TestDB_LiveWritesDeferredDuringReplay(t *testing.T) {
	db := NewDB(Config{Name: "test", Log: &fakeLog{}})

	db.mu.Lock()
	db.state = StateReplaying
	db.mu.Unlock()

	res, err := db.Feed(context.Background(), FeedSourceLive, Operation{Kind: OpPut, Doc: Document{ID: "doc:1"}})
	require.NoError(t, err)
	assert.Zero(t, res.Serial)
	assert.Equal(t, 0, db.GetNumDocs(), "a deferred write must not be visible until the replay/online boundary")

	db.mu.Lock()
	deferredCount := len(db.deferredOps)
	db.mu.Unlock()
	assert.Equal(t, 1, deferredCount)
}

func TestDB_PendingReconfigAppliedAtOnlineBoundary(t *testing.T) {
	db := NewDB(Config{Name: "test", Log: &fakeLog{}})

	db.mu.Lock()
	db.state = StateReplaying
	db.mu.Unlock()

	db.Reconfigure(ReconfigParams{Flags: ReconfigSchema, IdentityHash: 42})

	db.mu.Lock()
	pending := db.pendingReconfig
	db.mu.Unlock()
	require.NotNil(t, pending, "reconfiguration arriving during replay must be queued, not applied immediately")

	// Start only runs from StateInit; hand the DB back so it replays
	// and applies the queued reconfiguration at the online boundary.
	db.mu.Lock()
	db.state = StateInit
	db.mu.Unlock()

	require.NoError(t, db.Start(context.Background()))
	assert.Equal(t, uint64(42), db.identityHash)
}

func TestDB_RemoveMovesDocumentToRemovedSubDB(t *testing.T) {
	db := NewDB(Config{Name: "test", Log: &fakeLog{}})
	require.NoError(t, db.Start(context.Background()))

	_, err := db.Feed(context.Background(), FeedSourceLive, Operation{Kind: OpPut, Doc: Document{ID: "doc:1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, db.GetNumActiveDocs())

	_, err = db.Feed(context.Background(), FeedSourceLive, Operation{Kind: OpRemove, Doc: Document{ID: "doc:1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, db.GetNumActiveDocs())
	assert.True(t, db.removed.Has("doc:1"))
}

func TestDB_FlushTargetsOnePerSubDB(t *testing.T) {
	db := NewDB(Config{Name: "test", Log: &fakeLog{}})
	require.NoError(t, db.Start(context.Background()))

	targets := db.FlushTargets()
	assert.Len(t, targets, 3)
}

func TestDB_FeedRejectedAfterClose(t *testing.T) {
	db := NewDB(Config{Name: "test", Log: &fakeLog{}})
	require.NoError(t, db.Start(context.Background()))
	db.Close()

	_, err := db.Feed(context.Background(), FeedSourceLive, Operation{Kind: OpPut, Doc: Document{ID: "doc:1"}})
	assert.Error(t, err)
}

func TestDB_CompactAttributesPreservesArrayFieldsAcrossRewrite(t *testing.T) {
	db := NewDB(Config{Name: "test", Log: &fakeLog{}})
	require.NoError(t, db.Start(context.Background()))

	for i := 0; i < 20; i++ {
		id := DocumentID(fmt.Sprintf("doc:%d", i))
		_, err := db.Feed(context.Background(), FeedSourceLive, Operation{
			Kind: OpPut,
			Doc:  Document{ID: id, Fields: Fields{"embedding": []float64{float64(i), float64(i) + 0.5}}},
		})
		require.NoError(t, err)
	}
	// Remove half so their buffer slots tombstone and qualify for compaction.
	for i := 0; i < 10; i++ {
		id := DocumentID(fmt.Sprintf("doc:%d", i))
		_, err := db.Feed(context.Background(), FeedSourceLive, Operation{Kind: OpRemove, Doc: Document{ID: id}})
		require.NoError(t, err)
	}

	db.CompactAttributes(attrstore.CompactionSpec{DeadFractionThreshold: 0})

	for i := 10; i < 20; i++ {
		id := DocumentID(fmt.Sprintf("doc:%d", i))
		got, _, ok := db.ready.Get(id)
		require.True(t, ok)
		assert.Equal(t, attrstore.ArrayValue{float64(i), float64(i) + 0.5}, got.Fields["embedding"])
	}
}
