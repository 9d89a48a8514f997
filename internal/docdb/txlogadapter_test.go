package docdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespacore/servingcore/internal/txlog"
)

func newTestAdapter(t *testing.T) *TxLogAdapter {
	t.Helper()
	log, err := txlog.Open(txlog.Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return NewTxLogAdapter(log)
}

func TestTxLogAdapter_AppendAndReplayRoundTripsOperations(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	ops := []Operation{
		{Kind: OpPut, Doc: Document{ID: "doc:1", Fields: Fields{"a": int64(1)}}, TimestampUnix: 100},
		{Kind: OpUpdate, Doc: Document{ID: "doc:1", Fields: Fields{"a": int64(2)}}, TimestampUnix: 101},
		{Kind: OpRemove, Doc: Document{ID: "doc:1"}, TimestampUnix: 102},
	}
	for _, op := range ops {
		_, err := adapter.Append(ctx, op)
		require.NoError(t, err)
	}

	var replayed []Operation
	require.NoError(t, adapter.Replay(ctx, 0, func(serial SerialNum, op Operation) error {
		replayed = append(replayed, op)
		return nil
	}))

	require.Len(t, replayed, 3)
	assert.Equal(t, OpPut, replayed[0].Kind)
	assert.Equal(t, OpUpdate, replayed[1].Kind)
	assert.Equal(t, OpRemove, replayed[2].Kind)
	assert.Equal(t, DocumentID("doc:1"), replayed[0].Doc.ID)
	assert.Equal(t, int64(2), replayed[1].Doc.Fields["a"])
}

func TestTxLogAdapter_SyncReflectsAppendedSerial(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	serial, err := adapter.Append(ctx, Operation{Kind: OpPut, Doc: Document{ID: "doc:1"}})
	require.NoError(t, err)
	assert.NoError(t, adapter.Sync(ctx, serial))
}
