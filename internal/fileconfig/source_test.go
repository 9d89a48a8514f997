package fileconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_FetchReturnsLatestGenerationAsSnapshot(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Publish(testSnapshot(1)))
	require.NoError(t, store.Publish(testSnapshot(2)))

	src := NewSource(store)
	snap, err := src.Fetch(context.Background(), nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, snap.Generation)
	assert.NotZero(t, snap.IdentityHash)
	assert.NotEmpty(t, snap.Configs)
}

func TestSource_FetchErrorsWithNoPublishedGenerations(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	src := NewSource(store)
	_, err = src.Fetch(context.Background(), nil)
	assert.Error(t, err)
}
