package attrstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddGetRoundTrip(t *testing.T) {
	s := New(DefaultConfig())
	ref := s.Add(ArrayValue{1, 2, 3})

	got, ok := s.Get(ref)
	require.True(t, ok)
	assert.Equal(t, ArrayValue{1, 2, 3}, got)
}

func TestStore_NullRefNeverResolves(t *testing.T) {
	s := New(DefaultConfig())
	_, ok := s.Get(EntryRef{})
	assert.False(t, ok)
}

func TestStore_LargeArrayUsesSharedTypeID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSmallArraySize = 4
	s := New(cfg)

	ref := s.Add(make(ArrayValue, 10))
	assert.Equal(t, uint16(0), ref.TypeID)
}

func TestStore_SmallArrayTypeIDMatchesLength(t *testing.T) {
	s := New(DefaultConfig())
	ref := s.Add(ArrayValue{1, 2, 3})
	assert.EqualValues(t, 3, ref.TypeID)
}

func TestStore_RemoveTombstonesUntilReadersDrain(t *testing.T) {
	s := New(DefaultConfig())
	ref := s.Add(ArrayValue{9})

	tok := s.BeginRead()
	require.True(t, s.Remove(ref))

	// A ref published before removal stays readable while the reader
	// generation active at removal time has not yet drained, because
	// tombstoning leaves the slot's data in place.
	_, ok := s.Get(ref)
	assert.True(t, ok, "a removed ref stays readable until the reader that predates removal ends")

	s.EndRead(tok)

	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	assert.Zero(t, pending, "pending free should drain once the reader that predates removal ends")
}

func TestStore_RemoveHeldAcrossOverlappingReader(t *testing.T) {
	s := New(DefaultConfig())
	ref := s.Add(ArrayValue{9})

	tokBefore := s.BeginRead()
	require.True(t, s.Remove(ref))

	s.mu.Lock()
	pendingAfterRemove := len(s.pending)
	s.mu.Unlock()
	assert.Equal(t, 1, pendingAfterRemove)

	s.EndRead(tokBefore)

	s.mu.Lock()
	pendingAfterDrain := len(s.pending)
	s.mu.Unlock()
	assert.Zero(t, pendingAfterDrain)
}

func TestStore_NumBuffersGrowsWithFragmentation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinNumArraysForNewBuffer = 2
	cfg.HugePageSize = 64
	cfg.SmallPageSize = 16
	s := New(cfg)

	for i := 0; i < 20; i++ {
		s.Add(ArrayValue{float64(i)})
	}
	assert.GreaterOrEqual(t, s.NumBuffers(1), 2, "20 single-element arrays should overflow one small buffer")
}
