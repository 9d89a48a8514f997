package txlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRawSegment(t *testing.T, dir string, records []Record, closed bool) string {
	t.Helper()
	path := filepath.Join(dir, "segment-00000000000000000000.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	for _, r := range records {
		_, err := f.Write(r.appendTo(nil))
		require.NoError(t, err)
	}
	if closed {
		require.NoError(t, writeSegmentTrailer(f))
	}
	return path
}

func TestReadSegment_ClosedSegmentVerifiesChecksum(t *testing.T) {
	dir := t.TempDir()
	path := writeRawSegment(t, dir, []Record{
		{Serial: 0, Type: 1, Payload: []byte("alpha")},
		{Serial: 1, Type: 2, Payload: []byte("beta")},
	}, true)

	var got []Record
	require.NoError(t, readSegment(path, func(r Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, []byte("alpha"), got[0].Payload)
	assert.Equal(t, []byte("beta"), got[1].Payload)
}

func TestReadSegment_CorruptedClosedSegmentErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeRawSegment(t, dir, []Record{
		{Serial: 0, Type: 1, Payload: []byte("alpha")},
	}, true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte inside the record region, leaving the trailer intact,
	// so the checksum no longer matches.
	data[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	err = readSegment(path, func(Record) error { return nil })
	assert.Error(t, err)
}

func TestReadSegment_ActiveSegmentTruncatedTailIsTolerated(t *testing.T) {
	dir := t.TempDir()
	path := writeRawSegment(t, dir, []Record{
		{Serial: 0, Type: 1, Payload: []byte("complete")},
	}, false)

	// Simulate a crash mid-write: append a partial record (header only,
	// no payload bytes).
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	partial := Record{Serial: 1, Type: 1, Payload: []byte("truncated")}.appendTo(nil)
	_, err = f.Write(partial[:headerSize+2])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var got []Record
	require.NoError(t, readSegment(path, func(r Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, []byte("complete"), got[0].Payload)
}

func TestReadSegment_EmptyActiveSegmentYieldsNoRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeRawSegment(t, dir, nil, false)

	var calls int
	require.NoError(t, readSegment(path, func(Record) error {
		calls++
		return nil
	}))
	assert.Equal(t, 0, calls)
}
