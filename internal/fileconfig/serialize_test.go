package fileconfig

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadSnapshot_RoundTrips(t *testing.T) {
	snap := Snapshot{
		Serial: 42,
		Files: map[FileName][]byte{
			FileRankProfiles: []byte("rank-profile default {}"),
			FileAttributes:   []byte("attribute foo {}"),
			FileIndexSchema:  []byte("schema bar {}"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap))

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.Serial, got.Serial)
	for name, payload := range snap.Files {
		gotPayload, ok := got.Get(name)
		assert.True(t, ok)
		assert.Equal(t, payload, gotPayload)
	}
}

func TestReadSnapshot_MissingExtraConfigsIsNotAnError(t *testing.T) {
	snap := Snapshot{Serial: 1, Files: map[FileName][]byte{FileRankProfiles: []byte("x")}}
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap))

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	_, ok := got.Get(FileExtraConfigs)
	assert.False(t, ok)
}

func TestWriteReadSnapshot_IncludesExtraConfigsWhenPresent(t *testing.T) {
	snap := Snapshot{Serial: 2, Files: map[FileName][]byte{
		FileRankProfiles: []byte("x"),
		FileExtraConfigs: []byte{0x01, 0x02, 0x03},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap))

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	payload, ok := got.Get(FileExtraConfigs)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, payload)
}

func TestReadSnapshot_TruncatedStreamErrors(t *testing.T) {
	snap := Snapshot{Serial: 1, Files: map[FileName][]byte{FileRankProfiles: []byte("hello world")}}
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap))

	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := ReadSnapshot(bytes.NewReader(truncated))
	assert.Error(t, err)
}
