package sampler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatfsDiskProvider_ReportsNonZeroLimit(t *testing.T) {
	p := StatfsDiskProvider{Path: t.TempDir()}
	used, limit, err := p.DiskUsage()
	require.NoError(t, err)
	assert.Greater(t, limit, uint64(0))
	assert.LessOrEqual(t, used, limit)
}

func TestWalkingDiskProvider_SumsRegularFileSizes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o600))

	p := WalkingDiskProvider{Path: dir, Limit: 1000}
	used, limit, err := p.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, uint64(150), used)
	assert.Equal(t, uint64(1000), limit)
}

func TestWalkingDiskProvider_MissingPathIsNotAnError(t *testing.T) {
	p := WalkingDiskProvider{Path: filepath.Join(t.TempDir(), "does-not-exist"), Limit: 1000}
	used, _, err := p.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), used)
}
