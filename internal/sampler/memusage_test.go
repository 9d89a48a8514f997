package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessMemProvider_ReportsUsage(t *testing.T) {
	p := ProcessMemProvider{Limit: 1 << 34}
	used, limit, err := p.MemoryUsage()
	require.NoError(t, err)
	assert.Greater(t, used, uint64(0))
	assert.Equal(t, uint64(1<<34), limit)
}

func TestHostMemProvider_ReportsNonZeroLimit(t *testing.T) {
	used, limit, err := HostMemProvider{}.MemoryUsage()
	require.NoError(t, err)
	assert.Greater(t, limit, uint64(0))
	assert.LessOrEqual(t, used, limit)
}
