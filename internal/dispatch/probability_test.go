package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveK_ReducedWhenContentIsComparable(t *testing.T) {
	k := EffectiveK(TopKSelection{
		Hits: 100, TopKProbability: 0.95, NumGroups: 4,
		SkewRatio: 1.1, SkewThreshold: 2.0,
		ContentSize: 10000, SmallContentThreshold: 100,
	})
	assert.Less(t, k, 100)
	assert.Greater(t, k, 0)
}

func TestEffectiveK_DisabledOnSkew(t *testing.T) {
	k := EffectiveK(TopKSelection{
		Hits: 100, TopKProbability: 0.95, NumGroups: 4,
		SkewRatio: 5.0, SkewThreshold: 2.0,
		ContentSize: 10000, SmallContentThreshold: 100,
	})
	assert.Equal(t, 100, k)
}

func TestEffectiveK_DisabledOnSmallContent(t *testing.T) {
	k := EffectiveK(TopKSelection{
		Hits: 100, TopKProbability: 0.95, NumGroups: 4,
		SkewRatio: 1.0, SkewThreshold: 2.0,
		ContentSize: 10, SmallContentThreshold: 100,
	})
	assert.Equal(t, 100, k)
}

func TestEffectiveK_HigherProbabilityWidensK(t *testing.T) {
	low := EffectiveK(TopKSelection{Hits: 100, TopKProbability: 0.8, NumGroups: 4, SkewThreshold: 2, ContentSize: 10000, SmallContentThreshold: 100})
	high := EffectiveK(TopKSelection{Hits: 100, TopKProbability: 0.99, NumGroups: 4, SkewThreshold: 2, ContentSize: 10000, SmallContentThreshold: 100})
	assert.GreaterOrEqual(t, high, low)
}

func TestEffectiveK_SingleGroupReturnsHits(t *testing.T) {
	k := EffectiveK(TopKSelection{Hits: 50, NumGroups: 1, ContentSize: 10000, SmallContentThreshold: 100})
	assert.Equal(t, 50, k)
}
