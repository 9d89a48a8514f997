package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMergeAndPage_InterleavedRankingUnderOffset is the literal scenario:
// two shards reply [11.0, 8.5, 7.5, 3.0, 2.0] and [9.0, 8.0, 7.0, 6.0, 1.0],
// hits=3, offset=5. Expected [7.0, 6.0, 3.0].
func TestMergeAndPage_InterleavedRankingUnderOffset(t *testing.T) {
	shardA := scoredHits(11.0, 8.5, 7.5, 3.0, 2.0)
	shardB := scoredHits(9.0, 8.0, 7.0, 6.0, 1.0)

	all := append(append([]Hit(nil), shardA...), shardB...)
	page := mergeAndPage(all, 5, 3)

	require := []float64{7.0, 6.0, 3.0}
	assert.Len(t, page, 3)
	for i, want := range require {
		assert.Equal(t, want, page[i].Score)
	}
}

func TestMergeAndPage_MetaHitsBypassRankingAndOffset(t *testing.T) {
	hits := []Hit{
		{GlobalID: "m1", Meta: true},
		{GlobalID: "a", Score: 5},
		{GlobalID: "b", Score: 10},
		{GlobalID: "m2", Meta: true},
	}
	page := mergeAndPage(hits, 0, 1)

	var meta, ranked []Hit
	for _, h := range page {
		if h.Meta {
			meta = append(meta, h)
		} else {
			ranked = append(ranked, h)
		}
	}
	assert.Len(t, ranked, 1)
	assert.Equal(t, "b", ranked[0].GlobalID)
	assert.Len(t, meta, 2)
	assert.Equal(t, "m1", meta[0].GlobalID, "meta hits must preserve insertion order")
	assert.Equal(t, "m2", meta[1].GlobalID)
}

// TestMergeAndPage_MatchesGlobalSortedMerge is property 6: for any pair
// of shard hit lists, the interleaved merge truncated to hits equals the
// globally sorted merge of the union truncated to hits.
func TestMergeAndPage_MatchesGlobalSortedMerge(t *testing.T) {
	cases := [][2][]float64{
		{{11, 8.5, 7.5, 3, 2}, {9, 8, 7, 6, 1}},
		{{1, 2, 3}, {4, 5, 6}},
		{{5}, {}},
		{{}, {}},
	}
	for _, c := range cases {
		a := scoredHits(c[0]...)
		b := scoredHits(c[1]...)
		limit := 3

		got := mergeAndPage(append(append([]Hit(nil), a...), b...), 0, limit)
		want := globalSortedMerge(a, b, limit)

		assert.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i].Score, got[i].Score)
		}
	}
}

// TestMergeAndPage_TiedScoreBreaksByDistributionKeyThenGlobalID verifies
// the secondary/tertiary sort keys: hits tied on score must order by
// distribution key ascending, and hits tied on both score and
// distribution key must order by global id ascending.
func TestMergeAndPage_TiedScoreBreaksByDistributionKeyThenGlobalID(t *testing.T) {
	hits := []Hit{
		{GlobalID: "z", Score: 5, DistributionKey: 2},
		{GlobalID: "b", Score: 5, DistributionKey: 1},
		{GlobalID: "a", Score: 5, DistributionKey: 1},
		{GlobalID: "x", Score: 9, DistributionKey: 7},
	}

	page := mergeAndPage(hits, 0, len(hits))

	want := []string{"x", "a", "b", "z"}
	got := make([]string, len(page))
	for i, h := range page {
		got[i] = h.GlobalID
	}
	assert.Equal(t, want, got)
}

func TestGlobalSortedMerge_TiedScoreBreaksByDistributionKeyThenGlobalID(t *testing.T) {
	a := []Hit{{GlobalID: "b", Score: 1, DistributionKey: 1}}
	b := []Hit{{GlobalID: "a", Score: 1, DistributionKey: 1}, {GlobalID: "c", Score: 1, DistributionKey: 2}}

	got := globalSortedMerge(a, b, 3)

	want := []string{"a", "b", "c"}
	gotIDs := make([]string, len(got))
	for i, h := range got {
		gotIDs[i] = h.GlobalID
	}
	assert.Equal(t, want, gotIDs)
}

func scoredHits(scores ...float64) []Hit {
	hits := make([]Hit, len(scores))
	for i, s := range scores {
		hits[i] = Hit{GlobalID: "h", Score: s}
	}
	return hits
}
