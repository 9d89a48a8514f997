package dispatch

import "sort"

// hitLess orders two hits by score descending, breaking ties by
// distribution key ascending and then global id ascending, so that two
// shards returning equal-scored hits still merge into one deterministic
// order regardless of which shard answered first.
func hitLess(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DistributionKey != b.DistributionKey {
		return a.DistributionKey < b.DistributionKey
	}
	return a.GlobalID < b.GlobalID
}

// mergeAndPage merges hits from every shard reply by descending score
// (ties broken by distribution key then global id), applies
// offset/limit only to the non-meta (ranked) hits, then appends meta
// hits in their original insertion order. Meta hits bypass ranking
// entirely and never count toward offset or limit.
func mergeAndPage(hits []Hit, offset, limit int) []Hit {
	meta := make([]Hit, 0)
	ranked := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Meta {
			meta = append(meta, h)
			continue
		}
		ranked = append(ranked, h)
	}

	sort.SliceStable(ranked, func(i, j int) bool { return hitLess(ranked[i], ranked[j]) })

	start := offset
	if start > len(ranked) {
		start = len(ranked)
	}
	end := start + limit
	if end > len(ranked) || limit < 0 {
		end = len(ranked)
	}
	if end < start {
		end = start
	}

	page := append([]Hit(nil), ranked[start:end]...)
	return append(page, meta...)
}

// globalSortedMerge is the reference definition property 6 checks
// against: sort the full union by score descending, distribution key
// ascending, global id ascending, then truncate.
func globalSortedMerge(a, b []Hit, limit int) []Hit {
	all := append(append([]Hit(nil), a...), b...)
	sort.SliceStable(all, func(i, j int) bool { return hitLess(all[i], all[j]) })
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
