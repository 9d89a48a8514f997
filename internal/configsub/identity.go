package configsub

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// NewSnapshot builds a Snapshot from configs, computing its identity
// hash via fingerprint. External sources (e.g. a file-backed config
// manager) use this rather than hashing configs themselves, so every
// snapshot's identity hash is computed the same way regardless of
// where it originated.
func NewSnapshot(gen Generation, kind Kind, configs map[ConfigKey]any, fingerprint func(ConfigKey, any) string) *Snapshot {
	return &Snapshot{
		Generation:   gen,
		Kind:         kind,
		Configs:      configs,
		IdentityHash: identityHash(configs, fingerprint),
	}
}

// identityHash computes a stable xxhash64 over a snapshot's config
// entries, independent of map iteration order. Two snapshots carrying
// the same (key, value-string) pairs produce the same identity hash
// regardless of which order they were assembled in.
func identityHash(configs map[ConfigKey]any, fingerprint func(ConfigKey, any) string) uint64 {
	keys := make([]ConfigKey, 0, len(configs))
	for k := range configs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].ID < keys[j].ID
	})

	digest := xxhash.New()
	var lenBuf [8]byte
	for _, k := range keys {
		fp := fingerprint(k, configs[k])
		writeLenPrefixed(digest, &lenBuf, k.String())
		writeLenPrefixed(digest, &lenBuf, fp)
	}
	return digest.Sum64()
}

func writeLenPrefixed(digest *xxhash.Digest, lenBuf *[8]byte, s string) {
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	digest.Write(lenBuf[:])
	digest.WriteString(s)
}
