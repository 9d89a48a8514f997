package fileconfig

import (
	"context"
	"fmt"

	"github.com/vespacore/servingcore/internal/configsub"
)

// ConfigKeyFile is the configsub.ConfigKey name under which every file
// in a snapshot is published; the file's own FileName distinguishes
// entries ("rankprofiles.cfg", etc).
const ConfigKeyFile = "fileconfig.file"

// Source adapts a Store to configsub.Source: each call to Fetch
// returns the newest published generation as a components snapshot,
// one ConfigKey per file. Callers that also need a bootstrap phase
// (platform bundle id, graph skeleton) compose this with their own
// bootstrap source; this package only ever speaks to the per-generation
// file layout.
type Source struct {
	store *Store
}

// NewSource wraps store for use as a configsub.Source.
func NewSource(store *Store) *Source {
	return &Source{store: store}
}

// Fetch ignores keys (every file is always published) and returns the
// highest serial currently on disk as a configsub.Snapshot.
func (s *Source) Fetch(ctx context.Context, keys []configsub.ConfigKey) (*configsub.Snapshot, error) {
	serials, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("fileconfig: list generations: %w", err)
	}
	if len(serials) == 0 {
		return nil, fmt.Errorf("fileconfig: no published generation available")
	}
	latest := serials[len(serials)-1]

	snap, err := s.store.Load(latest)
	if err != nil {
		return nil, fmt.Errorf("fileconfig: load generation %d: %w", latest, err)
	}

	configs := make(map[configsub.ConfigKey]any, len(snap.Files))
	for name, payload := range snap.Files {
		configs[configsub.ConfigKey{Name: ConfigKeyFile, ID: string(name)}] = payload
	}

	return configsub.NewSnapshot(
		configsub.Generation(latest),
		configsub.KindComponents,
		configs,
		fingerprintFileBytes,
	), nil
}

func fingerprintFileBytes(_ configsub.ConfigKey, v any) string {
	payload, ok := v.([]byte)
	if !ok {
		return ""
	}
	return string(payload)
}
