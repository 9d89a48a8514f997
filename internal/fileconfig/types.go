// Package fileconfig manages the on-disk per-generation configuration
// snapshot directory: one directory per serial number holding the
// full deterministic config set for that generation, plus an optional
// durable index of which generations exist.
package fileconfig

import "time"

// SerialNum identifies a configuration generation, matching the
// document DB's own serial numbering so the two can be correlated.
type SerialNum uint64

// FileName enumerates the fixed set of files a generation's snapshot
// directory may hold. All are small and textual except ExtraConfigs,
// which is binary and optional.
type FileName string

const (
	FileRankProfiles   FileName = "rankprofiles.cfg"
	FileAttributes     FileName = "attributes.cfg"
	FileIndexSchema    FileName = "indexschema.cfg"
	FileSummary        FileName = "summary.cfg"
	FileSummaryMap     FileName = "summarymap.cfg"
	FileJuniperRC      FileName = "juniperrc.cfg"
	FileImportedFields FileName = "importedfields.cfg"
	FileExtraConfigs   FileName = "extraconfigs.dat"
)

// requiredFiles are the files every generation must have.
// FileExtraConfigs is optional: deserialization accepts its absence.
var requiredFiles = []FileName{
	FileRankProfiles,
	FileAttributes,
	FileIndexSchema,
	FileSummary,
	FileSummaryMap,
	FileJuniperRC,
	FileImportedFields,
}

// Snapshot is one generation's full deterministic configuration
// payload, keyed by file name.
type Snapshot struct {
	Serial      SerialNum
	Files       map[FileName][]byte
	PublishedAt time.Time
}

// Get returns a file's bytes and whether it was present. A missing
// FileExtraConfigs is expected and not an error; a missing required
// file should be treated as a corrupt snapshot by the caller.
func (s Snapshot) Get(name FileName) ([]byte, bool) {
	b, ok := s.Files[name]
	return b, ok
}
