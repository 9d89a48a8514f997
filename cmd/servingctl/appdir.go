package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vespacore/servingcore/internal/fileconfig"
)

// applicationFiles maps each on-disk config file an application
// directory must contain to the snapshot file name servingd expects.
var applicationFiles = []fileconfig.FileName{
	fileconfig.FileRankProfiles,
	fileconfig.FileAttributes,
	fileconfig.FileIndexSchema,
	fileconfig.FileSummary,
	fileconfig.FileSummaryMap,
	fileconfig.FileJuniperRC,
	fileconfig.FileImportedFields,
}

// nextSerial returns one past the highest serial currently published
// in store, or 1 if store is empty.
func nextSerial(store *fileconfig.Store) (fileconfig.SerialNum, error) {
	serials, err := store.List()
	if err != nil {
		return 0, fmt.Errorf("servingctl: list published generations: %w", err)
	}
	if len(serials) == 0 {
		return 1, nil
	}
	return serials[len(serials)-1] + 1, nil
}

// loadApplicationDirectory reads every required config file out of
// dir into a Snapshot, failing if any are missing. extraconfigs.dat is
// read too when present, matching fileconfig.Snapshot's optional file.
func loadApplicationDirectory(dir string, serial fileconfig.SerialNum) (fileconfig.Snapshot, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return fileconfig.Snapshot{}, fmt.Errorf("servingctl: application directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fileconfig.Snapshot{}, fmt.Errorf("servingctl: %q is not a directory", dir)
	}

	files := make(map[fileconfig.FileName][]byte, len(applicationFiles)+1)
	for _, name := range applicationFiles {
		path := filepath.Join(dir, string(name))
		b, err := os.ReadFile(path)
		if err != nil {
			return fileconfig.Snapshot{}, fmt.Errorf("servingctl: missing %s in %q: %w", name, dir, err)
		}
		files[name] = b
	}
	if b, err := os.ReadFile(filepath.Join(dir, string(fileconfig.FileExtraConfigs))); err == nil {
		files[fileconfig.FileExtraConfigs] = b
	} else if !os.IsNotExist(err) {
		return fileconfig.Snapshot{}, fmt.Errorf("servingctl: read %s: %w", fileconfig.FileExtraConfigs, err)
	}

	return fileconfig.Snapshot{Serial: serial, Files: files}, nil
}

// pendingRoot returns the staging directory prepare writes into and
// activate reads from, alongside the daemon's published config root.
func pendingRoot(target string) string {
	return filepath.Join(target, ".pending")
}
