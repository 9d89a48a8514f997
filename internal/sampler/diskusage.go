package sampler

import (
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// StatfsDiskProvider reports disk usage via the filesystem's own
// statfs(2) accounting. This is the cheap, preferred path on a normal
// local disk.
type StatfsDiskProvider struct {
	Path string
}

// DiskUsage implements DiskStatProvider.
func (p StatfsDiskProvider) DiskUsage() (used, limit uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(p.Path, &stat); err != nil {
		return 0, 0, err
	}
	limit = stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if free > limit {
		free = limit
	}
	used = limit - free
	return used, limit, nil
}

// WalkingDiskProvider reports disk usage by recursively summing
// regular-file sizes under Path, for shared filesystems where statfs
// would report cluster-wide capacity rather than this tenant's actual
// footprint.
type WalkingDiskProvider struct {
	Path  string
	Limit uint64
}

// DiskUsage implements DiskStatProvider.
func (p WalkingDiskProvider) DiskUsage() (used, limit uint64, err error) {
	err = filepath.WalkDir(p.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return statErr
		}
		if info.Mode().IsRegular() {
			used += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return used, p.Limit, nil
}
