package txlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Config controls segment rotation.
type Config struct {
	Dir string
	// MaxSegmentBytes bounds how large an active segment grows before
	// it is closed (trailer written) and a fresh one started.
	MaxSegmentBytes int64
}

// DefaultMaxSegmentBytes rotates every 64 MiB, a size chosen to keep
// replay-from-scratch and checksum verification cheap without
// fragmenting the log into an unmanageable number of small files.
const DefaultMaxSegmentBytes = 64 << 20

func segmentPath(dir string, startSerial uint64) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%020d.log", startSerial))
}

// Log is an append-only, serial-numbered record stream split across
// rotating segment files under Dir. Exactly one writer may hold a Log
// open at a time; replay supports concurrent readers over the
// immutable, closed segments.
type Log struct {
	cfg Config

	mu          sync.Mutex
	active      *os.File
	activeStart uint64
	activeBytes int64
	nextSerial  uint64
	durable     uint64
	logger      *slog.Logger
}

// Open opens or creates the log directory, determining the next
// serial number to assign from the highest record found across all
// segments (via a lightweight replay), and opens the final segment for
// continued appends.
func Open(cfg Config, logger *slog.Logger) (*Log, error) {
	if cfg.MaxSegmentBytes <= 0 {
		cfg.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("txlog: create log dir: %w", err)
	}

	l := &Log{cfg: cfg, logger: logger}

	segments, err := l.listSegments()
	if err != nil {
		return nil, err
	}

	var lastSerial uint64
	seen := false
	for _, seg := range segments {
		if err := readSegment(segmentPath(cfg.Dir, seg), func(rec Record) error {
			if !seen || rec.Serial > lastSerial {
				lastSerial = rec.Serial
				seen = true
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("txlog: scan segment for recovery: %w", err)
		}
	}
	if seen {
		l.nextSerial = lastSerial + 1
		l.durable = lastSerial
	}

	startSerial := uint64(0)
	if len(segments) > 0 {
		startSerial = segments[len(segments)-1]
	}
	path := segmentPath(cfg.Dir, startSerial)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("txlog: open active segment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	l.active = f
	l.activeStart = startSerial
	l.activeBytes = info.Size()

	return l, nil
}

func (l *Log) listSegments() ([]uint64, error) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var starts []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "segment-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "segment-"), ".log")
		n, err := strconv.ParseUint(numStr, 10, 64)
		if err != nil {
			continue
		}
		starts = append(starts, n)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

// Append assigns the next serial number, writes the record, and
// returns the assigned serial. The write is not guaranteed durable
// until a subsequent Sync for that serial (or higher) returns.
func (l *Log) Append(ctx context.Context, recordType uint8, payload []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	serial := l.nextSerial
	rec := Record{Serial: serial, Type: recordType, Payload: payload}
	buf := rec.appendTo(make([]byte, 0, rec.encodedSize()))

	if _, err := l.active.Write(buf); err != nil {
		return 0, fmt.Errorf("txlog: append record %d: %w", serial, err)
	}
	l.nextSerial++
	l.activeBytes += int64(len(buf))

	if l.activeBytes >= l.cfg.MaxSegmentBytes {
		if err := l.rotateLocked(); err != nil {
			return serial, fmt.Errorf("txlog: rotate after append %d: %w", serial, err)
		}
	}
	return serial, nil
}

// rotateLocked closes the active segment (writing its trailer) and
// opens a fresh one starting at the next serial. Caller must hold l.mu.
func (l *Log) rotateLocked() error {
	if err := writeSegmentTrailer(l.active); err != nil {
		return err
	}
	if err := l.active.Sync(); err != nil {
		return err
	}
	l.durable = l.nextSerial - 1
	if err := l.active.Close(); err != nil {
		return err
	}

	path := segmentPath(l.cfg.Dir, l.nextSerial)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	l.active = f
	l.activeStart = l.nextSerial
	l.activeBytes = 0
	l.logger.Info("txlog: rotated segment", "next_start_serial", l.activeStart)
	return nil
}

// Sync fsyncs the active segment and reports whether serial is now
// durable. It always flushes regardless of serial (the log has no way
// to fsync only part of a file), so every call makes every
// already-appended record durable.
func (l *Log) Sync(ctx context.Context, serial uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.active.Sync(); err != nil {
		return fmt.Errorf("txlog: sync: %w", err)
	}
	if l.nextSerial > 0 && l.nextSerial-1 > l.durable {
		l.durable = l.nextSerial - 1
	}
	if serial > l.durable {
		return fmt.Errorf("txlog: serial %d not yet durable (durable up to %d)", serial, l.durable)
	}
	return nil
}

// Replay delivers every record with Serial >= fromSerial, across all
// segments, in ascending serial order, calling fn for each. Replaying
// the same log from the same fromSerial always yields the same
// sequence, since segments are immutable once rotated and the active
// segment is only ever appended to.
func (l *Log) Replay(ctx context.Context, fromSerial uint64, fn func(Record) error) error {
	l.mu.Lock()
	segments, err := l.listSegments()
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("txlog: list segments for replay: %w", err)
	}

	for _, start := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := readSegment(segmentPath(l.cfg.Dir, start), func(rec Record) error {
			if rec.Serial < fromSerial {
				return nil
			}
			return fn(rec)
		})
		if err != nil {
			return fmt.Errorf("txlog: replay segment starting at %d: %w", start, err)
		}
	}
	return nil
}

// Close flushes and closes the active segment without writing a
// trailer - the segment remains the active (not-yet-closed) one on
// next Open, so any truncated trailing record is still tolerated.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.active.Sync(); err != nil {
		return err
	}
	return l.active.Close()
}
