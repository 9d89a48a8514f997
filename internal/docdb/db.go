package docdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vespacore/servingcore/internal/attrstore"
	"github.com/vespacore/servingcore/internal/docdb/metastore"
	"github.com/vespacore/servingcore/pkg/metrics"
)

// LifecycleState is the document DB's position in its startup sequence.
type LifecycleState int

const (
	StateInit LifecycleState = iota
	StateReplaying
	StateApplyingConfig
	StateOnline
	StateClosed
)

func (s LifecycleState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReplaying:
		return "replaying"
	case StateApplyingConfig:
		return "applying-config"
	case StateOnline:
		return "online"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TransactionLog is the subset of the durable log a document DB needs:
// sequential replay from the last known serial, and appends for new
// operations. Implemented by TxLogAdapter (over internal/txlog) in
// production and by fakes in tests.
type TransactionLog interface {
	Replay(ctx context.Context, fromSerial SerialNum, apply func(SerialNum, Operation) error) error
	Append(ctx context.Context, op Operation) (SerialNum, error)
	Sync(ctx context.Context, serial SerialNum) error
}

// FlushTarget describes one flushable component a sub-DB exposes.
type FlushTarget struct {
	Name          string
	SubDB         SubDBKind
	Priority      int
	Cost          float64
	OldestFlushed SerialNum
	NewestFlushed SerialNum
}

// DB is a per-schema document database: the three sub-DBs, the feed
// handler, and the master executor state machine that sequences
// startup, reconfiguration and shutdown.
type DB struct {
	name string

	mu          sync.Mutex
	state       LifecycleState
	lastSerial  SerialNum
	deferredOps []Operation

	attrs    *attrstore.Store
	ready    *SubDB
	notReady *SubDB
	removed  *SubDB

	log          TransactionLog
	feed         *FeedHandler
	logger       *slog.Logger
	metrics      *metrics.DocDBMetrics
	meta         *metastore.Store
	metaStorePath string

	pendingReconfig *ReconfigParams
	identityHash    uint64

	visibilityDelay    time.Duration
	maxVisibilityDelay time.Duration
}

// Config configures a new DB.
type Config struct {
	Name               string
	Log                TransactionLog
	FeedHandlerConfig  FeedHandlerConfig
	VisibilityDelay    time.Duration
	MaxVisibilityDelay time.Duration
	Logger             *slog.Logger

	// MetaStorePath, if set, opens a metastore.Store at this path
	// during Start: a local SQLite record of which sub-DB each
	// document lives in and its last-seen serial, plus each sub-DB's
	// flush range. The DB only writes to it: Start does not read it
	// back and always replays the transaction log from serial zero.
	// Leaving this empty disables the meta-store; correctness never
	// depends on it.
	MetaStorePath string
}

// NewDB constructs a DB in StateInit. Call Start to run the startup
// sequence before feeding or searching.
func NewDB(cfg Config) *DB {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := attrstore.New(attrstore.DefaultConfig())
	db := &DB{
		name:               cfg.Name,
		state:              StateInit,
		attrs:              attrs,
		ready:              NewSubDB(SubDBReady, attrs),
		notReady:           NewSubDB(SubDBNotReady, attrs),
		removed:            NewSubDB(SubDBRemoved, attrs),
		log:                cfg.Log,
		logger:             logger,
		metrics:            metrics.DefaultRegistry().DocDB(),
		metaStorePath:      cfg.MetaStorePath,
		visibilityDelay:    cfg.VisibilityDelay,
		maxVisibilityDelay: cfg.MaxVisibilityDelay,
	}
	db.feed = NewFeedHandler(cfg.FeedHandlerConfig, db.applyOperation)
	return db
}

// Start runs init → replay transaction log → apply live config → online
// on the caller's goroutine, acting as the master executor for the
// duration of startup. Deferred live-feed writes queued during replay
// are appended to the transaction log and applied at the replay/online
// boundary, applying any
// reconfiguration that arrived in the meantime first.
func (db *DB) Start(ctx context.Context) error {
	db.mu.Lock()
	if db.state != StateInit {
		db.mu.Unlock()
		return fmt.Errorf("docdb: %s: Start called in state %s", db.name, db.state)
	}
	db.state = StateReplaying
	db.mu.Unlock()

	if db.metaStorePath != "" {
		meta, err := metastore.Open(ctx, db.metaStorePath, db.logger)
		if err != nil {
			return fmt.Errorf("docdb: %s: open meta-store: %w", db.name, err)
		}
		db.meta = meta
	}

	if db.log != nil {
		if err := db.log.Replay(ctx, 0, func(serial SerialNum, op Operation) error {
			_, err := db.applyOperation(ctx, op)
			db.mu.Lock()
			if serial > db.lastSerial {
				db.lastSerial = serial
			}
			db.mu.Unlock()
			return err
		}); err != nil {
			return fmt.Errorf("docdb: %s: replay failed: %w", db.name, err)
		}
	}

	db.mu.Lock()
	db.state = StateApplyingConfig
	pending := db.pendingReconfig
	db.pendingReconfig = nil
	deferred := db.deferredOps
	db.deferredOps = nil
	db.mu.Unlock()

	if pending != nil {
		db.applyReconfig(*pending)
	}
	for _, op := range deferred {
		if db.log != nil {
			serial, err := db.log.Append(ctx, op)
			if err != nil {
				db.logger.Warn("docdb: deferred operation failed to append at online boundary", "db", db.name, "err", err)
				continue
			}
			db.mu.Lock()
			if serial > db.lastSerial {
				db.lastSerial = serial
			}
			db.mu.Unlock()
		}
		if _, err := db.applyOperation(ctx, op); err != nil {
			db.logger.Warn("docdb: deferred operation failed to apply at online boundary", "db", db.name, "err", err)
		}
	}

	db.mu.Lock()
	db.state = StateOnline
	db.mu.Unlock()
	db.logger.Info("docdb: online", "db", db.name, "last_serial", db.lastSerial)
	return nil
}

// Feed admits and applies op, appending it to the transaction log first
// (unless the op originates from replay, which never re-appends).
// During replay, live-feed writes are deferred rather than rejected.
func (db *DB) Feed(ctx context.Context, source FeedSource, op Operation) (FeedResult, error) {
	db.mu.Lock()
	if db.state == StateReplaying && source == FeedSourceLive {
		db.deferredOps = append(db.deferredOps, op)
		db.mu.Unlock()
		return FeedResult{}, nil
	}
	if db.state == StateClosed {
		db.mu.Unlock()
		return FeedResult{}, fmt.Errorf("docdb: %s: closed", db.name)
	}
	db.mu.Unlock()

	if source == FeedSourceLive && db.log != nil {
		serial, err := db.log.Append(ctx, op)
		if err != nil {
			return FeedResult{}, fmt.Errorf("docdb: %s: append to log: %w", db.name, err)
		}
		db.mu.Lock()
		if serial > db.lastSerial {
			db.lastSerial = serial
		}
		db.mu.Unlock()
	}

	return db.feed.Handle(ctx, source, op)
}

func (db *DB) applyOperation(ctx context.Context, op Operation) (FeedResult, error) {
	start := time.Now()
	sub := db.subDBFor(op)

	switch op.Kind {
	case OpPut:
		serial := db.currentSerial()
		sub.Put(op.Doc.ID, op.Doc, serial)
		db.recordMeta(ctx, op.Doc.ID, sub.Kind(), serial)
	case OpUpdate:
		existing, serial, ok := sub.Get(op.Doc.ID)
		if !ok {
			serial = db.currentSerial()
			sub.Put(op.Doc.ID, op.Doc, serial)
		} else {
			for k, v := range op.Doc.Fields {
				existing.Fields[k] = v
			}
			sub.Put(op.Doc.ID, existing, serial)
		}
		db.recordMeta(ctx, op.Doc.ID, sub.Kind(), serial)
	case OpRemove:
		db.ready.Remove(op.Doc.ID)
		db.notReady.Remove(op.Doc.ID)
		serial := db.currentSerial()
		db.removed.Put(op.Doc.ID, op.Doc, serial)
		db.recordMeta(ctx, op.Doc.ID, SubDBRemoved, serial)
	case OpGet:
		// read-only; nothing to mutate
	}

	if db.metrics != nil {
		db.metrics.FeedOpsTotal.WithLabelValues(op.Kind.String(), sub.Kind().String()).Inc()
		db.metrics.VisibilityDelaySeconds.Observe(time.Since(start).Seconds())
	}
	return FeedResult{Serial: db.currentSerial()}, nil
}

// recordMeta best-effort persists id's current sub-DB and serial to the
// meta-store, if one is configured. A failure here never fails the
// feed operation itself: the meta-store is a restart-time optimization,
// not a correctness dependency, since the transaction log remains the
// source of truth.
func (db *DB) recordMeta(ctx context.Context, id DocumentID, kind SubDBKind, serial SerialNum) {
	if db.meta == nil {
		return
	}
	if err := db.meta.Upsert(ctx, string(id), kind.String(), uint64(serial)); err != nil {
		db.logger.Warn("docdb: failed to persist meta-store record", "db", db.name, "doc", id, "err", err)
	}
}

func (db *DB) subDBFor(op Operation) *SubDB {
	if op.Kind == OpRemove {
		return db.removed
	}
	return db.ready
}

func (db *DB) currentSerial() SerialNum {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastSerial
}

// Reconfigure compares the new snapshot's identity against the current
// one and, if different, either applies it immediately (when online) or
// queues it for application at the replay/online boundary (when still
// replaying).
func (db *DB) Reconfigure(params ReconfigParams) {
	db.mu.Lock()
	if params.IdentityHash == db.identityHash {
		db.mu.Unlock()
		return
	}
	if db.state == StateReplaying || db.state == StateInit {
		db.pendingReconfig = &params
		db.mu.Unlock()
		return
	}
	db.mu.Unlock()
	db.applyReconfig(params)
}

func (db *DB) applyReconfig(params ReconfigParams) {
	db.mu.Lock()
	db.identityHash = params.IdentityHash
	db.mu.Unlock()
	if db.metrics != nil {
		db.metrics.ReconfigurationsTotal.Inc()
	}
	if params.RequiresAttributeRebuild() {
		db.CompactAttributes(attrstore.DefaultCompactionSpec())
	}
	db.logger.Info("docdb: reconfigured", "db", db.name, "flags", params.Flags)
}

// Sync blocks until the transaction log has durably persisted serial.
func (db *DB) Sync(ctx context.Context, serial SerialNum) error {
	if db.log == nil {
		return nil
	}
	return db.log.Sync(ctx, serial)
}

// GetNumDocs returns the total document count across ready and
// not-ready sub-DBs.
func (db *DB) GetNumDocs() int {
	return db.ready.NumDocs() + db.notReady.NumDocs()
}

// GetNumActiveDocs returns the document count in the ready (searchable)
// sub-DB only.
func (db *DB) GetNumActiveDocs() int {
	return db.ready.NumDocs()
}

// FlushTargets returns one flush target per sub-DB, for the caller to
// rank by priority × cost.
func (db *DB) FlushTargets() []FlushTarget {
	targets := make([]FlushTarget, 0, 3)
	for _, sub := range []*SubDB{db.ready, db.notReady, db.removed} {
		oldest, newest := sub.FlushRange()
		targets = append(targets, FlushTarget{
			Name:          fmt.Sprintf("%s-%s", db.name, sub.Kind()),
			SubDB:         sub.Kind(),
			Priority:      1,
			Cost:          float64(sub.NumDocs()),
			OldestFlushed: oldest,
			NewestFlushed: newest,
		})
		if db.meta != nil {
			if err := db.meta.SetFlushState(context.Background(), sub.Kind().String(), uint64(oldest), uint64(newest)); err != nil {
				db.logger.Warn("docdb: failed to persist flush state", "db", db.name, "subdb", sub.Kind(), "err", err)
			}
		}
	}
	if db.metrics != nil {
		db.metrics.FlushTargetsPending.Set(float64(len(targets)))
	}
	return targets
}

// State returns the DB's current lifecycle state.
func (db *DB) State() LifecycleState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state
}

// Close transitions the DB to StateClosed, closes the meta-store if one
// is open, and rejects further Feed calls.
func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state = StateClosed
	if db.meta != nil {
		if err := db.meta.Close(); err != nil {
			db.logger.Warn("docdb: failed to close meta-store", "db", db.name, "err", err)
		}
	}
}

// CompactAttributes runs one attribute-store compaction pass: buffers
// at or above spec's configured dead-fraction threshold are rewritten
// into fresh buffers, every live document ref across all three sub-DBs
// is updated to point at its new location, and the obsolete buffers
// are then released.
func (db *DB) CompactAttributes(spec attrstore.CompactionSpec) {
	ctx := db.attrs.CompactWorst(spec)

	var roots []*attrstore.EntryRef
	var commits []func()
	for _, sub := range []*SubDB{db.ready, db.notReady, db.removed} {
		subRoots, commit := sub.AttrRoots()
		roots = append(roots, subRoots...)
		commits = append(commits, commit)
	}

	ctx.Rewrite(roots)
	for _, commit := range commits {
		commit()
	}
	ctx.Finish()
}
