package attrstore

import "fmt"

// CompactionSpec selects which buffers compactWorst should rewrite.
type CompactionSpec struct {
	// DeadFractionThreshold selects buffers whose tombstoned-slot
	// fraction is at or above this value.
	DeadFractionThreshold float64
	// TypeIDs restricts compaction to these type ids; empty means all.
	TypeIDs []uint16
}

// DefaultCompactionSpec compacts any buffer that is at least half dead.
func DefaultCompactionSpec() CompactionSpec {
	return CompactionSpec{DeadFractionThreshold: 0.5}
}

// CompactionContext walks the pointer roots the caller supplies,
// rewriting each one that addressed a buffer selected for compaction.
// The store's mutex serializes Rewrite against concurrent Add/Remove,
// giving each root update a release-fenced store relative to later
// readers that acquire the same mutex via BeginRead/Get.
type CompactionContext struct {
	store    *Store
	remap    map[uint16]map[uint32]map[uint32]EntryRef
	obsolete map[uint16][]uint32
	applied  bool
}

// CompactWorst selects buffers exceeding spec's dead-fraction threshold,
// copies their live entries into fresh buffers, and returns a context
// the caller uses to rewrite every root that may still hold an old ref.
func (s *Store) CompactWorst(spec CompactionSpec) *CompactionContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := &CompactionContext{
		store:    s,
		remap:    make(map[uint16]map[uint32]map[uint32]EntryRef),
		obsolete: make(map[uint16][]uint32),
	}

	for typeID, tb := range s.types {
		if len(spec.TypeIDs) > 0 && !containsTypeID(spec.TypeIDs, typeID) {
			continue
		}
		// Snapshot the ids first so buffers created below are not revisited.
		bufIDs := make([]uint32, 0, len(tb.buffers))
		for bufID := range tb.buffers {
			bufIDs = append(bufIDs, bufID)
		}
		for _, bufID := range bufIDs {
			buf := tb.buffers[bufID]
			if buf.deadFraction() < spec.DeadFractionThreshold {
				continue
			}
			entries := buf.liveEntries()
			if len(entries) == 0 {
				// Nothing left to copy: retire the buffer without a replacement.
				ctx.obsolete[typeID] = append(ctx.obsolete[typeID], bufID)
				continue
			}
			fresh := newBuffer(tb.nextID, buf.elemCount, buf.capacity())
			tb.nextID++

			remapped := make(map[uint32]EntryRef, len(entries))
			for _, live := range entries {
				offset, ok := fresh.tryAlloc(live.value)
				if !ok {
					panic(fmt.Sprintf("attrstore: compaction buffer undersized for type %d", typeID))
				}
				remapped[live.offset] = EntryRef{TypeID: typeID, BufferID: fresh.id, Offset: offset}
			}

			tb.buffers[fresh.id] = fresh
			if tb.activeID == bufID {
				tb.activeID = fresh.id
			}
			ctx.remap[typeID] = mergeRemap(ctx.remap[typeID], bufID, remapped)
			ctx.obsolete[typeID] = append(ctx.obsolete[typeID], bufID)
		}
	}

	if s.metrics != nil {
		s.metrics.CompactionsTotal.Inc()
	}
	return ctx
}

func mergeRemap(existing map[uint32]map[uint32]EntryRef, bufID uint32, remapped map[uint32]EntryRef) map[uint32]map[uint32]EntryRef {
	if existing == nil {
		existing = make(map[uint32]map[uint32]EntryRef)
	}
	existing[bufID] = remapped
	return existing
}

// Rewrite updates every root whose current ref addressed a buffer this
// context compacted, in place. Roots that don't match a compacted
// buffer are left untouched. Safe to call exactly once per root set.
func (ctx *CompactionContext) Rewrite(roots []*EntryRef) {
	ctx.store.mu.Lock()
	defer ctx.store.mu.Unlock()

	for _, root := range roots {
		if root == nil || root.IsNull() {
			continue
		}
		byBuffer, ok := ctx.remap[root.TypeID]
		if !ok {
			continue
		}
		offsets, ok := byBuffer[root.BufferID]
		if !ok {
			continue
		}
		if newRef, ok := offsets[root.Offset]; ok {
			*root = newRef
		}
	}
}

// Finish schedules the buffers this context made obsolete for release.
// Must be called after Rewrite has updated every live root, never
// concurrently with another compaction of the same buffers. A buffer
// is not actually freed until every reader generation active at the
// time of this call has drained via EndRead - the same generation
// fencing Remove uses for a single tombstoned slot, applied here at
// whole-buffer granularity, so a reader that began via BeginRead
// before Finish and is still holding a pre-rewrite ref never sees its
// buffer vanish out from under it.
func (ctx *CompactionContext) Finish() {
	ctx.store.mu.Lock()
	defer ctx.store.mu.Unlock()
	if ctx.applied {
		return
	}
	ctx.applied = true

	removedAt := ctx.store.generation
	ctx.store.generation++ // new readers observe a fresh generation past this retirement

	for typeID, bufIDs := range ctx.obsolete {
		if _, ok := ctx.store.types[typeID]; !ok {
			continue
		}
		for _, id := range bufIDs {
			ctx.store.pendingBuffers = append(ctx.store.pendingBuffers, pendingBufferFree{
				typeID:              typeID,
				bufferID:            id,
				removedAtGeneration: removedAt,
			})
		}
	}
	ctx.store.reclaimLocked()
}

func containsTypeID(ids []uint16, id uint16) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
