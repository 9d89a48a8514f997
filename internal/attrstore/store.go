package attrstore

import (
	"fmt"
	"sync"

	"github.com/vespacore/servingcore/pkg/metrics"
)

// Config configures a Store's storage layout.
type Config struct {
	MaxSmallArraySize        int
	HugePageSize             int
	SmallPageSize            int
	MinNumArraysForNewBuffer int
}

// DefaultConfig returns layout parameters matching a typical attribute
// field: small arrays up to 8 elements packed by exact size, large
// arrays in their own shared buffer.
func DefaultConfig() Config {
	return Config{
		MaxSmallArraySize:        8,
		HugePageSize:             1 << 21,
		SmallPageSize:            1 << 12,
		MinNumArraysForNewBuffer: 64,
	}
}

// typeBuffers is the set of buffers backing one type id, plus the index
// of the buffer currently receiving new allocations.
type typeBuffers struct {
	elemCount int
	buffers   map[uint32]*buffer
	activeID  uint32
	nextID    uint32
}

type pendingFree struct {
	typeID             uint16
	bufferID           uint32
	offset             uint32
	removedAtGeneration Generation
}

// pendingBufferFree is pendingFree's whole-buffer counterpart, used by
// compaction to retire an obsolete buffer only once every reader
// generation active when it was made obsolete has drained.
type pendingBufferFree struct {
	typeID              uint16
	bufferID            uint32
	removedAtGeneration Generation
}

// ReadToken is returned by BeginRead and must be passed to EndRead once
// the caller is done dereferencing refs obtained during that read.
type ReadToken struct {
	generation Generation
}

// Store is a content-addressed slab allocator for small and large
// arrays, with generation-fenced reclamation of removed entries.
type Store struct {
	cfg Config

	mu             sync.Mutex
	types          map[uint16]*typeBuffers
	pending        []pendingFree
	pendingBuffers []pendingBufferFree

	generation    Generation
	activeReaders map[Generation]int

	metrics *metrics.AttrStoreMetrics
}

// New creates an empty Store.
func New(cfg Config) *Store {
	return &Store{
		cfg:           cfg,
		types:         make(map[uint16]*typeBuffers),
		activeReaders: make(map[Generation]int),
		generation:    1,
		metrics:       metrics.DefaultRegistry().AttrStore(),
	}
}

// BeginRead registers the caller as observing the store's current
// generation. Readers must call EndRead when done so held refs removed
// before this read began are eventually reclaimed.
func (s *Store) BeginRead() ReadToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.generation
	s.activeReaders[gen]++
	return ReadToken{generation: gen}
}

// EndRead releases a ReadToken obtained from BeginRead.
func (s *Store) EndRead(tok ReadToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeReaders[tok.generation]--
	if s.activeReaders[tok.generation] <= 0 {
		delete(s.activeReaders, tok.generation)
	}
	s.reclaimLocked()
}

// Add stores array, returning its EntryRef.
func (s *Store) Add(array ArrayValue) EntryRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	typeID := typeIDForLength(len(array), s.cfg.MaxSmallArraySize)
	tb, ok := s.types[typeID]
	if !ok {
		// Buffer ids start at 1 so no stored array gets the null ref.
		tb = &typeBuffers{elemCount: int(typeID), buffers: make(map[uint32]*buffer), nextID: 1}
		s.types[typeID] = tb
	}

	if active, ok := tb.buffers[tb.activeID]; ok && len(tb.buffers) > 0 {
		if offset, ok := active.tryAlloc(array); ok {
			return EntryRef{TypeID: typeID, BufferID: active.id, Offset: offset}
		}
	}

	capacity := s.bufferCapacity(typeID)
	id := tb.nextID
	tb.nextID++
	buf := newBuffer(id, int(typeID), capacity)
	tb.buffers[id] = buf
	tb.activeID = id

	offset, ok := buf.tryAlloc(array)
	if !ok {
		panic(fmt.Sprintf("attrstore: freshly allocated buffer rejected an array of length %d", len(array)))
	}
	if s.metrics != nil {
		s.metrics.BuffersActive.WithLabelValues(fmt.Sprint(typeID)).Set(float64(len(tb.buffers)))
	}
	return EntryRef{TypeID: typeID, BufferID: id, Offset: offset}
}

func (s *Store) bufferCapacity(typeID uint16) int {
	elemSize := 8 // float64
	elemCount := int(typeID)
	if typeID == largeArrayTypeID {
		elemCount = 1
	}
	capacity := s.cfg.HugePageSize / (elemSize * elemCount)
	if s.cfg.SmallPageSize > 0 {
		unit := s.cfg.SmallPageSize / (elemSize * max(elemCount, 1))
		if unit > 0 {
			capacity = (capacity / unit) * unit
		}
	}
	if capacity < s.cfg.MinNumArraysForNewBuffer {
		capacity = s.cfg.MinNumArraysForNewBuffer
	}
	return capacity
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Get returns the array stored at ref, or false if ref is null, was
// removed and its slot has since been reclaimed, or points at a buffer
// or slot that does not exist. A removed ref stays readable until
// reclamation.
func (s *Store) Get(ref EntryRef) (ArrayValue, bool) {
	if ref.IsNull() {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tb, ok := s.types[ref.TypeID]
	if !ok {
		return nil, false
	}
	buf, ok := tb.buffers[ref.BufferID]
	if !ok {
		return nil, false
	}
	return buf.get(ref.Offset)
}

// Remove tombstones ref. Its storage is not actually freed until every
// reader generation active at the time of this call has drained via
// EndRead, preserving readability for any in-flight reader that already
// holds ref.
func (s *Store) Remove(ref EntryRef) bool {
	if ref.IsNull() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tb, ok := s.types[ref.TypeID]
	if !ok {
		return false
	}
	buf, ok := tb.buffers[ref.BufferID]
	if !ok {
		return false
	}
	if !buf.tombstoneSlot(ref.Offset) {
		return false
	}

	removedAt := s.generation
	s.generation++ // new readers observe a fresh generation past this removal
	s.pending = append(s.pending, pendingFree{
		typeID: ref.TypeID, bufferID: ref.BufferID, offset: ref.Offset,
		removedAtGeneration: removedAt,
	})
	if s.metrics != nil {
		s.metrics.HeldRefsPending.Set(float64(len(s.pending)))
		s.metrics.DeadBytesRatio.WithLabelValues(fmt.Sprint(ref.TypeID)).Set(buf.deadFraction())
	}
	s.reclaimLocked()
	return true
}

// reclaimLocked frees any pending slot removal, and any pending whole
// buffer retirement from compaction, whose removedAtGeneration has no
// surviving reader still on or before it. Must be called with mu held.
func (s *Store) reclaimLocked() {
	if len(s.pending) > 0 {
		remaining := s.pending[:0]
		for _, p := range s.pending {
			if s.hasReaderAtOrBefore(p.removedAtGeneration) {
				remaining = append(remaining, p)
				continue
			}
			if tb, ok := s.types[p.typeID]; ok {
				if buf, ok := tb.buffers[p.bufferID]; ok {
					buf.reclaimSlot(p.offset)
				}
			}
		}
		s.pending = remaining
		if s.metrics != nil {
			s.metrics.HeldRefsPending.Set(float64(len(s.pending)))
		}
	}

	if len(s.pendingBuffers) == 0 {
		return
	}
	remainingBuffers := s.pendingBuffers[:0]
	touched := make(map[uint16]bool)
	for _, p := range s.pendingBuffers {
		if s.hasReaderAtOrBefore(p.removedAtGeneration) {
			remainingBuffers = append(remainingBuffers, p)
			continue
		}
		if tb, ok := s.types[p.typeID]; ok {
			delete(tb.buffers, p.bufferID)
			touched[p.typeID] = true
		}
	}
	s.pendingBuffers = remainingBuffers
	if s.metrics != nil {
		for typeID := range touched {
			if tb, ok := s.types[typeID]; ok {
				s.metrics.BuffersActive.WithLabelValues(fmt.Sprint(typeID)).Set(float64(len(tb.buffers)))
			}
		}
	}
}

func (s *Store) hasReaderAtOrBefore(gen Generation) bool {
	for active := range s.activeReaders {
		if active <= gen {
			return true
		}
	}
	return false
}

// NumBuffers returns the buffer count for typeID, for tests and
// compaction-threshold decisions.
func (s *Store) NumBuffers(typeID uint16) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	tb, ok := s.types[typeID]
	if !ok {
		return 0
	}
	return len(tb.buffers)
}
