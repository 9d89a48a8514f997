package docdb

import (
	"sync"

	"github.com/vespacore/servingcore/internal/attrstore"
)

// docEntry is one document's current state within a sub-DB. Numeric
// array fields (attribute values) are not held directly in doc.Fields;
// they are stored in the shared attribute store and referenced here by
// EntryRef, so they can be compacted independently of document
// bookkeeping.
type docEntry struct {
	doc      Document
	attrRefs map[string]attrstore.EntryRef
	serial   SerialNum
}

// SubDB holds one of the three partitions (ready, not-ready, removed) of
// a document DB. It is safe for concurrent readers; mutation happens on
// the document DB's single master executor, but SubDB itself is
// defensively locked so tests and read-path callers don't need to care.
//
// Every SubDB belonging to one DB shares the same attribute store, so a
// document's array-field refs stay valid as it moves between the
// ready, not-ready and removed partitions.
type SubDB struct {
	kind SubDBKind

	attrs *attrstore.Store

	mu          sync.RWMutex
	docs        map[DocumentID]docEntry
	oldestFlush SerialNum
	newestFlush SerialNum
}

// NewSubDB creates an empty sub-DB of the given kind, storing array
// fields in the given attribute store.
func NewSubDB(kind SubDBKind, attrs *attrstore.Store) *SubDB {
	return &SubDB{kind: kind, attrs: attrs, docs: make(map[DocumentID]docEntry)}
}

// Put inserts or overwrites a document at the given serial. Array
// fields are split out into the shared attribute store; any refs the
// document previously held (an overwrite) are released first.
func (s *SubDB) Put(id DocumentID, doc Document, serial SerialNum) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.docs[id]; ok {
		s.releaseAttrs(old.attrRefs)
	}

	plain, refs := s.splitFields(doc.Fields)
	stored := doc
	stored.Fields = plain
	s.docs[id] = docEntry{doc: stored, attrRefs: refs, serial: serial}

	if s.oldestFlush == 0 || serial < s.oldestFlush {
		s.oldestFlush = serial
	}
	if serial > s.newestFlush {
		s.newestFlush = serial
	}
}

// FlushRange returns the oldest and newest serial numbers ever put into
// this sub-DB, for FlushTargets to report accurate flush bookkeeping.
func (s *SubDB) FlushRange() (oldest, newest SerialNum) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oldestFlush, s.newestFlush
}

// Remove deletes a document, releasing any attribute refs it held, and
// returning whether it was present.
func (s *SubDB) Remove(id DocumentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return false
	}
	s.releaseAttrs(e.attrRefs)
	delete(s.docs, id)
	return true
}

// Get returns the document stored under id, if present, with its array
// fields resolved back out of the attribute store.
func (s *SubDB) Get(id DocumentID) (Document, SerialNum, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return Document{}, 0, false
	}
	return s.materialize(e), e.serial, ok
}

// Has reports whether id is present in this sub-DB, without copying the
// document out.
func (s *SubDB) Has(id DocumentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok
}

// NumDocs returns the current document count.
func (s *SubDB) NumDocs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Each calls fn for every document currently stored, with array fields
// resolved back out of the attribute store. fn must not mutate the
// SubDB.
func (s *SubDB) Each(fn func(id DocumentID, doc Document, serial SerialNum)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, e := range s.docs {
		fn(id, s.materialize(e), e.serial)
	}
}

// Kind returns which of ready/not-ready/removed this sub-DB implements.
func (s *SubDB) Kind() SubDBKind { return s.kind }

// AttrRoots returns every live attribute EntryRef this sub-DB's
// documents hold, as pointers a attrstore.CompactionContext.Rewrite can
// mutate in place, plus a commit function the caller must invoke
// afterward to write the rewritten refs back into the sub-DB.
func (s *SubDB) AttrRoots() (roots []*attrstore.EntryRef, commit func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type target struct {
		id    DocumentID
		field string
	}
	var targets []target
	for id, e := range s.docs {
		for field, ref := range e.attrRefs {
			r := ref
			roots = append(roots, &r)
			targets = append(targets, target{id, field})
		}
	}

	commit = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, t := range targets {
			if e, ok := s.docs[t.id]; ok {
				e.attrRefs[t.field] = *roots[i]
			}
		}
	}
	return roots, commit
}

// splitFields separates array-valued fields (stored in the attribute
// store) from plain fields (held directly).
func (s *SubDB) splitFields(fields Fields) (Fields, map[string]attrstore.EntryRef) {
	if len(fields) == 0 {
		return fields, nil
	}
	plain := make(Fields, len(fields))
	var refs map[string]attrstore.EntryRef
	for name, v := range fields {
		var arr attrstore.ArrayValue
		switch fv := v.(type) {
		case attrstore.ArrayValue:
			arr = fv
		case []float64:
			arr = attrstore.ArrayValue(fv)
		default:
			plain[name] = v
			continue
		}
		if refs == nil {
			refs = make(map[string]attrstore.EntryRef, len(fields))
		}
		refs[name] = s.attrs.Add(arr)
	}
	return plain, refs
}

// materialize rebuilds a docEntry's full field set, resolving any
// attribute refs back into array values under a single read token.
func (s *SubDB) materialize(e docEntry) Document {
	if len(e.attrRefs) == 0 {
		return e.doc
	}
	out := Document{ID: e.doc.ID, Fields: make(Fields, len(e.doc.Fields)+len(e.attrRefs))}
	for k, v := range e.doc.Fields {
		out.Fields[k] = v
	}
	tok := s.attrs.BeginRead()
	defer s.attrs.EndRead(tok)
	for name, ref := range e.attrRefs {
		if arr, ok := s.attrs.Get(ref); ok {
			out.Fields[name] = arr
		}
	}
	return out
}

// releaseAttrs tombstones every attribute ref in refs. Must be called
// with s.mu held.
func (s *SubDB) releaseAttrs(refs map[string]attrstore.EntryRef) {
	for _, ref := range refs {
		s.attrs.Remove(ref)
	}
}
