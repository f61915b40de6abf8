package gitpub

import (
	"fmt"
	"maps"
	"slices"
)

// Record is one tracked document.
// RemoteID is empty until the document has been published.
type Record struct {
	Path     string
	RemoteID string
	Hash     string
	Attrs    map[string]string
}

// Published reports whether the record has a remote identity.
func (r Record) Published() bool {
	return r.RemoteID != ""
}

func (r Record) clone() *Record {
	c := r
	c.Attrs = maps.Clone(r.Attrs)
	return &c
}

// Mapping is the two-way index between local paths and remote identities.
// Every record is indexed by path; published records are also indexed by
// remote ID, and both entries point to the same record.
// A Mapping is not safe for concurrent use.
type Mapping struct {
	byPath   map[string]*Record
	byRemote map[string]*Record
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{
		byPath:   make(map[string]*Record),
		byRemote: make(map[string]*Record),
	}
}

// Set upserts the record for path, replacing any existing record entirely.
// If rec carries a remote ID it is indexed by that ID as well. A remote ID
// already held by another path is taken over; the other record keeps its
// path but becomes unpublished.
func (m *Mapping) Set(path string, rec Record) {
	stored := rec.clone()
	stored.Path = path

	if old, ok := m.byPath[path]; ok {
		m.unindexRemote(old)
	}
	if stored.RemoteID != "" {
		if other, ok := m.byRemote[stored.RemoteID]; ok && other.Path != path {
			other.RemoteID = ""
		}
		m.byRemote[stored.RemoteID] = stored
	}
	m.byPath[path] = stored
}

// Remove deletes the record for path from both indices.
// It returns ErrNotFound if path is not mapped.
func (m *Mapping) Remove(path string) error {
	rec, ok := m.byPath[path]
	if !ok {
		return fmt.Errorf("path %q: %w", path, ErrNotFound)
	}
	m.unindexRemote(rec)
	delete(m.byPath, path)
	return nil
}

// RemoveByRemoteID deletes the record published under remoteID from both indices.
// It returns ErrNotFound if remoteID is not mapped.
func (m *Mapping) RemoveByRemoteID(remoteID string) error {
	rec, ok := m.byRemote[remoteID]
	if !ok {
		return fmt.Errorf("remote id %q: %w", remoteID, ErrNotFound)
	}
	delete(m.byRemote, remoteID)
	if cur, ok := m.byPath[rec.Path]; ok && cur == rec {
		delete(m.byPath, rec.Path)
	}
	return nil
}

func (m *Mapping) unindexRemote(rec *Record) {
	if rec.RemoteID == "" {
		return
	}
	if cur, ok := m.byRemote[rec.RemoteID]; ok && cur == rec {
		delete(m.byRemote, rec.RemoteID)
	}
}

// Get returns a copy of the record for path.
func (m *Mapping) Get(path string) (Record, bool) {
	rec, ok := m.byPath[path]
	if !ok {
		return Record{}, false
	}
	return *rec.clone(), true
}

// Lookup returns a copy of the record published under remoteID.
func (m *Mapping) Lookup(remoteID string) (Record, bool) {
	rec, ok := m.byRemote[remoteID]
	if !ok {
		return Record{}, false
	}
	return *rec.clone(), true
}

// HasPath reports whether path is in the local index.
func (m *Mapping) HasPath(path string) bool {
	_, ok := m.byPath[path]
	return ok
}

// HasRemoteID reports whether remoteID is in the remote index.
func (m *Mapping) HasRemoteID(remoteID string) bool {
	_, ok := m.byRemote[remoteID]
	return ok
}

// Paths returns the mapped local paths in sorted order.
func (m *Mapping) Paths() []string {
	return slices.Sorted(maps.Keys(m.byPath))
}

// RemoteIDs returns the mapped remote IDs in sorted order.
func (m *Mapping) RemoteIDs() []string {
	return slices.Sorted(maps.Keys(m.byRemote))
}

// Records returns copies of all records, sorted by path.
func (m *Mapping) Records() []Record {
	paths := m.Paths()
	out := make([]Record, 0, len(paths))
	for _, p := range paths {
		out = append(out, *m.byPath[p].clone())
	}
	return out
}

// Len returns the number of records.
func (m *Mapping) Len() int {
	return len(m.byPath)
}

// Copy returns a mapping that shares no state with m.
func (m *Mapping) Copy() *Mapping {
	c := NewMapping()
	for path, rec := range m.byPath {
		cp := rec.clone()
		c.byPath[path] = cp
		if cp.RemoteID != "" && m.byRemote[cp.RemoteID] == rec {
			c.byRemote[cp.RemoteID] = cp
		}
	}
	return c
}
