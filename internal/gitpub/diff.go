package gitpub

// Diff classifies the differences between a new mapping and an old one.
// Each list is sorted. A Diff holds only keys, never records.
type Diff struct {
	// New holds paths absent from the old mapping, or present there but never
	// published. Unpublished paths are the one exception to two rules that
	// otherwise hold: a New path may be present in the old mapping, and
	// diffing a mapping that holds unpublished records against itself is not
	// empty, since those records are still owed to the remote.
	New []string
	// Changed holds paths whose remote ID or hash differs, or is missing on either side.
	Changed []string
	// Deleted holds remote IDs present in the old remote index but not the new one.
	// An ID whose path is still mapped in the new mapping without any remote ID is
	// not deleted: that record inherits it and is reported as changed.
	Deleted []string
}

// DiffMappings compares newMap against oldMap.
// There is no rename detection: a new document identical to a deleted one is
// reported as one new path and one deleted ID.
func DiffMappings(newMap, oldMap *Mapping) *Diff {
	d := &Diff{}
	for _, path := range newMap.Paths() {
		cur := newMap.byPath[path]
		old, ok := oldMap.byPath[path]
		switch {
		case !ok, old.RemoteID == "":
			d.New = append(d.New, path)
		case cur.RemoteID == "", cur.Hash == "", old.Hash == "",
			cur.RemoteID != old.RemoteID, cur.Hash != old.Hash:
			d.Changed = append(d.Changed, path)
		}
	}
	for _, id := range oldMap.RemoteIDs() {
		if newMap.HasRemoteID(id) {
			continue
		}
		if cur, ok := newMap.byPath[oldMap.byRemote[id].Path]; ok && cur.RemoteID == "" {
			continue
		}
		d.Deleted = append(d.Deleted, id)
	}
	return d
}

// Empty reports whether the diff contains no work.
func (d *Diff) Empty() bool {
	return len(d.New) == 0 && len(d.Changed) == 0 && len(d.Deleted) == 0
}

// Len returns the total number of classified entries.
func (d *Diff) Len() int {
	return len(d.New) + len(d.Changed) + len(d.Deleted)
}
