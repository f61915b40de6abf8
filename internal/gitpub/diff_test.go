package gitpub_test

import (
	"slices"
	"testing"

	"gitpub-go/internal/gitpub"
	"gitpub-go/internal/testutil"
)

func TestDiffMappings(t *testing.T) {
	tests := []struct {
		name        string
		newMap      *gitpub.Mapping
		oldMap      *gitpub.Mapping
		wantNew     []string
		wantChanged []string
		wantDeleted []string
	}{
		{
			name:   "identical mappings",
			newMap: testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"}),
			oldMap: testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"}),
		},
		{
			name:    "path absent from old",
			newMap:  testutil.NewMapping(gitpub.Record{Path: "a.rst", Hash: "h1"}),
			oldMap:  gitpub.NewMapping(),
			wantNew: []string{"a.rst"},
		},
		{
			name:    "old record never published",
			newMap:  testutil.NewMapping(gitpub.Record{Path: "a.rst", Hash: "h1"}),
			oldMap:  testutil.NewMapping(gitpub.Record{Path: "a.rst", Hash: "h1"}),
			wantNew: []string{"a.rst"},
		},
		{
			name:        "hash differs",
			newMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h2"}),
			oldMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"}),
			wantChanged: []string{"a.rst"},
		},
		{
			name:        "missing hash on new side",
			newMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1"}),
			oldMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"}),
			wantChanged: []string{"a.rst"},
		},
		{
			name:        "missing hash on old side",
			newMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"}),
			oldMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1"}),
			wantChanged: []string{"a.rst"},
		},
		{
			name:        "remote id differs",
			newMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "2", Hash: "h1"}),
			oldMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"}),
			wantChanged: []string{"a.rst"},
			wantDeleted: []string{"1"},
		},
		{
			name:        "path without remote id inherits it",
			newMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", Hash: "h2"}),
			oldMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"}),
			wantChanged: []string{"a.rst"},
		},
		{
			name:        "remote id absent from new",
			newMap:      gitpub.NewMapping(),
			oldMap:      testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "42", Hash: "h1"}),
			wantDeleted: []string{"42"},
		},
		{
			name: "renamed document is new plus deleted",
			newMap: testutil.NewMapping(
				gitpub.Record{Path: "b.rst", Hash: "h1"},
			),
			oldMap: testutil.NewMapping(
				gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"},
			),
			wantNew:     []string{"b.rst"},
			wantDeleted: []string{"1"},
		},
		{
			name: "lists are sorted",
			newMap: testutil.NewMapping(
				gitpub.Record{Path: "c.rst", Hash: "h"},
				gitpub.Record{Path: "a.rst", Hash: "h"},
				gitpub.Record{Path: "b.rst", Hash: "h"},
			),
			oldMap: testutil.NewMapping(
				gitpub.Record{Path: "x.rst", RemoteID: "9", Hash: "h"},
				gitpub.Record{Path: "y.rst", RemoteID: "10", Hash: "h"},
			),
			wantNew:     []string{"a.rst", "b.rst", "c.rst"},
			wantDeleted: []string{"10", "9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gitpub.DiffMappings(tt.newMap, tt.oldMap)
			if !slices.Equal(d.New, tt.wantNew) {
				t.Errorf("New = %v, want %v", d.New, tt.wantNew)
			}
			if !slices.Equal(d.Changed, tt.wantChanged) {
				t.Errorf("Changed = %v, want %v", d.Changed, tt.wantChanged)
			}
			if !slices.Equal(d.Deleted, tt.wantDeleted) {
				t.Errorf("Deleted = %v, want %v", d.Deleted, tt.wantDeleted)
			}
			wantLen := len(tt.wantNew) + len(tt.wantChanged) + len(tt.wantDeleted)
			if d.Len() != wantLen || d.Empty() != (wantLen == 0) {
				t.Errorf("Len() = %d, Empty() = %v, want %d entries", d.Len(), d.Empty(), wantLen)
			}
		})
	}
}

func TestDiffMappings_SelfIsEmptyForPublishedRecords(t *testing.T) {
	m := testutil.NewMapping(
		gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"},
		gitpub.Record{Path: "b/c.rst", RemoteID: "2", Hash: "h2", Attrs: map[string]string{"k": "v"}},
	)
	if d := gitpub.DiffMappings(m, m.Copy()); !d.Empty() {
		t.Errorf("DiffMappings(m, m) = %+v, want empty", d)
	}
}

func TestDiffMappings_SelfReportsUnpublishedAsNew(t *testing.T) {
	m := testutil.NewMapping(
		gitpub.Record{Path: "a.rst", Hash: "h1"},
		gitpub.Record{Path: "b.rst", RemoteID: "2", Hash: "h2"},
	)
	d := gitpub.DiffMappings(m, m.Copy())
	if !slices.Equal(d.New, []string{"a.rst"}) || len(d.Changed) != 0 || len(d.Deleted) != 0 {
		t.Errorf("DiffMappings(m, m) = %+v, want only a.rst as new", d)
	}
	if _, ok := m.Get("a.rst"); !ok {
		t.Error("a.rst missing from the old mapping")
	}
}

func TestDiffMappings_DoesNotModifyInputs(t *testing.T) {
	newMap := testutil.NewMapping(gitpub.Record{Path: "a.rst", Hash: "h2"})
	oldMap := testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"})

	gitpub.DiffMappings(newMap, oldMap)

	if rec, _ := newMap.Get("a.rst"); rec.RemoteID != "" {
		t.Errorf("new record RemoteID = %q, want empty", rec.RemoteID)
	}
	if rec, _ := oldMap.Get("a.rst"); rec.RemoteID != "1" || rec.Hash != "h1" {
		t.Errorf("old record = %+v, want unchanged", rec)
	}
}
