package gitpub_test

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitpub-go/internal/gitpub"
	"gitpub-go/internal/testutil"
)

func TestMapping_Encode(t *testing.T) {
	m := testutil.NewMapping(gitpub.Record{
		Path: "a.rst", RemoteID: "1", Hash: "h1", Attrs: map[string]string{"tag": "x"},
	})
	spec := gitpub.RemoteSpec{Type: "memory", Config: map[string]string{"name": "m"}}

	var buf bytes.Buffer
	if err := m.Encode(&buf, spec); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := `{
    "docs": {
        "a.rst": {
            "attrs": {
                "tag": "x"
            },
            "hash": "h1",
            "id": "1"
        }
    },
    "remoteConfig": {
        "name": "m"
    },
    "remoteType": "memory"
}
`
	if got := buf.String(); got != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", got, want)
	}
}

func TestMapping_EncodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := gitpub.NewMapping().Encode(&buf, gitpub.RemoteSpec{}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{
    "docs": {},
    "remoteConfig": {},
    "remoteType": ""
}
`
	if got := buf.String(); got != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", got, want)
	}
}

func TestMapping_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".gitpub", "origin.json")
	m := testutil.NewMapping(
		gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h1"},
		gitpub.Record{Path: "docs/b.rst", RemoteID: "2", Hash: "h2", Attrs: map[string]string{"space": "DOC"}},
		gitpub.Record{Path: "draft.rst"},
	)
	spec := gitpub.RemoteSpec{Type: "filesystem", Config: map[string]string{"root": "/srv/docs"}}

	if err := m.Save(path, spec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, gotSpec, err := gitpub.LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping() error = %v", err)
	}
	if gotSpec.Type != "filesystem" || gotSpec.Config["root"] != "/srv/docs" {
		t.Errorf("LoadMapping() spec = %+v", gotSpec)
	}
	if loaded.Len() != 3 {
		t.Fatalf("LoadMapping() Len = %d, want 3", loaded.Len())
	}
	for _, want := range m.Records() {
		got, ok := loaded.Get(want.Path)
		if !ok {
			t.Errorf("record %s missing after load", want.Path)
			continue
		}
		if got.RemoteID != want.RemoteID || got.Hash != want.Hash || got.Attrs["space"] != want.Attrs["space"] {
			t.Errorf("record %s = %+v, want %+v", want.Path, got, want)
		}
	}
	if rec, ok := loaded.Lookup("2"); !ok || rec.Path != "docs/b.rst" {
		t.Errorf("Lookup(2) = %+v, %v", rec, ok)
	}
	if loaded.HasRemoteID("") {
		t.Error("unpublished record indexed by empty remote id")
	}
}

func TestMapping_SaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	m := testutil.NewMapping(
		gitpub.Record{Path: "z.rst", RemoteID: "9", Hash: "hz"},
		gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "ha", Attrs: map[string]string{"b": "2", "a": "1"}},
	)
	spec := gitpub.RemoteSpec{Type: "memory"}

	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")
	if err := m.Save(first, spec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := m.Copy().Save(second, spec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Errorf("saving the same mapping twice produced different files:\n%s\n%s", a, b)
	}
	if !bytes.HasSuffix(a, []byte("}\n")) {
		t.Error("mapping file does not end with a newline")
	}
	if strings.Index(string(a), `"a.rst"`) > strings.Index(string(a), `"z.rst"`) {
		t.Error("docs are not sorted by path")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("directory holds %d entries, want 2 (temp file left behind?)", len(entries))
	}
}

func TestLoadMapping_Missing(t *testing.T) {
	_, _, err := gitpub.LoadMapping(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadMapping() error = %v, want fs.ErrNotExist", err)
	}
}

func TestDecodeMapping_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid json", input: `{"docs": `},
		{name: "empty path", input: `{"docs": {"": {"id": "1"}}}`},
		{name: "duplicate remote id", input: `{"docs": {"a.rst": {"id": "1"}, "b.rst": {"id": "1"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := gitpub.DecodeMapping(strings.NewReader(tt.input)); err == nil {
				t.Error("DecodeMapping() error = nil, want error")
			}
		})
	}
}

func TestDecodeMapping_MissingConfig(t *testing.T) {
	m, spec, err := gitpub.DecodeMapping(strings.NewReader(`{"docs": {"a.rst": {"hash": "h"}}}`))
	if err != nil {
		t.Fatalf("DecodeMapping() error = %v", err)
	}
	if spec.Config == nil {
		t.Error("spec.Config = nil, want empty map")
	}
	if rec, ok := m.Get("a.rst"); !ok || rec.Published() {
		t.Errorf("Get(a.rst) = %+v, %v, want unpublished record", rec, ok)
	}
}
