package gitpub_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"gitpub-go/internal/gitpub"
	"gitpub-go/internal/testutil"
)

func newTestRemote(t *testing.T, adapter gitpub.Adapter) *gitpub.Remote {
	t.Helper()
	return gitpub.NewRemote("origin", t.TempDir(), gitpub.RemoteSpec{Type: "fake"}, adapter, gitpub.RemoteOptions{})
}

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readDoc(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("reading %s: %v", rel, err)
	}
	return string(data)
}

func TestRemote_PushCreatesUnpublishedDocument(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	writeDoc(t, r.Root(), "a.rst", "Title\n=====\n")

	// a.rst is tracked but was never published.
	r.SetMapping(testutil.NewMapping(gitpub.Record{Path: "a.rst"}))
	candidate := testutil.NewMapping(gitpub.Record{Path: "a.rst", Attrs: map[string]string{"tag": "x"}})

	diff, err := r.Push(context.Background(), candidate)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !slices.Equal(diff.New, []string{"a.rst"}) {
		t.Errorf("diff.New = %v, want [a.rst]", diff.New)
	}

	rec, ok := r.Mapping().Get("a.rst")
	if !ok {
		t.Fatal("a.rst missing from persisted mapping")
	}
	wantHash := gitpub.Fingerprint("Title\n=====\n")
	if rec.RemoteID != "1" || rec.Hash != wantHash {
		t.Errorf("persisted record = %+v, want remote id 1 and hash %s", rec, wantHash)
	}

	doc, ok := fake.Document("1")
	if !ok {
		t.Fatal("remote document 1 not created")
	}
	if doc.Attrs[gitpub.HashAttr] != wantHash || doc.Attrs["tag"] != "x" {
		t.Errorf("remote attrs = %v", doc.Attrs)
	}

	// The caller's candidate is not modified.
	if rec, _ := candidate.Get("a.rst"); rec.Hash != "" || rec.RemoteID != "" {
		t.Errorf("candidate record modified: %+v", rec)
	}
}

func TestRemote_PushUpdatesChangedDocument(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	writeDoc(t, r.Root(), "a.rst", "new body")
	fake.Put("7", "old body", nil)
	r.SetMapping(testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "7", Hash: gitpub.Fingerprint("old body")}))

	diff, err := r.Push(context.Background(), testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "7"}))
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !slices.Equal(diff.Changed, []string{"a.rst"}) {
		t.Errorf("diff.Changed = %v, want [a.rst]", diff.Changed)
	}
	if got := fake.CallsFor(testutil.OpSet); !slices.Equal(got, []string{"7"}) {
		t.Errorf("set calls = %v, want [7]", got)
	}
	if doc, _ := fake.Document("7"); doc.Content != "new body" {
		t.Errorf("remote content = %q, want %q", doc.Content, "new body")
	}
	if rec, _ := r.Mapping().Get("a.rst"); rec.Hash != gitpub.Fingerprint("new body") {
		t.Errorf("persisted hash = %q, want fingerprint of new body", rec.Hash)
	}
}

func TestRemote_PushUnchangedDocumentIsNoop(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	writeDoc(t, r.Root(), "a.rst", "body")
	r.SetMapping(testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: gitpub.Fingerprint("body")}))

	diff, err := r.Push(context.Background(), r.Mapping().Copy())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !diff.Empty() {
		t.Errorf("Push() diff = %+v, want empty", diff)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("adapter calls = %v, want none", calls)
	}
}

func TestRemote_PushDeletesRemovedDocument(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	fake.Put("42", "gone", nil)
	r.SetMapping(testutil.NewMapping(
		gitpub.Record{Path: "old.rst", RemoteID: "42", Hash: "h1"},
		gitpub.Record{Path: "draft.rst"},
	))

	diff, err := r.Push(context.Background(), gitpub.NewMapping())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !slices.Equal(diff.Deleted, []string{"42"}) {
		t.Errorf("diff.Deleted = %v, want [42]", diff.Deleted)
	}
	if _, ok := fake.Document("42"); ok {
		t.Error("remote document 42 still exists")
	}
	if r.Mapping().HasRemoteID("42") || r.Mapping().HasPath("old.rst") {
		t.Error("deleted record still in persisted mapping")
	}
	if r.Mapping().HasPath("draft.rst") {
		t.Error("unpublished record dropped from the candidate is still persisted")
	}
}

func TestRemote_PushStopsAtFirstFailure(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	for _, p := range []string{"a.rst", "b.rst", "c.rst"} {
		writeDoc(t, r.Root(), p, p)
	}
	fake.Put("9", "stale", nil)
	r.SetMapping(testutil.NewMapping(gitpub.Record{Path: "stale.rst", RemoteID: "9", Hash: "h"}))

	boom := errors.New("remote unavailable")
	fake.FailOn(testutil.OpNew, "b.rst", boom)

	candidate := testutil.NewMapping(
		gitpub.Record{Path: "a.rst"},
		gitpub.Record{Path: "b.rst"},
		gitpub.Record{Path: "c.rst"},
	)
	_, err := r.Push(context.Background(), candidate)
	if !errors.Is(err, boom) {
		t.Fatalf("Push() error = %v, want %v", err, boom)
	}

	if got := fake.CallsFor(testutil.OpNew); !slices.Equal(got, []string{"a.rst", "b.rst"}) {
		t.Errorf("new calls = %v, want [a.rst b.rst]", got)
	}
	if got := fake.CallsFor(testutil.OpDelete); len(got) != 0 {
		t.Errorf("delete calls = %v, want none after failure", got)
	}

	// Applied work stays recorded; the rest is untouched.
	if rec, ok := r.Mapping().Get("a.rst"); !ok || rec.RemoteID != "1" {
		t.Errorf("a.rst = %+v, %v, want published as 1", rec, ok)
	}
	if r.Mapping().HasPath("b.rst") || r.Mapping().HasPath("c.rst") {
		t.Error("unapplied documents recorded in persisted mapping")
	}
	if !r.Mapping().HasRemoteID("9") {
		t.Error("stale record removed although its delete never ran")
	}
}

func TestRemote_PushMissingDocument(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)

	_, err := r.Push(context.Background(), testutil.NewMapping(gitpub.Record{Path: "missing.rst"}))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Push() error = %v, want fs.ErrNotExist", err)
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Errorf("adapter calls = %v, want none", calls)
	}
}

func TestRemote_FetchUnchangedWritesNothing(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	fake.Put("42", "body", map[string]string{gitpub.HashAttr: "h1"})
	r.SetMapping(testutil.NewMapping(gitpub.Record{Path: "post.rst", RemoteID: "42", Hash: "h1"}))

	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(written) != 0 {
		t.Errorf("Fetch() = %v, want no updates", written)
	}
	if _, err := os.Stat(filepath.Join(r.Root(), "post.rst")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("post.rst was written (stat error = %v)", err)
	}
}

func TestRemote_FetchImportsNewDocuments(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	fake.Put("7", "Body gitpubHash=abc123\n", map[string]string{gitpub.HashAttr: "abc123", "title": "T"})
	fake.Put("8", "plain", nil)

	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := []string{"origin-import/7.rst", "origin-import/8.rst"}
	if !slices.Equal(written, want) {
		t.Errorf("Fetch() = %v, want %v", written, want)
	}

	if got := readDoc(t, r.Root(), "origin-import/7.rst"); got != "Body \n" {
		t.Errorf("content of 7 = %q, want marker stripped", got)
	}
	rec, ok := r.Mapping().Lookup("7")
	if !ok {
		t.Fatal("remote id 7 not mapped")
	}
	if rec.Hash != "abc123" || rec.Attrs["title"] != "T" {
		t.Errorf("record 7 = %+v", rec)
	}
	if _, ok := rec.Attrs[gitpub.HashAttr]; ok {
		t.Error("hash attribute kept in record attrs")
	}

	rec8, _ := r.Mapping().Lookup("8")
	if rec8.Hash != gitpub.Fingerprint("plain") || rec8.Attrs != nil {
		t.Errorf("record 8 = %+v, want local fingerprint and no attrs", rec8)
	}
}

func TestRemote_FetchUpdatesMappedPath(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	writeDoc(t, r.Root(), "docs/a.rst", "old")
	fake.Put("3", "new", nil)
	r.SetMapping(testutil.NewMapping(gitpub.Record{Path: "docs/a.rst", RemoteID: "3", Hash: gitpub.Fingerprint("old")}))

	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !slices.Equal(written, []string{"docs/a.rst"}) {
		t.Errorf("Fetch() = %v, want [docs/a.rst]", written)
	}
	if got := readDoc(t, r.Root(), "docs/a.rst"); got != "new" {
		t.Errorf("docs/a.rst = %q, want %q", got, "new")
	}
}

func TestRemote_FetchIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	fake.Put("1", "one", nil)

	if _, err := r.Fetch(context.Background()); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if len(written) != 0 {
		t.Errorf("second Fetch() = %v, want no updates", written)
	}
}

func TestRemote_FetchAfterPushWritesNothing(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	writeDoc(t, r.Root(), "a.rst", "body")

	if _, err := r.Push(context.Background(), testutil.NewMapping(gitpub.Record{Path: "a.rst"})); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(written) != 0 {
		t.Errorf("Fetch() = %v, want no updates", written)
	}
}

func TestRemote_FetchSkipsRetrievalFailures(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	fake.Put("1", "one", nil)
	fake.Put("2", "two", nil)
	fake.FailOn(testutil.OpGet, "1", errors.New("timeout"))

	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !slices.Equal(written, []string{"origin-import/2.rst"}) {
		t.Errorf("Fetch() = %v, want only document 2", written)
	}
	if r.Mapping().HasRemoteID("1") {
		t.Error("failed document recorded in mapping")
	}
}

func TestRemote_FetchSkipsUnsafeRemoteIDs(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	root := filepath.Join(t.TempDir(), "repo")
	r := gitpub.NewRemote("origin", root, gitpub.RemoteSpec{Type: "fake"}, fake, gitpub.RemoteOptions{})
	fake.Put("../../escaped", "outside", nil)
	fake.Put("nested/doc", "nested", nil)
	fake.Put("2", "two", nil)

	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !slices.Equal(written, []string{"origin-import/2.rst"}) {
		t.Errorf("Fetch() = %v, want only document 2", written)
	}
	if _, err := os.Stat(filepath.Join(root, "..", "escaped.rst")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("document written outside the working tree: %v", err)
	}
	for _, id := range []string{"../../escaped", "nested/doc"} {
		if r.Mapping().HasRemoteID(id) {
			t.Errorf("remote id %q recorded in mapping", id)
		}
	}
}

func TestValidateRemoteID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "42", wantErr: false},
		{id: "3f2a-b1", wantErr: false},
		{id: "v1.2", wantErr: false},
		{id: "", wantErr: true},
		{id: ".", wantErr: true},
		{id: "..", wantErr: true},
		{id: "a..b", wantErr: true},
		{id: "../escape", wantErr: true},
		{id: "dir/doc", wantErr: true},
		{id: `dir\doc`, wantErr: true},
	}
	for _, tt := range tests {
		err := gitpub.ValidateRemoteID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRemoteID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, gitpub.ErrInvalidRemoteID) {
			t.Errorf("ValidateRemoteID(%q) error = %v, want ErrInvalidRemoteID", tt.id, err)
		}
	}
}

func TestRemote_FetchListFailure(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := newTestRemote(t, fake)
	boom := errors.New("list failed")
	fake.FailOn(testutil.OpList, "", boom)

	if _, err := r.Fetch(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Fetch() error = %v, want %v", err, boom)
	}
}

func TestRemote_FetchUnsupported(t *testing.T) {
	r := newTestRemote(t, testutil.NewPushOnlyAdapter(testutil.NewFakeAdapter()))

	_, err := r.Fetch(context.Background())
	if !errors.Is(err, gitpub.ErrFetchUnsupported) {
		t.Errorf("Fetch() error = %v, want ErrFetchUnsupported", err)
	}
	if !errors.Is(err, gitpub.ErrNotFound) {
		t.Errorf("Fetch() error = %v, want it to match ErrNotFound", err)
	}
}

func TestRemote_FetchCustomImportDir(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	r := gitpub.NewRemote("origin", t.TempDir(), gitpub.RemoteSpec{Type: "fake"}, fake,
		gitpub.RemoteOptions{ImportDir: "imported"})
	fake.Put("5", "five", nil)

	written, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !slices.Equal(written, []string{"imported/5.rst"}) {
		t.Errorf("Fetch() = %v, want [imported/5.rst]", written)
	}
}

func TestRemote_SaveAndReload(t *testing.T) {
	r := newTestRemote(t, testutil.NewFakeAdapter())
	r.SetMapping(testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h"}))
	if err := r.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if want := filepath.Join(r.Root(), ".gitpub", "origin.json"); r.MappingPath() != want {
		t.Errorf("MappingPath() = %q, want %q", r.MappingPath(), want)
	}

	r.SetMapping(gitpub.NewMapping())
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if rec, ok := r.Mapping().Lookup("1"); !ok || rec.Path != "a.rst" {
		t.Errorf("Lookup(1) after Reload = %+v, %v", rec, ok)
	}

	if err := os.Remove(r.MappingPath()); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload() without file error = %v", err)
	}
	if r.Mapping().Len() != 0 {
		t.Errorf("Reload() without file Len = %d, want 0", r.Mapping().Len())
	}
}

func TestOpenRemote(t *testing.T) {
	reg := gitpub.NewRegistry()
	reg.Register("fake", func(context.Context, map[string]string) (gitpub.Adapter, error) {
		return testutil.NewFakeAdapter(), nil
	})
	root := t.TempDir()

	if _, err := gitpub.OpenRemote(context.Background(), reg, "origin", root, gitpub.RemoteSpec{}, gitpub.RemoteOptions{}); !errors.Is(err, gitpub.ErrConfiguration) {
		t.Errorf("OpenRemote() without type error = %v, want ErrConfiguration", err)
	}

	saved := testutil.NewMapping(gitpub.Record{Path: "a.rst", RemoteID: "1", Hash: "h"})
	if err := saved.Save(filepath.Join(root, ".gitpub", "origin.json"), gitpub.RemoteSpec{Type: "fake"}); err != nil {
		t.Fatal(err)
	}

	r, err := gitpub.OpenRemote(context.Background(), reg, "origin", root, gitpub.RemoteSpec{}, gitpub.RemoteOptions{})
	if err != nil {
		t.Fatalf("OpenRemote() error = %v", err)
	}
	if r.Spec().Type != "fake" {
		t.Errorf("Spec().Type = %q, want %q", r.Spec().Type, "fake")
	}
	if !r.Mapping().HasRemoteID("1") {
		t.Error("saved mapping not loaded")
	}
}

func TestStripHashMarker(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "no marker", want: "no marker"},
		{in: "a gitpubHash=DEADbeef01 b", want: "a  b"},
		{in: "gitpubHash=\nx", want: "\nx"},
		{in: "gitpubHash=aa gitpubHash=bb", want: " "},
	}
	for _, tt := range tests {
		if got := gitpub.StripHashMarker(tt.in); got != tt.want {
			t.Errorf("StripHashMarker(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
