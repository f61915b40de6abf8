package testutil

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"gitpub-go/internal/gitpub"
)

// Adapter operations, as recorded in FakeAdapter calls and used by FailOn.
const (
	OpNew    = "new"
	OpSet    = "set"
	OpDelete = "delete"
	OpList   = "list"
	OpGet    = "get"
)

// Call is one recorded adapter call. Target is the document path for OpNew,
// the remote ID for OpSet, OpDelete and OpGet, and empty for OpList.
type Call struct {
	Op     string
	Target string
}

// FakeDocument is a document stored by FakeAdapter.
type FakeDocument struct {
	Content string
	Attrs   map[string]string
}

// FakeAdapter is an in-memory gitpub.Adapter and gitpub.Fetcher that records
// every call and can be scripted to fail. Safe for concurrent use.
type FakeAdapter struct {
	mu    sync.Mutex
	ids   gitpub.IDGenerator
	docs  map[string]FakeDocument
	calls []Call
	fail  map[Call]error
}

// NewFakeAdapter creates an empty adapter minting IDs "1", "2", ...
func NewFakeAdapter() *FakeAdapter {
	return NewFakeAdapterWithIDs(NewStubIDGenerator(""))
}

// NewFakeAdapterWithIDs creates an empty adapter minting IDs from ids.
func NewFakeAdapterWithIDs(ids gitpub.IDGenerator) *FakeAdapter {
	return &FakeAdapter{
		ids:  ids,
		docs: make(map[string]FakeDocument),
		fail: make(map[Call]error),
	}
}

// FailOn makes op on target return err. An empty target matches every target.
func (f *FakeAdapter) FailOn(op, target string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[Call{Op: op, Target: target}] = err
}

// Put stores a document as if another client had published it.
func (f *FakeAdapter) Put(remoteID, content string, attrs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[remoteID] = FakeDocument{Content: content, Attrs: maps.Clone(attrs)}
}

// Document returns the stored document for remoteID.
func (f *FakeAdapter) Document(remoteID string) (FakeDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[remoteID]
	return d, ok
}

// Len returns the number of stored documents.
func (f *FakeAdapter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

// Calls returns the recorded calls, oldest first.
func (f *FakeAdapter) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsFor returns the targets of the recorded calls of op.
func (f *FakeAdapter) CallsFor(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c.Target)
		}
	}
	return out
}

// record logs the call and returns the scripted failure, if any.
// Callers hold f.mu.
func (f *FakeAdapter) record(op, target string) error {
	f.calls = append(f.calls, Call{Op: op, Target: target})
	if err, ok := f.fail[Call{Op: op, Target: target}]; ok {
		return err
	}
	return f.fail[Call{Op: op}]
}

func (f *FakeAdapter) NewDocument(_ context.Context, doc *gitpub.Document, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpNew, doc.Path); err != nil {
		return "", err
	}
	id := f.ids.New()
	f.docs[id] = FakeDocument{Content: doc.Content, Attrs: maps.Clone(attrs)}
	return id, nil
}

func (f *FakeAdapter) SetDocument(_ context.Context, remoteID string, doc *gitpub.Document, attrs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpSet, remoteID); err != nil {
		return err
	}
	f.docs[remoteID] = FakeDocument{Content: doc.Content, Attrs: maps.Clone(attrs)}
	return nil
}

func (f *FakeAdapter) DeleteDocument(_ context.Context, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDelete, remoteID); err != nil {
		return err
	}
	delete(f.docs, remoteID)
	return nil
}

func (f *FakeAdapter) ListDocuments(_ context.Context) (map[string]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpList, ""); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(f.docs))
	for id, d := range f.docs {
		out[id] = maps.Clone(d.Attrs)
	}
	return out, nil
}

func (f *FakeAdapter) GetDocument(_ context.Context, remoteID string) (string, map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpGet, remoteID); err != nil {
		return "", nil, err
	}
	d, ok := f.docs[remoteID]
	if !ok {
		return "", nil, fmt.Errorf("document %s: %w", remoteID, gitpub.ErrNotFound)
	}
	return d.Content, maps.Clone(d.Attrs), nil
}

// PushOnlyAdapter exposes only the gitpub.Adapter methods of a FakeAdapter,
// hiding its retrieval capability.
type PushOnlyAdapter struct {
	fake *FakeAdapter
}

// NewPushOnlyAdapter wraps fake.
func NewPushOnlyAdapter(fake *FakeAdapter) *PushOnlyAdapter {
	return &PushOnlyAdapter{fake: fake}
}

func (p *PushOnlyAdapter) NewDocument(ctx context.Context, doc *gitpub.Document, attrs map[string]string) (string, error) {
	return p.fake.NewDocument(ctx, doc, attrs)
}

func (p *PushOnlyAdapter) SetDocument(ctx context.Context, remoteID string, doc *gitpub.Document, attrs map[string]string) error {
	return p.fake.SetDocument(ctx, remoteID, doc, attrs)
}

func (p *PushOnlyAdapter) DeleteDocument(ctx context.Context, remoteID string) error {
	return p.fake.DeleteDocument(ctx, remoteID)
}

func (p *PushOnlyAdapter) ListDocuments(ctx context.Context) (map[string]map[string]string, error) {
	return p.fake.ListDocuments(ctx)
}

// Compile-time checks
var (
	_ gitpub.Adapter = (*FakeAdapter)(nil)
	_ gitpub.Fetcher = (*FakeAdapter)(nil)
	_ gitpub.Adapter = (*PushOnlyAdapter)(nil)
)
