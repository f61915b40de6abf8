package adapter

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"gitpub-go/internal/gitpub"
)

type memoryDoc struct {
	content string
	attrs   map[string]string
}

// MemoryAdapter is an in-memory implementation of the Adapter and Fetcher
// interfaces, useful for testing and dry runs.
// This implementation is safe for concurrent use.
type MemoryAdapter struct {
	name string
	ids  gitpub.IDGenerator
	docs map[string]memoryDoc
	mu   sync.RWMutex
}

// NewMemoryAdapter creates an empty in-memory adapter. Remote IDs come from ids.
func NewMemoryAdapter(name string, ids gitpub.IDGenerator) *MemoryAdapter {
	if ids == nil {
		ids = gitpub.UUIDGenerator{}
	}
	return &MemoryAdapter{
		name: name,
		ids:  ids,
		docs: make(map[string]memoryDoc),
	}
}

func (m *MemoryAdapter) NewDocument(_ context.Context, doc *gitpub.Document, attrs map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.ids.New()
	if _, ok := m.docs[id]; ok {
		return "", fmt.Errorf("remote id %s already in use", id)
	}
	m.docs[id] = memoryDoc{content: doc.Content, attrs: withTitle(attrs, doc)}
	return id, nil
}

func (m *MemoryAdapter) SetDocument(_ context.Context, remoteID string, doc *gitpub.Document, attrs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[remoteID]; !ok {
		return fmt.Errorf("document %s: %w", remoteID, gitpub.ErrNotFound)
	}
	m.docs[remoteID] = memoryDoc{content: doc.Content, attrs: withTitle(attrs, doc)}
	return nil
}

func (m *MemoryAdapter) DeleteDocument(_ context.Context, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[remoteID]; !ok {
		return fmt.Errorf("document %s: %w", remoteID, gitpub.ErrNotFound)
	}
	delete(m.docs, remoteID)
	return nil
}

func (m *MemoryAdapter) ListDocuments(_ context.Context) (map[string]map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]string, len(m.docs))
	for id, d := range m.docs {
		out[id] = maps.Clone(d.attrs)
	}
	return out, nil
}

func (m *MemoryAdapter) GetDocument(_ context.Context, remoteID string) (string, map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[remoteID]
	if !ok {
		return "", nil, fmt.Errorf("document %s: %w", remoteID, gitpub.ErrNotFound)
	}
	return d.content, maps.Clone(d.attrs), nil
}

// Put stores a document under remoteID directly, as if another client had
// published it.
func (m *MemoryAdapter) Put(remoteID, content string, attrs map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[remoteID] = memoryDoc{content: content, attrs: maps.Clone(attrs)}
}

// Len returns the number of stored documents.
func (m *MemoryAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Compile-time checks
var (
	_ gitpub.Adapter = (*MemoryAdapter)(nil)
	_ gitpub.Fetcher = (*MemoryAdapter)(nil)
)
