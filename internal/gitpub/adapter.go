package gitpub

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// HashAttr is the attribute key under which adapters receive and report a
// document's fingerprint.
const HashAttr = "gitpubHash"

// Adapter is the capability contract of a remote document store.
// Attribute maps passed to NewDocument and SetDocument include HashAttr.
type Adapter interface {
	// NewDocument publishes doc and returns the remote ID assigned to it.
	NewDocument(ctx context.Context, doc *Document, attrs map[string]string) (string, error)

	// SetDocument replaces the remote document identified by remoteID.
	SetDocument(ctx context.Context, remoteID string, doc *Document, attrs map[string]string) error

	// DeleteDocument removes the remote document identified by remoteID.
	DeleteDocument(ctx context.Context, remoteID string) error

	// ListDocuments returns the attributes of every remote document keyed by remote ID.
	ListDocuments(ctx context.Context) (map[string]map[string]string, error)
}

// Fetcher is the optional retrieval capability of an Adapter.
// Adapters that cannot return document content do not implement it.
type Fetcher interface {
	// GetDocument returns the content and attributes of a remote document.
	GetDocument(ctx context.Context, remoteID string) (string, map[string]string, error)
}

// Factory constructs an Adapter from its string-keyed configuration.
type Factory func(ctx context.Context, config map[string]string) (Adapter, error)

// Registry maps adapter type tags to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for typ.
func (r *Registry) Register(typ string, f Factory) {
	r.factories[typ] = f
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.factories))
}

// New constructs the adapter registered under spec.Type.
// Unknown or empty types, and factory rejections, wrap ErrConfiguration.
func (r *Registry) New(ctx context.Context, spec RemoteSpec) (Adapter, error) {
	if spec.Type == "" {
		return nil, fmt.Errorf("remote type not set: %w", ErrConfiguration)
	}
	f, ok := r.factories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown remote type %q: %w", spec.Type, ErrConfiguration)
	}
	cfg := spec.Config
	if cfg == nil {
		cfg = map[string]string{}
	}
	a, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s adapter: %w: %w", spec.Type, ErrConfiguration, err)
	}
	return a, nil
}
