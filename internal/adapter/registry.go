// Package adapter holds the remote document stores gitpub can publish to.
package adapter

import (
	"context"
	"fmt"
	"maps"

	"gitpub-go/internal/gitpub"
)

// TitleAttr is the attribute under which adapters report a document title.
const TitleAttr = "title"

// Type tags understood by DefaultRegistry.
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeSQLite     = "sqlite"
	TypeS3         = "s3"
)

// Options are shared by the adapters DefaultRegistry constructs.
type Options struct {
	IDs   gitpub.IDGenerator
	Clock gitpub.Clock
}

// DefaultRegistry returns a registry with every built-in adapter registered.
//
// Configuration keys per type:
//
//	memory:     name
//	filesystem: root (required)
//	sqlite:     path (required)
//	s3:         bucket (required), prefix, region, endpoint,
//	            access_key_id, secret_access_key, use_path_style
func DefaultRegistry(opts Options) *gitpub.Registry {
	r := gitpub.NewRegistry()
	r.Register(TypeMemory, func(_ context.Context, cfg map[string]string) (gitpub.Adapter, error) {
		return NewMemoryAdapter(cfg["name"], opts.IDs), nil
	})
	r.Register(TypeFilesystem, func(_ context.Context, cfg map[string]string) (gitpub.Adapter, error) {
		root := cfg["root"]
		if root == "" {
			return nil, fmt.Errorf("filesystem adapter requires root to be set")
		}
		return NewFileSystemAdapter(root, opts.IDs)
	})
	r.Register(TypeSQLite, func(_ context.Context, cfg map[string]string) (gitpub.Adapter, error) {
		path := cfg["path"]
		if path == "" {
			return nil, fmt.Errorf("sqlite adapter requires path to be set")
		}
		return NewSQLiteAdapter(path, opts.IDs, opts.Clock)
	})
	r.Register(TypeS3, func(ctx context.Context, cfg map[string]string) (gitpub.Adapter, error) {
		pathStyle, err := parseBool(cfg["use_path_style"])
		if err != nil {
			return nil, fmt.Errorf("invalid use_path_style: %w", err)
		}
		return NewS3AdapterFromConfig(ctx, S3Config{
			Bucket:          cfg["bucket"],
			Prefix:          cfg["prefix"],
			Region:          cfg["region"],
			Endpoint:        cfg["endpoint"],
			AccessKeyID:     cfg["access_key_id"],
			SecretAccessKey: cfg["secret_access_key"],
			UsePathStyle:    pathStyle,
		}, opts.IDs)
	})
	return r
}

// withTitle returns a copy of attrs carrying the title extracted from doc.
// The content is authoritative: a stale title attribute is replaced.
func withTitle(attrs map[string]string, doc *gitpub.Document) map[string]string {
	out := maps.Clone(attrs)
	if out == nil {
		out = map[string]string{}
	}
	if doc.Title != "" {
		out[TitleAttr] = doc.Title
	}
	return out
}

// withoutTitle returns a copy of attrs without the title attribute, for
// adapters that store the title separately.
func withoutTitle(attrs map[string]string) map[string]string {
	out := maps.Clone(attrs)
	delete(out, TitleAttr)
	return out
}
