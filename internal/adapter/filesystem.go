package adapter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"gitpub-go/internal/gitpub"
)

const sidecarExt = ".yaml"

// sidecar is the YAML document stored next to each published document.
type sidecar struct {
	Title string            `yaml:"title,omitempty"`
	Attrs map[string]string `yaml:"attrs,omitempty"`
}

// FileSystemAdapter publishes documents into a directory:
//
//	<root>/
//	  <remoteID>.rst    (document content)
//	  <remoteID>.yaml   (title and attributes)
type FileSystemAdapter struct {
	root string
	ids  gitpub.IDGenerator
}

// NewFileSystemAdapter creates the adapter, creating root if needed.
func NewFileSystemAdapter(root string, ids gitpub.IDGenerator) (*FileSystemAdapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create adapter root: %w", err)
	}
	if ids == nil {
		ids = gitpub.UUIDGenerator{}
	}
	return &FileSystemAdapter{root: root, ids: ids}, nil
}

func (a *FileSystemAdapter) NewDocument(_ context.Context, doc *gitpub.Document, attrs map[string]string) (string, error) {
	id := a.ids.New()
	if _, err := os.Stat(a.contentPath(id)); err == nil {
		return "", fmt.Errorf("remote id %s already in use", id)
	}
	if err := a.write(id, doc, attrs); err != nil {
		return "", err
	}
	return id, nil
}

func (a *FileSystemAdapter) SetDocument(_ context.Context, remoteID string, doc *gitpub.Document, attrs map[string]string) error {
	if err := gitpub.ValidateRemoteID(remoteID); err != nil {
		return err
	}
	if _, err := os.Stat(a.contentPath(remoteID)); err != nil {
		return notFound(remoteID, err)
	}
	return a.write(remoteID, doc, attrs)
}

func (a *FileSystemAdapter) DeleteDocument(_ context.Context, remoteID string) error {
	if err := gitpub.ValidateRemoteID(remoteID); err != nil {
		return err
	}
	if err := os.Remove(a.contentPath(remoteID)); err != nil {
		return notFound(remoteID, err)
	}
	if err := os.Remove(a.sidecarPath(remoteID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing sidecar for %s: %w", remoteID, err)
	}
	return nil
}

func (a *FileSystemAdapter) ListDocuments(_ context.Context) (map[string]map[string]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("reading adapter root: %w", err)
	}
	out := make(map[string]map[string]string)
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), gitpub.DocumentExt)
		if !ok || e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		meta, err := a.readSidecar(id)
		if err != nil {
			return nil, err
		}
		out[id] = meta
	}
	return out, nil
}

func (a *FileSystemAdapter) GetDocument(_ context.Context, remoteID string) (string, map[string]string, error) {
	if err := gitpub.ValidateRemoteID(remoteID); err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(a.contentPath(remoteID))
	if err != nil {
		return "", nil, notFound(remoteID, err)
	}
	attrs, err := a.readSidecar(remoteID)
	if err != nil {
		return "", nil, err
	}
	return string(data), attrs, nil
}

func (a *FileSystemAdapter) contentPath(id string) string {
	return filepath.Join(a.root, id+gitpub.DocumentExt)
}

func (a *FileSystemAdapter) sidecarPath(id string) string {
	return filepath.Join(a.root, id+sidecarExt)
}

func (a *FileSystemAdapter) write(id string, doc *gitpub.Document, attrs map[string]string) error {
	meta, err := yaml.Marshal(sidecar{Title: doc.Title, Attrs: withoutTitle(attrs)})
	if err != nil {
		return fmt.Errorf("encoding sidecar for %s: %w", id, err)
	}
	if err := writeFileAtomic(a.sidecarPath(id), meta); err != nil {
		return err
	}
	return writeFileAtomic(a.contentPath(id), []byte(doc.Content))
}

// readSidecar returns the stored attributes plus the title. A missing
// sidecar yields no attributes.
func (a *FileSystemAdapter) readSidecar(id string) (map[string]string, error) {
	data, err := os.ReadFile(a.sidecarPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sidecar for %s: %w", id, err)
	}
	var meta sidecar
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding sidecar for %s: %w", id, err)
	}
	attrs := maps.Clone(meta.Attrs)
	if attrs == nil {
		attrs = map[string]string{}
	}
	if meta.Title != "" {
		attrs[TitleAttr] = meta.Title
	}
	return attrs, nil
}

// writeFileAtomic writes data to path using a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func notFound(id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("document %s: %w", id, gitpub.ErrNotFound)
	}
	return fmt.Errorf("document %s: %w", id, err)
}

// Compile-time checks
var (
	_ gitpub.Adapter = (*FileSystemAdapter)(nil)
	_ gitpub.Fetcher = (*FileSystemAdapter)(nil)
)
