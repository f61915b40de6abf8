package gitpub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// MappingDir is the repository-relative directory holding mapping files.
const MappingDir = ".gitpub"

// MappingRelPath returns the repository-relative path of the mapping file for remote name.
func MappingRelPath(name string) string {
	return path.Join(MappingDir, name+".json")
}

// DefaultImportDir returns the directory fetched documents land in when they
// are not mapped yet.
func DefaultImportDir(name string) string {
	return name + "-import"
}

// ValidateRemoteID checks that id can be used as a file name. IDs that are
// empty or contain a path separator or ".." are rejected.
func ValidateRemoteID(id string) error {
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w %q", ErrInvalidRemoteID, id)
	}
	return nil
}

var hashMarker = regexp.MustCompile(HashAttr + `=[0-9a-fA-F]*`)

// StripHashMarker removes every embedded fingerprint marker from content.
func StripHashMarker(content string) string {
	return hashMarker.ReplaceAllString(content, "")
}

// RemoteOptions tunes a Remote. Zero values select defaults.
type RemoteOptions struct {
	// ImportDir is repository-relative. Defaults to DefaultImportDir(name).
	ImportDir string
	Logger    Logger
}

// Remote applies mapping diffs to a remote document store and pulls remote
// documents into the working tree. It holds the persisted mapping, which
// reflects what the remote is known to contain.
type Remote struct {
	name      string
	root      string
	importDir string
	spec      RemoteSpec
	adapter   Adapter
	mapping   *Mapping
	logger    Logger
}

// NewRemote creates a Remote with an empty persisted mapping.
// root is the absolute path of the working tree.
func NewRemote(name, root string, spec RemoteSpec, adapter Adapter, opts RemoteOptions) *Remote {
	importDir := opts.ImportDir
	if importDir == "" {
		importDir = DefaultImportDir(name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Remote{
		name:      name,
		root:      root,
		importDir: filepath.ToSlash(importDir),
		spec:      spec,
		adapter:   adapter,
		mapping:   NewMapping(),
		logger:    logger,
	}
}

// OpenRemote resolves the adapter for remote name and loads its mapping file
// from the working tree if present. When spec has no type, the type and
// configuration recorded in the mapping file are used.
func OpenRemote(ctx context.Context, registry *Registry, name, root string, spec RemoteSpec, opts RemoteOptions) (*Remote, error) {
	mapping, saved, err := LoadMapping(filepath.Join(root, filepath.FromSlash(MappingRelPath(name))))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		mapping = NewMapping()
	case err != nil:
		return nil, err
	}
	if spec.Type == "" {
		if saved.Type == "" {
			return nil, fmt.Errorf("remote %q has no type configured: %w", name, ErrConfiguration)
		}
		spec = saved
	}

	adapter, err := registry.New(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("remote %q: %w", name, err)
	}

	r := NewRemote(name, root, spec, adapter, opts)
	r.mapping = mapping
	return r, nil
}

func (r *Remote) Name() string      { return r.name }
func (r *Remote) Root() string      { return r.root }
func (r *Remote) Spec() RemoteSpec  { return r.spec }
func (r *Remote) Adapter() Adapter  { return r.adapter }
func (r *Remote) ImportDir() string { return r.importDir }

// Mapping returns the live persisted mapping.
func (r *Remote) Mapping() *Mapping { return r.mapping }

// SetMapping replaces the persisted mapping.
func (r *Remote) SetMapping(m *Mapping) { r.mapping = m }

// MappingPath returns the absolute path of the mapping file.
func (r *Remote) MappingPath() string {
	return filepath.Join(r.root, filepath.FromSlash(MappingRelPath(r.name)))
}

// Reload replaces the persisted mapping with the mapping file in the working
// tree. A missing file yields an empty mapping.
func (r *Remote) Reload() error {
	m, _, err := LoadMapping(r.MappingPath())
	if errors.Is(err, fs.ErrNotExist) {
		r.mapping = NewMapping()
		return nil
	}
	if err != nil {
		return err
	}
	r.mapping = m
	return nil
}

// Save writes the persisted mapping and remote spec to the mapping file.
func (r *Remote) Save() error {
	return r.mapping.Save(r.MappingPath(), r.spec)
}

// Push publishes candidate, reading documents from the working tree.
func (r *Remote) Push(ctx context.Context, candidate *Mapping) (*Diff, error) {
	return r.PushFrom(ctx, candidate, DirSource{Root: r.root})
}

// PushFrom diffs candidate against the persisted mapping and applies the diff
// to the remote: new paths are created, changed paths updated, deleted remote
// IDs removed. The persisted mapping is updated after every successful adapter
// call. The first failure stops the push; earlier changes stay applied.
// Candidate records without a hash are fingerprinted first; candidate itself
// is not modified.
func (r *Remote) PushFrom(ctx context.Context, candidate *Mapping, src DocumentSource) (*Diff, error) {
	cand, err := FingerprintCandidate(candidate, src)
	if err != nil {
		return nil, err
	}

	diff := DiffMappings(cand, r.mapping)
	r.logger.Info("pushing to remote", "remote", r.name,
		"new", len(diff.New), "changed", len(diff.Changed), "deleted", len(diff.Deleted))

	for _, p := range diff.New {
		rec := cand.byPath[p]
		doc, hash, err := readHashed(src, p)
		if err != nil {
			return diff, err
		}
		id, err := r.adapter.NewDocument(ctx, doc, pushAttrs(rec.Attrs, hash))
		if err != nil {
			return diff, fmt.Errorf("creating remote document for %s: %w", p, err)
		}
		r.mapping.Set(p, Record{RemoteID: id, Hash: hash, Attrs: rec.Attrs})
		r.logger.Debug("document created", "path", p, "remote_id", id)
	}

	for _, p := range diff.Changed {
		rec := cand.byPath[p]
		id := rec.RemoteID
		if id == "" {
			id = r.mapping.byPath[p].RemoteID
		}
		doc, hash, err := readHashed(src, p)
		if err != nil {
			return diff, err
		}
		if err := r.adapter.SetDocument(ctx, id, doc, pushAttrs(rec.Attrs, hash)); err != nil {
			return diff, fmt.Errorf("updating remote document %s for %s: %w", id, p, err)
		}
		r.mapping.Set(p, Record{RemoteID: id, Hash: hash, Attrs: rec.Attrs})
		r.logger.Debug("document updated", "path", p, "remote_id", id)
	}

	for _, id := range diff.Deleted {
		if err := r.adapter.DeleteDocument(ctx, id); err != nil {
			return diff, fmt.Errorf("deleting remote document %s: %w", id, err)
		}
		// An update above may already have moved the ID to another path.
		if err := r.mapping.RemoveByRemoteID(id); err != nil && !errors.Is(err, ErrNotFound) {
			return diff, err
		}
		r.logger.Debug("document deleted", "remote_id", id)
	}

	// Unpublished records dropped from the candidate have nothing remote to delete.
	for _, p := range r.mapping.Paths() {
		if rec := r.mapping.byPath[p]; rec.RemoteID == "" && !cand.HasPath(p) {
			_ = r.mapping.Remove(p)
		}
	}

	return diff, nil
}

// FingerprintCandidate returns a copy of candidate in which every record
// without a hash carries the fingerprint of its current content.
func FingerprintCandidate(candidate *Mapping, src DocumentSource) (*Mapping, error) {
	cand := candidate.Copy()
	for _, rec := range cand.byPath {
		if rec.Hash != "" {
			continue
		}
		doc, err := src.ReadDocument(rec.Path)
		if err != nil {
			return nil, fmt.Errorf("fingerprinting candidate: %w", err)
		}
		rec.Hash = Fingerprint(doc.Content)
	}
	return cand, nil
}

func readHashed(src DocumentSource, p string) (*Document, string, error) {
	doc, err := src.ReadDocument(p)
	if err != nil {
		return nil, "", err
	}
	return doc, Fingerprint(doc.Content), nil
}

func pushAttrs(attrs map[string]string, hash string) map[string]string {
	out := maps.Clone(attrs)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[HashAttr] = hash
	return out
}

// Fetch pulls every remote document into the working tree and returns the
// repository-relative paths written, in remote ID order. Documents already
// mapped keep their path; others land in the import directory as
// <remoteID>.rst. A document whose fingerprint matches the persisted record
// is not written. A document that cannot be retrieved, or whose unmapped ID
// is not a valid file name, is logged and skipped.
// Fetch returns ErrFetchUnsupported if the adapter does not implement Fetcher.
func (r *Remote) Fetch(ctx context.Context) ([]string, error) {
	fetcher, ok := r.adapter.(Fetcher)
	if !ok {
		return nil, fmt.Errorf("remote %q: %w", r.name, ErrFetchUnsupported)
	}

	listed, err := r.adapter.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote documents: %w", err)
	}
	r.logger.Info("fetching from remote", "remote", r.name, "documents", len(listed))

	var written []string
	for _, id := range slices.Sorted(maps.Keys(listed)) {
		p, changed, err := r.importDocument(ctx, fetcher, id)
		if errors.Is(err, ErrRetrieval) || errors.Is(err, ErrInvalidRemoteID) {
			r.logger.Warn("skipping remote document", "remote_id", id, "error", err)
			continue
		}
		if err != nil {
			return written, err
		}
		if changed {
			written = append(written, p)
		}
	}
	return written, nil
}

func (r *Remote) importDocument(ctx context.Context, fetcher Fetcher, id string) (string, bool, error) {
	existing, mapped := r.mapping.Lookup(id)
	target := path.Join(r.importDir, id+DocumentExt)
	if mapped {
		target = existing.Path
	} else if err := ValidateRemoteID(id); err != nil {
		return "", false, err
	}
	abs := filepath.Join(r.root, filepath.FromSlash(target))
	if rel, err := filepath.Rel(r.root, abs); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false, fmt.Errorf("remote document %s targets %s outside the working tree: %w", id, target, ErrInvalidRemoteID)
	}

	content, attrs, err := fetcher.GetDocument(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("getting remote document %s: %w: %w", id, ErrRetrieval, err)
	}

	hash := attrs[HashAttr]
	if hash != "" {
		content = StripHashMarker(content)
	} else {
		hash = Fingerprint(content)
	}
	if mapped && existing.Hash == hash {
		r.logger.Debug("remote document unchanged", "remote_id", id, "path", target)
		return target, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", false, fmt.Errorf("creating directory for %s: %w", target, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return "", false, fmt.Errorf("writing %s: %w", target, err)
	}

	recAttrs := maps.Clone(attrs)
	delete(recAttrs, HashAttr)
	if len(recAttrs) == 0 {
		recAttrs = nil
	}
	r.mapping.Set(target, Record{RemoteID: id, Hash: hash, Attrs: recAttrs})
	r.logger.Debug("remote document written", "remote_id", id, "path", target)
	return target, true, nil
}
