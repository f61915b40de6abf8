package gitpub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
)

// RemoteSpec names the adapter type and its configuration.
type RemoteSpec struct {
	Type   string
	Config map[string]string
}

// mappingFile is the on-disk layout. Fields are declared in key order and maps
// are encoded with sorted keys, so unchanged state always encodes identically.
type mappingFile struct {
	Docs         map[string]recordEntry `json:"docs"`
	RemoteConfig map[string]string      `json:"remoteConfig"`
	RemoteType   string                 `json:"remoteType"`
}

type recordEntry struct {
	Attrs map[string]string `json:"attrs,omitempty"`
	Hash  string            `json:"hash,omitempty"`
	ID    string            `json:"id,omitempty"`
}

// Encode writes the mapping and the remote spec to w as indented JSON
// terminated by a newline.
func (m *Mapping) Encode(w io.Writer, spec RemoteSpec) error {
	f := mappingFile{
		Docs:         make(map[string]recordEntry, len(m.byPath)),
		RemoteConfig: maps.Clone(spec.Config),
		RemoteType:   spec.Type,
	}
	if f.RemoteConfig == nil {
		f.RemoteConfig = map[string]string{}
	}
	for path, rec := range m.byPath {
		var attrs map[string]string
		if len(rec.Attrs) > 0 {
			attrs = maps.Clone(rec.Attrs)
		}
		f.Docs[path] = recordEntry{Attrs: attrs, Hash: rec.Hash, ID: rec.RemoteID}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("encoding mapping: %w", err)
	}
	return nil
}

// DecodeMapping reads a mapping written by Encode.
func DecodeMapping(r io.Reader) (*Mapping, RemoteSpec, error) {
	var f mappingFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, RemoteSpec{}, fmt.Errorf("decoding mapping: %w", err)
	}

	m := NewMapping()
	for path, e := range f.Docs {
		if path == "" {
			return nil, RemoteSpec{}, fmt.Errorf("decoding mapping: record with empty path")
		}
		if e.ID != "" && m.HasRemoteID(e.ID) {
			return nil, RemoteSpec{}, fmt.Errorf("decoding mapping: remote id %q mapped more than once", e.ID)
		}
		m.Set(path, Record{RemoteID: e.ID, Hash: e.Hash, Attrs: e.Attrs})
	}

	spec := RemoteSpec{Type: f.RemoteType, Config: f.RemoteConfig}
	if spec.Config == nil {
		spec.Config = map[string]string{}
	}
	return m, spec, nil
}

// LoadMapping reads the mapping file at path.
// A missing file yields an error matching fs.ErrNotExist.
func LoadMapping(path string) (*Mapping, RemoteSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, RemoteSpec{}, fmt.Errorf("reading mapping file: %w", err)
	}
	m, spec, err := DecodeMapping(bytes.NewReader(data))
	if err != nil {
		return nil, RemoteSpec{}, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, spec, nil
}

// Save writes the mapping file at path, creating parent directories.
// The file is replaced atomically.
func (m *Mapping) Save(path string, spec RemoteSpec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating mapping directory: %w", err)
	}

	var buf bytes.Buffer
	if err := m.Encode(&buf, spec); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".mapping-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp mapping file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing mapping file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting mapping file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing mapping file: %w", err)
	}
	return nil
}
