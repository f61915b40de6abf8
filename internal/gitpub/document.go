package gitpub

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DocumentExt is the extension of documents imported by Fetch.
const DocumentExt = ".rst"

// Document is a local document handed to an Adapter.
type Document struct {
	Path    string
	Content string
	Title   string
}

// NewDocument builds a Document and extracts its title.
func NewDocument(path, content string) *Document {
	return &Document{Path: path, Content: content, Title: ExtractTitle(path, content)}
}

// DocumentSource loads documents by repository-relative path.
type DocumentSource interface {
	ReadDocument(path string) (*Document, error)
}

// DirSource reads documents from a working tree.
type DirSource struct {
	Root string
}

func (s DirSource) ReadDocument(relPath string) (*Document, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", relPath, err)
	}
	return NewDocument(relPath, string(data)), nil
}

// Snapshot is an in-memory DocumentSource captured from another source.
// Read failures are kept and returned when the path is requested.
type Snapshot struct {
	docs map[string]*Document
	errs map[string]error
}

// SnapshotDocuments reads paths from src into memory.
func SnapshotDocuments(src DocumentSource, paths []string) *Snapshot {
	s := &Snapshot{
		docs: make(map[string]*Document, len(paths)),
		errs: make(map[string]error),
	}
	for _, p := range paths {
		doc, err := src.ReadDocument(p)
		if err != nil {
			s.errs[p] = err
			continue
		}
		s.docs[p] = doc
	}
	return s
}

func (s *Snapshot) ReadDocument(relPath string) (*Document, error) {
	if doc, ok := s.docs[relPath]; ok {
		return doc, nil
	}
	if err, ok := s.errs[relPath]; ok {
		return nil, err
	}
	return nil, fmt.Errorf("document %s not in snapshot: %w", relPath, ErrNotFound)
}

// ExtractTitle returns the document title: the first reStructuredText section
// title, or the first Markdown level-one heading, whichever comes first.
// Without either it returns the file name without extension.
func ExtractTitle(docPath, content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		if title, ok := strings.CutPrefix(line, "# "); ok && strings.TrimSpace(title) != "" {
			return strings.TrimSpace(title)
		}
		text := strings.TrimSpace(line)
		if text == "" || isAdornment(text) || i+1 >= len(lines) {
			continue
		}
		under := strings.TrimSpace(lines[i+1])
		if isAdornment(under) && utf8.RuneCountInString(under) >= utf8.RuneCountInString(text) {
			return text
		}
	}
	base := path.Base(filepath.ToSlash(docPath))
	return strings.TrimSuffix(base, path.Ext(base))
}

const adornmentChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// isAdornment reports whether s is a run of one repeated punctuation character.
func isAdornment(s string) bool {
	if len(s) < 2 || !strings.ContainsRune(adornmentChars, rune(s[0])) {
		return false
	}
	return strings.Count(s, s[:1]) == len(s)
}
