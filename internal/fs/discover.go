// Package fs finds the local documents gitpub can publish.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DocumentExtensions lists the file extensions treated as documents.
var DocumentExtensions = []string{".rst", ".md"}

// IsDocument reports whether name has a document extension.
func IsDocument(name string) bool {
	return slices.Contains(DocumentExtensions, strings.ToLower(filepath.Ext(name)))
}

// Finder discovers documents inside a repository working tree.
type Finder struct {
	root    string
	matcher *IgnoreMatcher
}

// NewFinder creates a Finder for the working tree at root.
// A nil matcher ignores nothing.
func NewFinder(root string, matcher *IgnoreMatcher) *Finder {
	if matcher == nil {
		matcher = NewIgnoreMatcher(nil)
	}
	return &Finder{root: root, matcher: matcher}
}

// Resolve converts rawPath to an absolute path of a regular file or directory
// inside the working tree.
func (f *Finder) Resolve(rawPath string) (string, os.FileInfo, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	if _, err := f.rel(absPath); err != nil {
		return "", nil, err
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat path: %w", err)
	}
	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return "", nil, fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if !mode.IsRegular() && !mode.IsDir() {
		return "", nil, fmt.Errorf("not a regular file or directory: %s", absPath)
	}
	return absPath, info, nil
}

// FindDocuments returns the absolute paths of documents under dir in lexical
// order. Ignored files and directories are skipped. Without recursive only
// the direct children of dir are considered.
func (f *Finder) FindDocuments(dir string, recursive bool) ([]string, error) {
	absDir, info, err := f.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absDir)
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == absDir {
			return nil
		}
		rel, err := f.rel(p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || f.matcher.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsDocument(p) || f.matcher.Match(rel) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}

func (f *Finder) rel(absPath string) (string, error) {
	rel, err := filepath.Rel(f.root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is not inside %s", absPath, f.root)
	}
	return rel, nil
}
