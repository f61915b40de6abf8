package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gitpub-go/internal/gitpub"
)

// Repository operations, as used by FakeRepository.FailOn.
const (
	RepoCurrentBranch = "current-branch"
	RepoListBranches  = "list-branches"
	RepoCreateBranch  = "create-branch"
	RepoCheckout      = "checkout"
	RepoAdd           = "add"
	RepoHasStaged     = "has-staged"
	RepoCommit        = "commit"
	RepoReadFile      = "read-file"
)

// FakeRepository is a gitpub.Repository over a real working directory with
// in-memory branches. Each branch is a snapshot of committed files; checking
// out a branch writes its files into the working tree and removes files
// committed only on the branch being left. Safe for concurrent use.
type FakeRepository struct {
	mu       sync.Mutex
	root     string
	current  string
	branches map[string]map[string][]byte
	staged   map[string][]byte // nil value stages a deletion
	commits  map[string][]string
	fail     map[string]error
	checkout []string
}

// NewFakeRepository creates a repository rooted at root with an empty
// branch "main" checked out.
func NewFakeRepository(root string) *FakeRepository {
	return &FakeRepository{
		root:     root,
		current:  "main",
		branches: map[string]map[string][]byte{"main": {}},
		staged:   make(map[string][]byte),
		commits:  make(map[string][]string),
		fail:     make(map[string]error),
	}
}

// FailOn makes op return err. A target of the form op+":"+arg fails only for
// that argument, e.g. FailOn("checkout:main", err).
func (r *FakeRepository) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

// ClearFailures removes every scripted failure.
func (r *FakeRepository) ClearFailures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.fail)
}

func (r *FakeRepository) failure(op, arg string) error {
	if err, ok := r.fail[op+":"+arg]; ok {
		return err
	}
	return r.fail[op]
}

// Commits returns the commit messages on branch, oldest first.
func (r *FakeRepository) Commits(branch string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commits[branch]...)
}

// Checkouts returns every branch checked out so far, in order.
func (r *FakeRepository) Checkouts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.checkout...)
}

// Committed returns the committed content of path on branch.
func (r *FakeRepository) Committed(branch, path string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.branches[branch][path]
	return data, ok
}

// WriteFile writes content to path in the working tree.
func (r *FakeRepository) WriteFile(path, content string) error {
	abs := filepath.Join(r.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0644)
}

func (r *FakeRepository) Root() string { return r.root }

func (r *FakeRepository) CurrentBranch(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(RepoCurrentBranch, ""); err != nil {
		return "", err
	}
	return r.current, nil
}

func (r *FakeRepository) ListBranches(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(RepoListBranches, ""); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(r.branches)), nil
}

func (r *FakeRepository) CreateBranch(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(RepoCreateBranch, name); err != nil {
		return err
	}
	if _, ok := r.branches[name]; ok {
		return fmt.Errorf("branch %s already exists", name)
	}
	r.branches[name] = maps.Clone(r.branches[r.current])
	return nil
}

// Checkout fails once ctx is done, like a killed git process.
func (r *FakeRepository) Checkout(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.failure(RepoCheckout, name); err != nil {
		return err
	}
	target, ok := r.branches[name]
	if !ok {
		return fmt.Errorf("branch %s: %w", name, gitpub.ErrNotFound)
	}
	for p := range r.branches[r.current] {
		if _, keep := target[p]; keep {
			continue
		}
		if err := os.Remove(r.abs(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	for p, data := range target {
		if err := os.MkdirAll(filepath.Dir(r.abs(p)), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(r.abs(p), data, 0644); err != nil {
			return err
		}
	}
	r.current = name
	clear(r.staged)
	r.checkout = append(r.checkout, name)
	return nil
}

func (r *FakeRepository) Add(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(RepoAdd, path); err != nil {
		return err
	}
	data, err := os.ReadFile(r.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		if _, tracked := r.branches[r.current][path]; !tracked {
			return fmt.Errorf("pathspec %s did not match any files", path)
		}
		r.staged[path] = nil
		return nil
	}
	if err != nil {
		return err
	}
	r.staged[path] = data
	return nil
}

func (r *FakeRepository) HasStagedChanges(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(RepoHasStaged, ""); err != nil {
		return false, err
	}
	return r.hasStaged(), nil
}

func (r *FakeRepository) hasStaged() bool {
	head := r.branches[r.current]
	for p, data := range r.staged {
		old, ok := head[p]
		if data == nil && ok {
			return true
		}
		if data != nil && (!ok || !bytes.Equal(old, data)) {
			return true
		}
	}
	return false
}

func (r *FakeRepository) Commit(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(RepoCommit, ""); err != nil {
		return err
	}
	if !r.hasStaged() {
		return fmt.Errorf("nothing to commit")
	}
	head := r.branches[r.current]
	for p, data := range r.staged {
		if data == nil {
			delete(head, p)
			continue
		}
		head[p] = data
	}
	clear(r.staged)
	r.commits[r.current] = append(r.commits[r.current], message)
	return nil
}

func (r *FakeRepository) ReadFile(_ context.Context, branch, path string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(RepoReadFile, path); err != nil {
		return nil, err
	}
	files, ok := r.branches[branch]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", branch, gitpub.ErrNotFound)
	}
	data, ok := files[path]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", path, branch, gitpub.ErrNotFound)
	}
	return bytes.Clone(data), nil
}

func (r *FakeRepository) abs(path string) string {
	return filepath.Join(r.root, filepath.FromSlash(path))
}

// Compile-time check
var _ gitpub.Repository = (*FakeRepository)(nil)
