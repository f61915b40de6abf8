package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"gitpub-go/internal/gitpub"
)

// GoGitRepository implements gitpub.Repository in process with go-git.
type GoGitRepository struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string
	opts     Options
}

// OpenGoGitRepository opens the repository containing dir.
func OpenGoGitRepository(dir string, opts Options) (*GoGitRepository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", dir, err)
	}
	return newGoGitRepository(repo, opts)
}

func newGoGitRepository(repo *git.Repository, opts Options) (*GoGitRepository, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	opts.applyDefaults()
	return &GoGitRepository{
		repo:     repo,
		worktree: wt,
		root:     wt.Filesystem.Root(),
		opts:     opts,
	}, nil
}

func (r *GoGitRepository) Root() string { return r.root }

func (r *GoGitRepository) CurrentBranch(ctx context.Context) (string, error) {
	// HEAD may point at a branch without commits yet.
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", fmt.Errorf("HEAD is detached")
	}
	return head.Target().Short(), nil
}

func (r *GoGitRepository) ListBranches(ctx context.Context) ([]string, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	return names, nil
}

func (r *GoGitRepository) CreateBranch(ctx context.Context, name string) error {
	refName := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(refName, true); err == nil {
		return fmt.Errorf("branch %s already exists", name)
	}
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(refName, head.Hash())); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

// Checkout switches to branch name. Only files that differ between the
// current and the target commit are touched, so untracked files and local
// edits to other files stay as they are, as with git checkout. A checkout
// that would overwrite a local edit or an untracked file is refused before
// anything changes.
func (r *GoGitRepository) Checkout(ctx context.Context, name string) error {
	refName := plumbing.NewBranchReferenceName(name)
	ref, err := r.repo.Reference(refName, true)
	if err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("checking out %s: reading HEAD: %w", name, err)
	}
	from, err := r.commitTree(head.Hash())
	if err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}
	to, err := r.commitTree(ref.Hash())
	if err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}
	changes, err := object.DiffTreeContext(ctx, from, to)
	if err != nil {
		return fmt.Errorf("checking out %s: comparing trees: %w", name, err)
	}
	if err := r.checkOverwrites(changes); err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}

	// Keep moves HEAD without resetting the worktree, which go-git would
	// otherwise do wholesale, untracked files included.
	if err := r.worktree.Checkout(&git.CheckoutOptions{Branch: refName, Keep: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}
	for _, ch := range changes {
		if err := r.applyChange(ch, to); err != nil {
			return fmt.Errorf("checking out %s: %w", name, err)
		}
	}
	r.opts.Logger.Debug("checked out", "branch", name, "files", len(changes))
	return nil
}

func (r *GoGitRepository) commitTree(hash plumbing.Hash) (*object.Tree, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree of %s: %w", hash, err)
	}
	return tree, nil
}

// checkOverwrites fails if any path in changes is edited, staged or
// untracked in the worktree. Ignored files are not reported by status and
// are overwritten.
func (r *GoGitRepository) checkOverwrites(changes object.Changes) error {
	if len(changes) == 0 {
		return nil
	}
	status, err := r.worktree.Status()
	if err != nil {
		return fmt.Errorf("getting worktree status: %w", err)
	}
	var blocked []string
	for _, ch := range changes {
		p := changePath(ch)
		if s, ok := status[p]; ok && (s.Staging != git.Unmodified || s.Worktree != git.Unmodified) {
			blocked = append(blocked, p)
		}
	}
	if len(blocked) > 0 {
		return fmt.Errorf("local changes to %s would be overwritten", strings.Join(blocked, ", "))
	}
	return nil
}

// applyChange brings one path of the worktree and the index in line with tree.
func (r *GoGitRepository) applyChange(ch *object.Change, tree *object.Tree) error {
	if ch.To.Name == "" {
		if _, err := r.worktree.Remove(ch.From.Name); err != nil {
			return fmt.Errorf("removing %s: %w", ch.From.Name, err)
		}
		removeEmptyParents(r.root, ch.From.Name)
		return nil
	}

	p := ch.To.Name
	if ch.To.TreeEntry.Mode == filemode.Submodule {
		return nil
	}
	f, err := tree.File(p)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p, err)
	}
	if err := writeBlob(filepath.Join(r.root, filepath.FromSlash(p)), f); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	if _, err := r.worktree.Add(p); err != nil {
		return fmt.Errorf("indexing %s: %w", p, err)
	}
	return nil
}

func changePath(ch *object.Change) string {
	if ch.To.Name != "" {
		return ch.To.Name
	}
	return ch.From.Name
}

func writeBlob(abs string, f *object.File) error {
	mode, err := f.Mode.ToOSFileMode()
	if err != nil {
		return err
	}
	contents, err := f.Contents()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if mode&os.ModeSymlink != 0 {
		return os.Symlink(contents, abs)
	}
	return os.WriteFile(abs, []byte(contents), mode.Perm())
}

// removeEmptyParents removes the directories above rel up to root while
// they are empty.
func removeEmptyParents(root, rel string) {
	for dir := filepath.Dir(filepath.FromSlash(rel)); dir != "."; dir = filepath.Dir(dir) {
		if os.Remove(filepath.Join(root, dir)) != nil {
			return
		}
	}
}

func (r *GoGitRepository) Add(ctx context.Context, path string) error {
	_, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(path)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if _, err := r.worktree.Remove(path); err != nil {
			return fmt.Errorf("staging removal of %s: %w", path, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("adding %s: %w", path, err)
	}
	if _, err := r.worktree.Add(path); err != nil {
		return fmt.Errorf("adding %s: %w", path, err)
	}
	return nil
}

func (r *GoGitRepository) HasStagedChanges(ctx context.Context) (bool, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return false, fmt.Errorf("getting worktree status: %w", err)
	}
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			return true, nil
		}
	}
	return false, nil
}

func (r *GoGitRepository) Commit(ctx context.Context, message string) error {
	who := &object.Signature{
		Name:  r.opts.AuthorName,
		Email: r.opts.AuthorEmail,
		When:  r.opts.Clock.Now(),
	}
	hash, err := r.worktree.Commit(message, &git.CommitOptions{Author: who, Committer: who})
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	r.opts.Logger.Debug("committed", "hash", hash.String())
	return nil
}

func (r *GoGitRepository) ReadFile(ctx context.Context, branch, path string) ([]byte, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, fmt.Errorf("branch %s: %w", branch, gitpub.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving branch %s: %w", branch, err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading commit of %s: %w", branch, err)
	}
	file, err := commit.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, fmt.Errorf("%s on %s: %w", path, branch, gitpub.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s on %s: %w", path, branch, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s on %s: %w", path, branch, err)
	}
	return []byte(contents), nil
}

// Compile-time check
var _ gitpub.Repository = (*GoGitRepository)(nil)
