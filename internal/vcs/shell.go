package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"gitpub-go/internal/gitpub"
)

// ShellRepository implements gitpub.Repository by running the git command.
type ShellRepository struct {
	root string
	opts Options
}

// NewShellRepository creates a repository for the working tree at root.
func NewShellRepository(root string, opts Options) *ShellRepository {
	opts.applyDefaults()
	return &ShellRepository{root: root, opts: opts}
}

// OpenShellRepository locates the top level of the working tree containing dir.
func OpenShellRepository(ctx context.Context, dir string, opts Options) (*ShellRepository, error) {
	r := NewShellRepository(dir, opts)
	out, err := r.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("locating repository: %w", err)
	}
	r.root = strings.TrimSpace(string(out))
	return r, nil
}

func (r *ShellRepository) Root() string { return r.root }

func (r *ShellRepository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("getting current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *ShellRepository) ListBranches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "for-each-ref", "--format=%(refname:lstrip=2)", "refs/heads/")
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	return strings.Fields(string(out)), nil
}

func (r *ShellRepository) CreateBranch(ctx context.Context, name string) error {
	if _, err := r.run(ctx, "branch", "--", name); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

func (r *ShellRepository) Checkout(ctx context.Context, name string) error {
	if _, err := r.run(ctx, "checkout", "-q", name, "--"); err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}
	return nil
}

func (r *ShellRepository) Add(ctx context.Context, path string) error {
	if _, err := r.run(ctx, "add", "-A", "--", path); err != nil {
		return fmt.Errorf("adding %s: %w", path, err)
	}
	return nil
}

func (r *ShellRepository) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := r.run(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var perr *gitpub.ProcessError
	if errors.As(err, &perr) && perr.ExitCode == 1 {
		return true, nil
	}
	return false, fmt.Errorf("checking staged changes: %w", err)
}

func (r *ShellRepository) Commit(ctx context.Context, message string) error {
	_, err := r.run(ctx,
		"-c", "user.name="+r.opts.AuthorName,
		"-c", "user.email="+r.opts.AuthorEmail,
		"commit", "-q", "-m", message)
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func (r *ShellRepository) ReadFile(ctx context.Context, branch, path string) ([]byte, error) {
	obj := "refs/heads/" + branch + ":" + path
	if _, err := r.run(ctx, "rev-parse", "--verify", "--quiet", obj); err != nil {
		var perr *gitpub.ProcessError
		if errors.As(err, &perr) && perr.ExitCode == 1 {
			return nil, fmt.Errorf("%s on %s: %w", path, branch, gitpub.ErrNotFound)
		}
		return nil, fmt.Errorf("resolving %s on %s: %w", path, branch, err)
	}
	out, err := r.run(ctx, "cat-file", "blob", obj)
	if err != nil {
		return nil, fmt.Errorf("reading %s on %s: %w", path, branch, err)
	}
	return out, nil
}

// run executes git in the working tree and returns its standard output.
// A non-zero exit yields a *gitpub.ProcessError carrying standard error.
func (r *ShellRepository) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-C", r.root}, args...)
	cmd := exec.CommandContext(ctx, r.opts.GitPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.opts.Logger.Debug("running git", "args", args)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &gitpub.ProcessError{
				Args:     append([]string{r.opts.GitPath}, full...),
				ExitCode: exitErr.ExitCode(),
				Output:   stderr.String(),
			}
		}
		return out, err
	}
	return out, nil
}

// Compile-time check
var _ gitpub.Repository = (*ShellRepository)(nil)
