package gitpub

import "context"

// Repository is the version-control collaborator used by TrackingBranch.
// Paths are relative to Root and use forward slashes. Implementations
// backed by an external command return *ProcessError on non-zero exit.
type Repository interface {
	// Root returns the absolute path of the working tree.
	Root() string

	// CurrentBranch returns the name of the checked-out branch.
	CurrentBranch(ctx context.Context) (string, error)

	// ListBranches returns the local branch names.
	ListBranches(ctx context.Context) ([]string, error)

	// CreateBranch creates name at the current HEAD without checking it out.
	CreateBranch(ctx context.Context, name string) error

	// Checkout switches the working tree to branch name.
	Checkout(ctx context.Context, name string) error

	// Add stages path for the next commit.
	Add(ctx context.Context, path string) error

	// HasStagedChanges reports whether the index differs from HEAD.
	HasStagedChanges(ctx context.Context) (bool, error)

	// Commit records the staged changes with message.
	Commit(ctx context.Context, message string) error

	// ReadFile returns the content of path as committed on branch.
	// It returns an error wrapping ErrNotFound if the branch or file does not exist.
	ReadFile(ctx context.Context, branch, path string) ([]byte, error)
}
