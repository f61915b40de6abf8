// Package vcs provides the git repositories gitpub keeps its tracking
// branches in.
package vcs

import (
	"context"
	"fmt"

	"gitpub-go/internal/gitpub"
)

// Backend names accepted by Open.
const (
	BackendGoGit = "go-git"
	BackendShell = "git"
)

// Default commit identity used when none is configured.
const (
	DefaultAuthorName  = "gitpub"
	DefaultAuthorEmail = "gitpub@localhost"
)

// Options configure a repository. Zero values select defaults.
type Options struct {
	AuthorName  string
	AuthorEmail string
	// GitPath is the git executable used by the shell backend.
	GitPath string
	Clock   gitpub.Clock
	Logger  gitpub.Logger
}

func (o *Options) applyDefaults() {
	if o.AuthorName == "" {
		o.AuthorName = DefaultAuthorName
	}
	if o.AuthorEmail == "" {
		o.AuthorEmail = DefaultAuthorEmail
	}
	if o.GitPath == "" {
		o.GitPath = "git"
	}
	if o.Clock == nil {
		o.Clock = gitpub.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = gitpub.NewNopLogger()
	}
}

// Open opens the repository containing dir with the named backend.
// An empty backend selects go-git.
func Open(ctx context.Context, backend, dir string, opts Options) (gitpub.Repository, error) {
	switch backend {
	case "", BackendGoGit:
		return OpenGoGitRepository(dir, opts)
	case BackendShell:
		return OpenShellRepository(ctx, dir, opts)
	default:
		return nil, fmt.Errorf("unknown vcs backend %q: %w", backend, gitpub.ErrConfiguration)
	}
}
