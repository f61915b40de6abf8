package gitpub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Commit messages used on the tracking branch.
const (
	PushMessage  = "publish doc changes to remote"
	FetchMessage = "fetch from remote"
)

// DefaultTrackingBranch returns the tracking branch name for remote name.
func DefaultTrackingBranch(name string) string {
	return path.Join("gitpub", name, "master")
}

// RoundState is the position of a synchronization round.
type RoundState int

const (
	StateIdle RoundState = iota
	StateBranchCaptured
	StateCheckedOut
	StateOperationApplied
	StateCommitted
	StateRestored
)

func (s RoundState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBranchCaptured:
		return "branch captured"
	case StateCheckedOut:
		return "checked out to staging"
	case StateOperationApplied:
		return "operation applied"
	case StateCommitted:
		return "committed"
	case StateRestored:
		return "restored"
	default:
		return fmt.Sprintf("RoundState(%d)", int(s))
	}
}

// TrackingOptions tunes a TrackingBranch. Zero values select defaults.
type TrackingOptions struct {
	Branch    string
	ImportDir string
	Logger    Logger
}

// TrackingBranch runs Remote operations on a dedicated branch that stores the
// persisted mapping, committing the mapping after every round. The branch the
// caller had checked out is restored on every exit path once the round has
// switched away from it.
//
// A TrackingBranch also holds a stage: a candidate mapping accumulated with
// Add and Rm and published with Commit.
type TrackingBranch struct {
	repo   Repository
	remote *Remote
	branch string
	stage  *Mapping
	state  RoundState
	logger Logger
}

// ReadTrackedMapping reads the mapping file of remote name as committed on
// branch, without touching the working tree. A missing branch or file yields
// an empty mapping and a zero RemoteSpec.
func ReadTrackedMapping(ctx context.Context, repo Repository, branch, name string) (*Mapping, RemoteSpec, error) {
	data, err := repo.ReadFile(ctx, branch, MappingRelPath(name))
	if errors.Is(err, ErrNotFound) {
		return NewMapping(), RemoteSpec{}, nil
	}
	if err != nil {
		return nil, RemoteSpec{}, fmt.Errorf("reading mapping from %s: %w", branch, err)
	}
	m, spec, err := DecodeMapping(bytes.NewReader(data))
	if err != nil {
		return nil, RemoteSpec{}, fmt.Errorf("decoding mapping from %s: %w", branch, err)
	}
	return m, spec, nil
}

// OpenTrackingBranch resolves remote name against its tracking branch. The
// adapter comes from spec, or from the type and configuration committed in
// the mapping file when spec has no type.
func OpenTrackingBranch(ctx context.Context, repo Repository, registry *Registry, name string, spec RemoteSpec, opts TrackingOptions) (*TrackingBranch, error) {
	branch := opts.Branch
	if branch == "" {
		branch = DefaultTrackingBranch(name)
	}
	persisted, saved, err := ReadTrackedMapping(ctx, repo, branch, name)
	if err != nil {
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

	remote := NewRemote(name, repo.Root(), spec, adapter, RemoteOptions{
		ImportDir: opts.ImportDir,
		Logger:    opts.Logger,
	})
	remote.SetMapping(persisted)
	opts.Branch = branch
	return NewTrackingBranch(repo, remote, opts), nil
}

// NewTrackingBranch wraps remote, whose persisted mapping is taken as the
// current ledger.
func NewTrackingBranch(repo Repository, remote *Remote, opts TrackingOptions) *TrackingBranch {
	branch := opts.Branch
	if branch == "" {
		branch = DefaultTrackingBranch(remote.Name())
	}
	logger := opts.Logger
	if logger == nil {
		logger = NewNopLogger()
	}
	return &TrackingBranch{
		repo:   repo,
		remote: remote,
		branch: branch,
		logger: logger,
	}
}

func (t *TrackingBranch) Branch() string  { return t.branch }
func (t *TrackingBranch) Remote() *Remote { return t.remote }

// State returns how far the most recent round progressed.
func (t *TrackingBranch) State() RoundState { return t.state }

// Push publishes candidate and commits the resulting mapping. Document
// content is read from the caller's working tree before switching branches.
func (t *TrackingBranch) Push(ctx context.Context, candidate *Mapping) (*Diff, error) {
	src := SnapshotDocuments(DirSource{Root: t.repo.Root()}, candidate.Paths())
	var diff *Diff
	err := t.round(ctx, PushMessage, func(ctx context.Context) ([]string, error) {
		d, err := t.remote.PushFrom(ctx, candidate, src)
		diff = d
		return nil, err
	})
	return diff, err
}

// Fetch pulls remote documents onto the tracking branch and commits them
// together with the mapping. It returns the paths written.
func (t *TrackingBranch) Fetch(ctx context.Context) ([]string, error) {
	var written []string
	err := t.round(ctx, FetchMessage, func(ctx context.Context) ([]string, error) {
		w, err := t.remote.Fetch(ctx)
		written = w
		return w, err
	})
	return written, err
}

// Stage returns the stage, creating it from the persisted mapping if needed.
func (t *TrackingBranch) Stage() *Mapping {
	if t.stage == nil {
		t.stage = t.remote.Mapping().Copy()
	}
	return t.stage
}

// HasStage reports whether a stage exists.
func (t *TrackingBranch) HasStage() bool { return t.stage != nil }

// SetStage replaces the stage. A nil mapping discards it.
func (t *TrackingBranch) SetStage(m *Mapping) { t.stage = m }

// Add stages p with attrs. A path already mapped keeps its remote ID; its
// hash is cleared so the next commit fingerprints the current content.
func (t *TrackingBranch) Add(p string, attrs map[string]string) (string, error) {
	rel, err := t.relPath(p)
	if err != nil {
		return "", err
	}
	stage := t.Stage()
	rec := Record{Attrs: attrs}
	if old, ok := stage.Get(rel); ok {
		rec.RemoteID = old.RemoteID
		if attrs == nil {
			rec.Attrs = old.Attrs
		}
	}
	stage.Set(rel, rec)
	return rel, nil
}

// Rm stages the removal of p. It returns ErrNotFound if p is not staged.
func (t *TrackingBranch) Rm(p string) (string, error) {
	rel, err := t.relPath(p)
	if err != nil {
		return "", err
	}
	if err := t.Stage().Remove(rel); err != nil {
		return "", err
	}
	return rel, nil
}

// Commit publishes the stage and commits the resulting mapping with message.
// The stage is cleared only when the round succeeds.
func (t *TrackingBranch) Commit(ctx context.Context, message string) (*Diff, error) {
	if t.stage == nil {
		return nil, ErrNothingStaged
	}
	if message == "" {
		message = PushMessage
	}
	stage := t.stage
	src := SnapshotDocuments(DirSource{Root: t.repo.Root()}, stage.Paths())
	var diff *Diff
	err := t.round(ctx, message, func(ctx context.Context) ([]string, error) {
		d, err := t.remote.PushFrom(ctx, stage, src)
		diff = d
		return nil, err
	})
	if err != nil {
		return diff, err
	}
	t.stage = nil
	return diff, nil
}

// Status compares the stage, or the persisted mapping when nothing is
// staged, with the persisted mapping. Staged records are fingerprinted from
// the working tree.
func (t *TrackingBranch) Status() (*Diff, error) {
	candidate := t.remote.Mapping()
	if t.stage != nil {
		candidate = t.stage
	}
	cand, err := FingerprintCandidate(candidate, DirSource{Root: t.repo.Root()})
	if err != nil {
		return nil, err
	}
	return DiffMappings(cand, t.remote.Mapping()), nil
}

// round runs op on the tracking branch. The persisted mapping is reloaded
// from the branch before op and committed after it, also when op fails part
// way, so that changes already applied to the remote are recorded.
func (t *TrackingBranch) round(ctx context.Context, message string, op func(context.Context) ([]string, error)) (err error) {
	t.state = StateIdle

	orig, err := t.repo.CurrentBranch(ctx)
	if err != nil {
		return &RoundError{Stage: StageCapture, Err: err}
	}
	t.state = StateBranchCaptured

	if err := t.ensureBranch(ctx); err != nil {
		return &RoundError{Stage: StageCheckout, Err: err}
	}
	if err := t.repo.Checkout(ctx, t.branch); err != nil {
		return &RoundError{Stage: StageCheckout, Err: err}
	}
	t.state = StateCheckedOut
	t.logger.Debug("checked out tracking branch", "branch", t.branch, "from", orig)

	defer func() {
		if rerr := t.repo.Checkout(context.WithoutCancel(ctx), orig); rerr != nil {
			err = errors.Join(err, &RoundError{Stage: StageRestore, Err: rerr})
			return
		}
		t.state = StateRestored
		t.logger.Debug("restored branch", "branch", orig)
	}()

	if err := t.remote.Reload(); err != nil {
		return &RoundError{Stage: StageOperation, Err: err}
	}

	written, opErr := op(ctx)
	if opErr != nil {
		opErr = &RoundError{Stage: StageOperation, Err: opErr}
	} else {
		t.state = StateOperationApplied
	}

	// Changes already applied to the remote are recorded even when ctx is done.
	if cerr := t.commit(context.WithoutCancel(ctx), message, written); cerr != nil {
		return errors.Join(opErr, &RoundError{Stage: StageCommit, Err: cerr})
	}
	if opErr != nil {
		return opErr
	}
	t.state = StateCommitted
	return nil
}

func (t *TrackingBranch) ensureBranch(ctx context.Context) error {
	branches, err := t.repo.ListBranches(ctx)
	if err != nil {
		return err
	}
	for _, b := range branches {
		if b == t.branch {
			return nil
		}
	}
	t.logger.Info("creating tracking branch", "branch", t.branch)
	return t.repo.CreateBranch(ctx, t.branch)
}

func (t *TrackingBranch) commit(ctx context.Context, message string, written []string) error {
	if err := t.remote.Save(); err != nil {
		return err
	}
	for _, p := range append([]string{MappingRelPath(t.remote.Name())}, written...) {
		if err := t.repo.Add(ctx, p); err != nil {
			return err
		}
	}
	staged, err := t.repo.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !staged {
		t.logger.Debug("nothing to commit", "branch", t.branch)
		return nil
	}
	if err := t.repo.Commit(ctx, message); err != nil {
		return err
	}
	t.logger.Info("committed mapping", "branch", t.branch, "message", message)
	return nil
}

// relPath converts p to a slash-separated path relative to the repository root.
func (t *TrackingBranch) relPath(p string) (string, error) {
	root := t.repo.Root()
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is not inside %s", p, root)
	}
	return filepath.ToSlash(rel), nil
}
