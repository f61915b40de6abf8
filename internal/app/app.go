package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gitpub-go/internal/adapter"
	"gitpub-go/internal/config"
	"gitpub-go/internal/database"
	"gitpub-go/internal/fs"
	"gitpub-go/internal/gitpub"
	"gitpub-go/internal/vcs"
)

// GitpubApp is the application layer between the CLI and the tracking
// branches. It constructs all dependencies from config, exposes high-level
// operations that accept remote names and raw paths, records every round in
// the history store and persists stages between invocations.
type GitpubApp struct {
	cfg      *config.Config
	repo     gitpub.Repository
	registry *gitpub.Registry
	history  gitpub.History
	finder   *fs.Finder
	logger   gitpub.Logger
	closers  []io.Closer
	logFile  *os.File
}

// NewGitpubApp creates a fully wired GitpubApp for the repository containing dir.
// The caller must call Close when done.
func NewGitpubApp(ctx context.Context, cfg *config.Config, dir string) (*GitpubApp, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opID := gitpub.UUIDGenerator{}.New()
	sl, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	repo, err := vcs.Open(ctx, cfg.VCS.Backend, dir, vcs.Options{
		AuthorName:  cfg.VCS.AuthorName,
		AuthorEmail: cfg.VCS.AuthorEmail,
		Logger:      logger,
	})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	matcher, err := fs.LoadIgnoreMatcher(repo.Root(), cfg.Ignore)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	historyPath := cfg.HistoryDB
	if historyPath == "" {
		historyPath = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(historyPath), 0755); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	history, err := database.NewSQLiteHistory(historyPath, nil)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening history: %w", err)
	}

	registry := adapter.DefaultRegistry(adapter.Options{IDs: gitpub.UUIDGenerator{}, Clock: gitpub.RealClock{}})

	a := newGitpubApp(cfg, repo, registry, history, fs.NewFinder(repo.Root(), matcher), logger)
	a.logFile = logFile
	return a, nil
}

func newGitpubApp(cfg *config.Config, repo gitpub.Repository, registry *gitpub.Registry, history gitpub.History, finder *fs.Finder, logger gitpub.Logger) *GitpubApp {
	return &GitpubApp{
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		history:  history,
		finder:   finder,
		logger:   logger,
	}
}

// Root returns the repository working tree root.
func (a *GitpubApp) Root() string { return a.repo.Root() }

// Remotes returns the configured remotes.
func (a *GitpubApp) Remotes() []config.RemoteConfig { return a.cfg.Remotes }

// Push publishes every tracked document whose content changed since the
// last round, together with anything staged. The stage is cleared on success.
func (a *GitpubApp) Push(ctx context.Context, name string) (*gitpub.Diff, error) {
	tb, err := a.tracking(ctx, name)
	if err != nil {
		return nil, err
	}
	var diff *gitpub.Diff
	err = a.runRound(ctx, "push", name, func() (int, error) {
		var err error
		if tb.HasStage() {
			tb.SetStage(a.refingerprint(tb.Stage()))
			diff, err = tb.Commit(ctx, gitpub.PushMessage)
			if err == nil {
				err = a.saveStage(tb)
			}
		} else {
			diff, err = tb.Push(ctx, a.refingerprint(tb.Remote().Mapping()))
		}
		return changedCount(diff), err
	})
	return diff, err
}

// Fetch imports remote documents onto the tracking branch and returns the
// paths written.
func (a *GitpubApp) Fetch(ctx context.Context, name string) ([]string, error) {
	tb, err := a.tracking(ctx, name)
	if err != nil {
		return nil, err
	}
	var written []string
	err = a.runRound(ctx, "fetch", name, func() (int, error) {
		var err error
		written, err = tb.Fetch(ctx)
		return len(written), err
	})
	return written, err
}

// Add stages documents for publication to remote name. Directories are
// expanded to the documents they contain; recursive descends into
// subdirectories. It returns the staged repository-relative paths.
func (a *GitpubApp) Add(ctx context.Context, name string, rawPaths []string, recursive bool, attrs map[string]string) ([]string, error) {
	tb, err := a.tracking(ctx, name)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, raw := range rawPaths {
		abs, info, err := a.finder.Resolve(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		docs := []string{abs}
		if info.IsDir() {
			docs, err = a.finder.FindDocuments(abs, recursive)
			if err != nil {
				return nil, err
			}
		}
		for _, doc := range docs {
			rel, err := tb.Add(doc, attrs)
			if err != nil {
				return nil, err
			}
			added = append(added, rel)
		}
	}

	if err := a.saveStage(tb); err != nil {
		return nil, err
	}
	a.logger.Info("staged documents", "remote", name, "count", len(added))
	return added, nil
}

// Rm stages the removal of documents from remote name. The files need not
// exist any more.
func (a *GitpubApp) Rm(ctx context.Context, name string, rawPaths []string) ([]string, error) {
	tb, err := a.tracking(ctx, name)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, raw := range rawPaths {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		rel, err := tb.Rm(abs)
		if err != nil {
			return nil, fmt.Errorf("removing %s: %w", raw, err)
		}
		removed = append(removed, rel)
	}

	if err := a.saveStage(tb); err != nil {
		return nil, err
	}
	a.logger.Info("staged removals", "remote", name, "count", len(removed))
	return removed, nil
}

// Commit publishes the stage of remote name and commits the resulting
// mapping with message. It returns gitpub.ErrNothingStaged when there is no
// stage. A failed commit keeps the stage.
func (a *GitpubApp) Commit(ctx context.Context, name, message string) (*gitpub.Diff, error) {
	tb, err := a.tracking(ctx, name)
	if err != nil {
		return nil, err
	}
	if !tb.HasStage() {
		return nil, gitpub.ErrNothingStaged
	}
	var diff *gitpub.Diff
	err = a.runRound(ctx, "commit", name, func() (int, error) {
		var err error
		diff, err = tb.Commit(ctx, message)
		if err == nil {
			err = a.saveStage(tb)
		}
		return changedCount(diff), err
	})
	return diff, err
}

// Status compares the stage of remote name, or its tracked documents when
// nothing is staged, with the persisted mapping.
func (a *GitpubApp) Status(ctx context.Context, name string) (*gitpub.Diff, error) {
	tb, err := a.tracking(ctx, name)
	if err != nil {
		return nil, err
	}
	if !tb.HasStage() {
		tb.SetStage(a.refingerprint(tb.Remote().Mapping()))
	}
	return tb.Status()
}

// History returns the most recent rounds, newest first.
func (a *GitpubApp) History(ctx context.Context, limit int) ([]gitpub.RoundRecord, error) {
	return a.history.ListRounds(ctx, limit)
}

// Close closes the adapters, the history store and the log file.
func (a *GitpubApp) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing history: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

// tracking opens the tracking branch of remote name and loads its stage.
// A remote missing from the config is resolved from the remote type
// committed on its tracking branch.
func (a *GitpubApp) tracking(ctx context.Context, name string) (*gitpub.TrackingBranch, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid remote name %q: %w", name, gitpub.ErrConfiguration)
	}
	rc, _ := a.cfg.Remote(name)
	spec := gitpub.RemoteSpec{Type: rc.Type, Config: rc.Options}
	tb, err := gitpub.OpenTrackingBranch(ctx, a.repo, a.registry, name, spec, gitpub.TrackingOptions{
		Branch:    rc.Branch,
		ImportDir: rc.ImportDir,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	if c, ok := tb.Remote().Adapter().(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	stage, _, err := gitpub.LoadMapping(a.stagePath(name))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("loading stage of %s: %w", name, err)
	default:
		tb.SetStage(stage)
	}
	return tb, nil
}

// stagePath is where the stage of remote name is kept between invocations.
// It lives next to the mapping file but is never committed.
func (a *GitpubApp) stagePath(name string) string {
	return filepath.Join(a.repo.Root(), gitpub.MappingDir, name+".stage.json")
}

// saveStage writes the stage of tb, or removes the stage file when tb has none.
func (a *GitpubApp) saveStage(tb *gitpub.TrackingBranch) error {
	path := a.stagePath(tb.Remote().Name())
	if !tb.HasStage() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing stage: %w", err)
		}
		return nil
	}
	if err := tb.Stage().Save(path, tb.Remote().Spec()); err != nil {
		return fmt.Errorf("saving stage: %w", err)
	}
	return nil
}

// runRound records fn as one round in the history. Failing to record the
// outcome is logged, not returned.
func (a *GitpubApp) runRound(ctx context.Context, operation, remote string, fn func() (int, error)) error {
	op := NewOperation(operation, remote)
	id, err := a.history.StartRound(ctx, op.Name, op.Remote)
	if err != nil {
		return fmt.Errorf("recording %s: %w", operation, err)
	}
	op.ID = id

	changed, err := fn()
	op.Changed = changed
	if err != nil {
		op.Fail(err)
	}

	if ferr := a.history.FinishRound(context.WithoutCancel(ctx), op.ID, op.Status, op.Changed, op.Err); ferr != nil {
		a.logger.Warn("recording round outcome failed", "round", op.ID, "error", ferr)
	}
	a.logger.Info("round finished", "operation", op.Name, "remote", op.Remote, "status", op.Status, "changed", op.Changed)
	return err
}

// refingerprint returns a copy of m in which every record whose file is in
// the working tree carries no hash, so the next diff compares its current
// content. A record with a hash whose file is missing keeps it and counts as
// unchanged: fetched documents exist only on the tracking branch until it is
// merged. Records staged by Add carry no hash and are always read.
func (a *GitpubApp) refingerprint(m *gitpub.Mapping) *gitpub.Mapping {
	c := m.Copy()
	for _, rec := range c.Records() {
		if rec.Hash == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(a.repo.Root(), filepath.FromSlash(rec.Path))); errors.Is(err, os.ErrNotExist) {
			continue
		}
		rec.Hash = ""
		c.Set(rec.Path, rec)
	}
	return c
}

func changedCount(d *gitpub.Diff) int {
	if d == nil {
		return 0
	}
	return d.Len()
}
