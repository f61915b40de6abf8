package gitpub

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers check them with errors.Is.

// ErrNotFound is returned when a path or remote ID is not present in a mapping,
// or when a file does not exist on a branch.
var ErrNotFound = errors.New("not found")

// ErrFetchUnsupported is returned by Fetch when the adapter cannot retrieve documents.
// It wraps ErrNotFound so callers treating both alike keep working.
var ErrFetchUnsupported = fmt.Errorf("fetch unsupported by remote adapter: %w", ErrNotFound)

// ErrConfiguration is returned for an unknown or missing adapter type, or an adapter
// rejecting its configuration.
var ErrConfiguration = errors.New("configuration error")

// ErrRetrieval is returned when an adapter fails to retrieve a single remote document.
var ErrRetrieval = errors.New("retrieval error")

// ErrInvalidRemoteID is returned for a remote ID that cannot name a document
// file of its own.
var ErrInvalidRemoteID = errors.New("invalid remote id")

// ErrNothingStaged is returned by Commit when no stage exists.
var ErrNothingStaged = errors.New("no changes to commit")

// ProcessError reports a non-zero exit from an external command.
type ProcessError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Round stages, as reported by RoundError.
const (
	StageCapture   = "capture branch"
	StageCheckout  = "checkout staging branch"
	StageOperation = "apply operation"
	StageCommit    = "commit mapping"
	StageRestore   = "restore branch"
)

// RoundError identifies which stage of a synchronization round failed.
type RoundError struct {
	Stage string
	Err   error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}
