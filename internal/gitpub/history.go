package gitpub

import (
	"context"
	"time"
)

// Round statuses recorded in History.
const (
	RoundRunning = "running"
	RoundOK      = "ok"
	RoundFailed  = "failed"
)

// RoundRecord is one synchronization round as recorded in History.
type RoundRecord struct {
	ID         int64
	Operation  string
	Remote     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Changed    int
	Error      string
}

// History records synchronization rounds.
type History interface {
	// StartRound records the start of a round and returns its ID.
	StartRound(ctx context.Context, operation, remote string) (int64, error)

	// FinishRound records the outcome of round id. errMsg is empty on success.
	FinishRound(ctx context.Context, id int64, status string, changed int, errMsg string) error

	// ListRounds returns the most recent rounds, newest first.
	ListRounds(ctx context.Context, limit int) ([]RoundRecord, error)

	Close() error
}
