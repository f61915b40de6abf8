package app

import "gitpub-go/internal/gitpub"

// Operation tracks one synchronization round run by a CLI command.
// Operations are created in memory with ID=0 and get the history round ID
// once recorded.
type Operation struct {
	ID      int64
	Name    string // push, fetch or commit
	Remote  string
	Status  string // gitpub.RoundOK or gitpub.RoundFailed
	Changed int
	Err     string
}

// NewOperation creates a new in-memory operation that succeeds unless failed.
func NewOperation(name, remote string) *Operation {
	return &Operation{
		Name:   name,
		Remote: remote,
		Status: gitpub.RoundOK,
	}
}

// Persisted returns true if this operation has been recorded in the history.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed with err.
func (op *Operation) Fail(err error) {
	op.Status = gitpub.RoundFailed
	op.Err = err.Error()
}
