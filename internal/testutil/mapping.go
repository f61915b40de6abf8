package testutil

import "gitpub-go/internal/gitpub"

// NewMapping builds a mapping holding records, each stored under its Path.
func NewMapping(records ...gitpub.Record) *gitpub.Mapping {
	m := gitpub.NewMapping()
	for _, rec := range records {
		m.Set(rec.Path, rec)
	}
	return m
}
