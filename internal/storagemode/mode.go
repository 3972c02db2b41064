// Package storagemode decides, per request, which backend is authoritative
// and which backends receive writes.
package storagemode

// Preference selects the backend the deployment wants to use.
type Preference string

const (
	PreferDocument   Preference = "document"
	PreferRelational Preference = "relational"
)

// Settings is the configuration slice the resolver depends on.
type Settings struct {
	// RelationalConfigured is true when a Postgres DSN is present.
	RelationalConfigured bool
	// ReadOnlyFS is true when the runtime cannot write local files.
	ReadOnlyFS bool
	Preference Preference
	// DualWrite mirrors every relational write to the document store,
	// used during a live storage migration.
	DualWrite bool
}

// Mode answers the three independent questions the admission pipeline asks.
type Mode struct {
	ReadRelational     bool
	WriteRelational    bool
	WriteDocumentStore bool
}

// Resolve is a pure function of configuration. It is cheap enough to call on
// every decision point, so callers never cache the result: the read path and
// the write path may legitimately resolve differently on read-only runtimes.
func Resolve(s Settings) Mode {
	if !s.RelationalConfigured {
		return Mode{WriteDocumentStore: true}
	}

	if s.ReadOnlyFS {
		// A read-only filesystem cannot accept document writes no matter
		// what is requested, so the relational backend takes over fully.
		return Mode{ReadRelational: true, WriteRelational: true}
	}

	relational := s.Preference == PreferRelational
	return Mode{
		ReadRelational:     relational,
		WriteRelational:    relational,
		WriteDocumentStore: !relational || s.DualWrite,
	}
}
