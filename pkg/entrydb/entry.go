// Package entrydb implements the persistent dependency database: an
// on-disk map from an erased build key to its Entry, with in-memory
// optimistic-concurrency mutation helpers. It generalizes the teacher's
// pkg/database (Object-keyed generic store, Modify/CreateOrModify retry
// loop) and pkg/impl/database/filesystem (vfs+yaml persistence) from
// namespace/name/type-tagged k8s-style objects to the engine's erased
// key.Key.
package entrydb

import (
	"fmt"

	"github.com/brisklabs/buildengine/pkg/key"
)

// ErrModified is returned by SetEntry when the stored generation has moved
// on since the caller last read it; callers retry via Modify.
var ErrModified = fmt.Errorf("entry modified")

// ErrNotExist is returned by GetEntry when no entry is stored for the key.
var ErrNotExist = fmt.Errorf("entry not found")

// Trace is a single timestamped span recorded by action.Traced, typically
// wrapping a sub-process invocation.
type Trace struct {
	Command string  `json:"command"`
	Start   float64 `json:"start"`
	Stop    float64 `json:"stop"`
}

// Entry is the persisted unit of the dependency database: one rule's last
// known value and build bookkeeping.
type Entry struct {
	// Name is the printable form of the key, kept alongside the erased
	// key so dumps and the profile report don't need a reverse index.
	Name string `json:"name"`

	// Value is the last produced serialized value.
	Value []byte `json:"value"`

	// BuiltRun is the run counter at which the rule last executed (or was
	// confirmed fresh by the staleness check).
	BuiltRun int64 `json:"builtRun"`

	// ChangedRun is the run counter at which Value last differed from its
	// predecessor. Sticky: only a Changed comparator result advances it.
	ChangedRun int64 `json:"changedRun"`

	// Dependencies is the ordered list of keys depended upon, in the
	// order apply was called, flattened across dependency groups.
	Dependencies []key.Key `json:"dependencies"`

	// ExecutionTime is the wall-clock duration of the last execution, in
	// seconds.
	ExecutionTime float64 `json:"executionTime"`

	// Traces is the ordered list of spans recorded during the last
	// execution.
	Traces []Trace `json:"traces,omitempty"`

	// Generation is bumped on every successful SetEntry and used for
	// optimistic-concurrency detection; it is persisted with the rest of
	// the Entry.
	Generation int64 `json:"generation"`
}

// Clone returns a deep-enough copy of e suitable for speculative
// modification before a compare-and-swap SetEntry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return &Entry{}
	}
	c := *e
	c.Dependencies = append([]key.Key(nil), e.Dependencies...)
	c.Traces = append([]Trace(nil), e.Traces...)
	return &c
}
