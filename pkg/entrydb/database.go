package entrydb

import (
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/mandelsoft/logging"
)

// REALM is the logging realm for entry-database operations, mirroring the
// teacher's pkg/database logging realm convention.
var REALM = logging.DefineRealm("entrydb", "Dependency Database Support")

var log = logging.DynamicLogger(logging.DefaultContext(), REALM)

// Lister enumerates the keys currently stored, for compaction, reporting,
// and the `ectl get` inspection command.
type Lister interface {
	ListKeys() ([]key.Key, error)
}

// Database is the persistent Entry store. Implementations must serialize
// concurrent SetEntry calls for the same key (GetEntry/SetEntry pairs race
// only against each other, never corrupt a single Entry) but need not
// serialize across distinct keys.
type Database interface {
	Lister

	// GetEntry returns the stored Entry for k, or ErrNotExist.
	GetEntry(k key.Key) (*Entry, error)

	// SetEntry stores e under k. If e.Generation does not match the
	// currently stored generation, it returns ErrModified and leaves the
	// store untouched.
	SetEntry(k key.Key, e *Entry) error

	// DeleteEntry removes the stored entry for k, if any. Used only by
	// explicit compaction; never called by the resolver during normal
	// operation.
	DeleteEntry(k key.Key) error

	// Close flushes and releases any underlying resources.
	Close() error
}

// Specification constructs a Database, mirroring the teacher's
// database.Specification[O] factory pattern.
type Specification interface {
	Create() (Database, error)
}
