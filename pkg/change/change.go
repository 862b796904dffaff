// Package change implements the engine's three-way change-detection result
// and the comparators rules register to produce it.
package change

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/modern-go/reflect2"
)

// Result is the three-way outcome of comparing a rule's newly-produced
// value against its previously-stored value.
type Result int

const (
	// Equal means the new value is identical to the old one; dependents
	// are not rebuilt and the entry's changedRun is left untouched.
	Equal Result = iota
	// Changed means the new value differs; dependents must rebuild and
	// the entry's changedRun advances to the current run.
	Changed
	// RebuiltButEquivalent means the rule body ran (it was not skipped by
	// the staleness check) but declared its output equivalent to the
	// previous one for dependency purposes, without being byte-identical.
	// Behaves like Equal from a dependent's point of view.
	RebuiltButEquivalent
)

func (r Result) String() string {
	switch r {
	case Equal:
		return "Equal"
	case Changed:
		return "Changed"
	case RebuiltButEquivalent:
		return "RebuiltButEquivalent"
	default:
		return "Unknown"
	}
}

// AdvancesChangedRun reports whether this result should advance an entry's
// changedRun counter. Only Changed does; Equal and RebuiltButEquivalent are
// indistinguishable from the persisted entry's point of view (see
// DESIGN.md's Open Question decision on sticky changedRun).
func (r Result) AdvancesChangedRun() bool {
	return r == Changed
}

// Comparator decides the Result of comparing old and new serialized values
// of the same key. Registered per rule type in the Value Registry.
type Comparator func(old, new []byte) Result

// Digest returns the default comparator: byte-equality of a canonical
// digest of the two values. Values are compared by serializing each (if not
// already []byte) via JSON + JSON Canonicalization Scheme and hashing with
// sha256, matching the engine's default equality semantics for opaque
// rule outputs.
func Digest() Comparator {
	return func(old, new []byte) Result {
		if digest(old) == digest(new) {
			return Equal
		}
		return Changed
	}
}

// digest hashes arbitrary serialized value bytes, passing already-canonical
// bytes through unchanged and canonicalizing otherwise-ambiguous JSON via
// jcs so that semantically-identical-but-differently-ordered JSON compares
// equal.
func digest(b []byte) string {
	if reflect2.IsNil(b) || len(b) == 0 {
		return ""
	}
	canon, err := jcs.Transform(b)
	if err != nil {
		// Not JSON at all (e.g. raw binary payload): hash the bytes directly.
		canon = b
	}
	h := sha256.Sum256(canon)
	return hex.EncodeToString(h[:])
}

// HashValue canonicalizes and hashes an arbitrary Go value the same way
// Digest hashes raw bytes; used by rule layers that want to precompute a
// comparable fingerprint without round-tripping through []byte first.
func HashValue(v any) string {
	if reflect2.IsNil(v) {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return digest(data)
}

// Modtime returns a comparator for source-like keys whose "value" is a
// modification timestamp: Changed iff the new timestamp is strictly after
// the old one, Equal otherwise. Used by rules that register it as their
// comparator; Options.ChangeMode does not select it.
func Modtime() Comparator {
	return func(old, new []byte) Result {
		ot, oerr := parseTime(old)
		nt, nerr := parseTime(new)
		if oerr != nil || nerr != nil {
			return Changed
		}
		if nt.After(ot) {
			return Changed
		}
		return Equal
	}
}

func parseTime(b []byte) (time.Time, error) {
	var t time.Time
	err := json.Unmarshal(b, &t)
	return t, err
}

// Always returns a comparator that always reports Changed, for rules whose
// output can never be trusted to compare meaningfully (e.g. a command
// invocation with side effects the engine cannot observe).
func Always() Comparator {
	return func(old, new []byte) Result {
		return Changed
	}
}
