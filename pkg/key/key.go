// Package key implements the engine's type-erased build key.
//
// A Key is an opaque, totally-orderable, hashable, printable identifier for
// something build-addressable (a file path, an oracle query, a directory
// listing). Rule layers work with their own strongly-typed key structs;
// this package erases them to a homogeneous (TypeTag, Bytes) pair so the
// dependency database can store and compare keys without knowing about any
// particular rule type.
package key

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TypeTag names the rule type a Key belongs to, e.g. "file", "oracle".
type TypeTag string

// Key is the erased, comparable identity of a build target.
//
// Two Keys are equal iff their TypeTag and Bytes are equal, so Key can be
// used directly as a Go map key.
type Key struct {
	tag   TypeTag
	bytes string // json-canonical encoding of the typed key, used for == and ordering
	text  string // cached human-readable form
}

// Erase converts a strongly-typed key value into its erased form. The value
// must be JSON-marshalable; its marshaled form is used for equality and
// ordering, so two distinct Go values that marshal identically erase to the
// same Key.
func Erase[T any](tag TypeTag, v T) Key {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("key: cannot erase value of type %T: %w", v, err))
	}
	return Key{
		tag:   tag,
		bytes: string(b),
		text:  fmt.Sprintf("%s:%s", tag, string(b)),
	}
}

// Tag returns the key's rule-type tag.
func (k Key) Tag() TypeTag {
	return k.tag
}

// Bytes returns the canonical encoded payload of the key.
func (k Key) Bytes() []byte {
	return []byte(k.bytes)
}

// String renders the key as "<tag>:<payload>", used for logging, the stack
// trace prefix on errors, and the persisted Entry name.
func (k Key) String() string {
	return k.text
}

// IsZero reports whether k is the zero Key (no tag set).
func (k Key) IsZero() bool {
	return k.tag == "" && k.bytes == ""
}

// Compare gives Key a total order: first by tag, then by encoded payload.
// Used to produce deterministic iteration order for diagnostics and tests.
func Compare(a, b Key) int {
	if a.tag != b.tag {
		if a.tag < b.tag {
			return -1
		}
		return 1
	}
	return bytes.Compare([]byte(a.bytes), []byte(b.bytes))
}

// Equal reports whether a and b erase to the same key.
func Equal(a, b Key) bool {
	return a.tag == b.tag && a.bytes == b.bytes
}

// Decode attempts to recover the originally-erased value into dst (a
// pointer), for rule bodies that need to inspect their own key's fields
// rather than treat it as fully opaque.
func Decode(k Key, dst any) error {
	return json.Unmarshal([]byte(k.bytes), dst)
}

// jsonKey is the serialized form of a Key, so a Key stored inside a
// persisted Entry (its Dependencies) reads back as the same Key.
type jsonKey struct {
	Tag   TypeTag `json:"tag"`
	Bytes string  `json:"bytes"`
}

func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonKey{Tag: k.tag, Bytes: k.bytes})
}

func (k *Key) UnmarshalJSON(data []byte) error {
	var j jsonKey
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*k = Key{tag: j.Tag, bytes: j.Bytes, text: fmt.Sprintf("%s:%s", j.Tag, j.Bytes)}
	return nil
}
