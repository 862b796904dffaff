package entrydb

import (
	"errors"

	"github.com/brisklabs/buildengine/pkg/key"
)

// Modify applies mod to the current entry for k, retrying on ErrModified
// until the compare-and-swap succeeds. mod receives the current entry (a
// fresh Entry carrying only k's name if none is stored yet) and returns the entry to store
// plus whether a write is actually needed. Mirrors the teacher's
// database.Modify retry loop, specialized away from the generic
// Object/DBO type pair since entrydb has exactly one entry shape.
func Modify(db Database, k key.Key, mod func(*Entry) (*Entry, bool)) (*Entry, error) {
	for {
		cur, err := db.GetEntry(k)
		if err != nil {
			if !errors.Is(err, ErrNotExist) {
				return nil, err
			}
			cur = &Entry{Name: k.String()}
		}
		next, write := mod(cur.Clone())
		if !write {
			return cur, nil
		}
		next.Generation = cur.Generation
		err = db.SetEntry(k, next)
		if err != nil {
			if errors.Is(err, ErrModified) {
				continue
			}
			return nil, err
		}
		next.Generation = cur.Generation + 1
		return next, nil
	}
}

// CreateOrModify is like Modify but reports whether the entry was newly
// created (as opposed to an existing entry being updated), mirroring the
// teacher's database.CreateOrModify.
func CreateOrModify(db Database, k key.Key, mod func(*Entry) (*Entry, bool)) (*Entry, bool, error) {
	created := false
	e, err := Modify(db, k, func(cur *Entry) (*Entry, bool) {
		if cur.Generation == 0 && cur.BuiltRun == 0 && cur.ChangedRun == 0 && len(cur.Value) == 0 {
			created = true
		}
		return mod(cur)
	})
	return e, created, err
}
