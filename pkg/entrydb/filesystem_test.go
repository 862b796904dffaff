package entrydb_test

import (
	"github.com/go-test/deep"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
)

var _ = Describe("filesystem entry database", func() {
	var db *entrydb.FilesystemDatabase
	var fs vfs.FileSystem
	var k key.Key

	BeforeEach(func() {
		fs = memoryfs.New()
		var err error
		db, err = entrydb.NewFilesystemDatabase("/db", fs)
		Expect(err).To(Succeed())
		k = key.Erase[string]("file", "a.txt")
	})

	It("reports ErrNotExist for a missing key", func() {
		_, err := db.GetEntry(k)
		Expect(err).To(MatchError(entrydb.ErrNotExist))
	})

	It("round-trips a stored entry", func() {
		e := &entrydb.Entry{Name: k.String(), Value: []byte(`"A"`), BuiltRun: 1, ChangedRun: 1}
		Expect(db.SetEntry(k, e)).To(Succeed())

		got, err := db.GetEntry(k)
		Expect(err).To(Succeed())
		Expect(got.Value).To(Equal([]byte(`"A"`)))
		Expect(got.BuiltRun).To(Equal(int64(1)))

		want := &entrydb.Entry{Name: k.String(), Value: []byte(`"A"`), BuiltRun: 1, ChangedRun: 1, Generation: 1}
		Expect(deep.Equal(got, want)).To(BeNil())
	})

	It("rejects a stale write with ErrModified", func() {
		e := &entrydb.Entry{Name: k.String(), Value: []byte(`"A"`)}
		Expect(db.SetEntry(k, e)).To(Succeed())

		stale := &entrydb.Entry{Name: k.String(), Value: []byte(`"B"`), Generation: 0}
		err := db.SetEntry(k, stale)
		Expect(err).To(MatchError(entrydb.ErrModified))
	})

	It("lists stored keys", func() {
		Expect(db.SetEntry(k, &entrydb.Entry{Name: k.String()})).To(Succeed())
		other := key.Erase[string]("file", "b.txt")
		Expect(db.SetEntry(other, &entrydb.Entry{Name: other.String()})).To(Succeed())

		keys, err := db.ListKeys()
		Expect(err).To(Succeed())
		Expect(keys).To(HaveLen(2))
	})
})

var _ = Describe("Modify", func() {
	It("retries on ErrModified until it succeeds", func() {
		fs := memoryfs.New()
		db, err := entrydb.NewFilesystemDatabase("/db", fs)
		Expect(err).To(Succeed())
		k := key.Erase[string]("file", "a.txt")

		calls := 0
		_, err = entrydb.Modify(db, k, func(e *entrydb.Entry) (*entrydb.Entry, bool) {
			calls++
			if calls == 1 {
				// A concurrent writer stores k between Modify's read and its
				// write, so the first compare-and-swap fails with ErrModified.
				Expect(db.SetEntry(k, &entrydb.Entry{Name: k.String(), Value: []byte(`"B"`)})).To(Succeed())
			}
			e.Value = []byte(`"A"`)
			e.BuiltRun = 1
			return e, true
		})
		Expect(err).To(Succeed())
		Expect(calls).To(Equal(2))

		got, err := db.GetEntry(k)
		Expect(err).To(Succeed())
		Expect(got.Value).To(Equal([]byte(`"A"`)))
		Expect(got.Generation).To(Equal(int64(2)))
	})
})
