package report_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/report"
)

func textKey(name string) key.Key {
	return key.Erase[string]("text", name)
}

func indexOf(records []report.Record, name string) int {
	for i, r := range records {
		if r.Name == name {
			return i
		}
	}
	return -1
}

var _ = Describe("profile report generation", func() {
	var db *entrydb.FilesystemDatabase
	var fs vfs.FileSystem
	var a, b, c key.Key

	BeforeEach(func() {
		fs = memoryfs.New()
		var err error
		db, err = entrydb.NewFilesystemDatabase("/db", fs)
		Expect(err).To(Succeed())

		a = textKey("a")
		b = textKey("b")
		c = textKey("c")

		Expect(db.SetEntry(a, &entrydb.Entry{
			Name: a.String(), Value: []byte(`"A"`), BuiltRun: 2, ChangedRun: 2,
		})).To(Succeed())
		Expect(db.SetEntry(b, &entrydb.Entry{
			Name: b.String(), Value: []byte(`"B"`), BuiltRun: 2, ChangedRun: 1,
			Dependencies: []key.Key{a},
		})).To(Succeed())
		Expect(db.SetEntry(c, &entrydb.Entry{
			Name: c.String(), Value: []byte(`"C"`), BuiltRun: 1, ChangedRun: 1,
			Dependencies: []key.Key{a, b},
		})).To(Succeed())
	})

	It("orders every dependency before its dependent", func() {
		records, err := report.Generate(db, 2)
		Expect(err).To(Succeed())
		Expect(records).To(HaveLen(3))

		ia, ib, ic := indexOf(records, a.String()), indexOf(records, b.String()), indexOf(records, c.String())
		Expect(ia).To(BeNumerically("<", ib))
		Expect(ib).To(BeNumerically("<", ic))

		for i, r := range records {
			for _, d := range r.Depends {
				Expect(d).To(BeNumerically("<", i))
			}
		}
	})

	It("rebases built/changed so the current run reads as 0", func() {
		records, err := report.Generate(db, 2)
		Expect(err).To(Succeed())

		ia := indexOf(records, a.String())
		ic := indexOf(records, c.String())
		Expect(records[ia].Built).To(Equal(int64(0)))
		Expect(records[ia].Changed).To(Equal(int64(0)))
		Expect(records[ic].Built).To(Equal(int64(1)), "c was last built the run before the current one")
	})

	It("round-trips a written report through the external schema", func() {
		Expect(report.WriteFile(db, 2, "/out/report.json", fs)).To(Succeed())

		data, err := vfs.ReadFile(fs, "/out/report.json")
		Expect(err).To(Succeed())

		var decoded []report.Record
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(HaveLen(3))
	})

	It("does nothing when no report path is configured", func() {
		Expect(report.WriteFile(db, 2, "", fs)).To(Succeed())
		_, err := vfs.ReadFile(fs, "/out/report.json")
		Expect(err).To(HaveOccurred())
	})
})
