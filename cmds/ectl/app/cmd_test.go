package app_test

import (
	"bytes"
	"context"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/brisklabs/buildengine/cmds/ectl/app"
	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/inspect"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/server"
)

const PORT = 18081

var _ = Describe("ectl get", func() {
	var srv *server.Server
	var db entrydb.Database

	var cmd *cobra.Command
	var buf *bytes.Buffer

	BeforeEach(func() {
		var err error
		db, err = entrydb.NewFilesystemDatabase("/db", memoryfs.New())
		Expect(err).To(Succeed())

		Expect(db.SetEntry(key.Erase[string]("text", "o1"), &entrydb.Entry{Name: "text:\"o1\"", BuiltRun: 1, ChangedRun: 1})).To(Succeed())
		Expect(db.SetEntry(key.Erase[string]("text", "o2"), &entrydb.Entry{Name: "text:\"o2\"", BuiltRun: 2, ChangedRun: 1})).To(Succeed())

		srv = server.NewServer(PORT, false)
		srv.Handle("/db/", inspect.NewServer(db))
		go func() { _ = srv.ListenAndServe() }()
		time.Sleep(100 * time.Millisecond)

		buf = bytes.NewBuffer(nil)
		cmd = app.New()
	})

	AfterEach(func() {
		Expect(srv.Shutdown(context.Background())).To(Succeed())
		Expect(db.Close()).To(Succeed())
	})

	It("lists every entry for a tag as a table", func() {
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"-s", "http://localhost:18081", "get", "text"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("text:\"o1\""))
		Expect(buf.String()).To(ContainSubstring("text:\"o2\""))
	})

	It("prints json output", func() {
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"-s", "http://localhost:18081", "get", "text", "-o", "json"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(buf.String()).To(ContainSubstring(`"builtRun":1`))
	})
})
