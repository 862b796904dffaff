package app

import (
	"strings"

	"github.com/brisklabs/buildengine/pkg/utils"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/spf13/cobra"
)

type Options struct {
	address string
	fs      vfs.FileSystem
}

func (o *Options) GetURL() string {
	a := o.address
	if !strings.HasPrefix(a, "http://") && !strings.HasPrefix(a, "https://") {
		a = "https://" + a
	}
	if !strings.HasSuffix(a, "/") {
		a += "/"
	}
	return a + "db/"
}

func New(fss ...vfs.FileSystem) *cobra.Command {
	cfg := GetConfig()
	opts := &Options{
		address: *cfg.Server,
		fs:      utils.OptionalDefaulted(vfs.FileSystem(osfs.OsFs), fss...),
	}

	maincmd := &cobra.Command{
		Use:   "ectl <options> <cmd> <args>",
		Short: "inspect a running build engine's dependency database",
		Long: `
This command inspects the dependency database of a running build engine
over its HTTP/websocket inspection API.
`,
		Run:              nil,
		TraverseChildren: true,
	}

	flags := maincmd.Flags()

	flags.StringVarP(&opts.address, "server", "s", opts.address, "engine server")

	maincmd.AddCommand(NewGet(opts))
	maincmd.AddCommand(NewWatch(opts))
	return maincmd
}
