package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/apply"
	"github.com/brisklabs/buildengine/pkg/change"
	"github.com/brisklabs/buildengine/pkg/engine"
	"github.com/brisklabs/buildengine/pkg/inspect"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/registry"
	"github.com/brisklabs/buildengine/pkg/server"
	"github.com/brisklabs/buildengine/watch"
	"github.com/mandelsoft/logging"
	"github.com/spf13/pflag"
)

// parsePort extracts the numeric port server.NewServer wants from a
// "host:port" or ":port" --serve address.
func parsePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

// watchHandler adapts g.Events to the /watch websocket endpoint.
func watchHandler(g *action.Global) http.Handler {
	return watch.WatchHttpHandler[inspect.Request, inspect.Event](inspect.NewRegistry(g.Events))
}

func Error(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+msg, args...)
	os.Exit(1)
}

// registerDemo wires a trivial rule set so the CLI is runnable end-to-end
// without a real rule domain wired in: every "text" key builds to its own
// name. A host embedding pkg/engine in its own main package registers its
// own rules here instead; see pkg/engine.RegisterFunc.
func registerDemo(reg *registry.Registry, resolver *apply.Resolver) {
	reg.Register(engine.Typed("text", func(string) bool { return true },
		func(ctx *action.Context, name string) (string, error) {
			ctx.PutWhen(action.Normal, fmt.Sprintf("building %q", name))
			return name, nil
		}, change.Digest()))
}

func main() {
	opts := action.DefaultOptions()
	opts.DBFile = ".buildengine"

	var optionsFile string
	var verbosity = "normal"
	var lintMode string
	var changeMode = "DigestOnly"
	var wants []string
	var level = "info"
	var serveAddr string

	flags := pflag.NewFlagSet("buildengine", pflag.ExitOnError)
	flags.IntVarP(&opts.Parallelism, "parallelism", "j", opts.Parallelism, "max concurrently-running rule bodies")
	flags.BoolVarP(&opts.Staunch, "staunch", "k", opts.Staunch, "keep going after a rule failure; only the first error is reported")
	flags.StringVar(&lintMode, "lint", lintMode, "lint mode: None, BasicLint, ChangeLint")
	flags.StringVarP(&verbosity, "verbosity", "v", verbosity, "output verbosity: silent, quiet, normal, loud, diagnostic")
	flags.StringVarP(&opts.ReportFile, "report", "r", opts.ReportFile, "path to write the profile report JSON to")
	flags.StringVarP(&opts.DBFile, "database", "d", opts.DBFile, "path to the dependency database directory")
	flags.DurationVarP(&opts.Timeout, "timeout", "t", opts.Timeout, "build-wide timeout (0 = none)")
	flags.StringVarP(&changeMode, "change-mode", "c", changeMode, "change detection mode: ModtimeOnly, ModtimeAndDigest, DigestOnly")
	flags.StringVarP(&optionsFile, "options-file", "f", optionsFile, "load options from a key=value file before applying flags")
	flags.StringVarP(&level, "log-level", "L", level, "log level")
	flags.StringSliceVarP(&wants, "want", "w", nil, "key to build (repeatable)")
	flags.StringVar(&serveAddr, "serve", "", "address to serve the inspection API on for the duration of the build (disabled if empty)")

	if err := flags.Parse(os.Args[1:]); err != nil {
		Error("invalid arguments: %s", err)
	}

	if optionsFile != "" {
		loaded, err := engine.LoadOptionsFile(optionsFile, opts, nil)
		if err != nil {
			Error("%s", err)
		}
		opts = loaded
		// Parse the command line again so flags given explicitly override
		// the file; wants is reset first because a repeated -w appends.
		wants = nil
		if err := flags.Parse(os.Args[1:]); err != nil {
			Error("invalid arguments: %s", err)
		}
	}
	if lintMode != "" {
		opts.Lint = lintMode
	}
	if optionsFile == "" || flags.Changed("verbosity") {
		opts.Verbosity = action.ParseVerbosity(verbosity)
	}
	if optionsFile == "" || flags.Changed("change-mode") {
		opts.ChangeMode = action.ParseChangeMode(changeMode)
	}

	l, err := logging.ParseLevel(level)
	if err != nil {
		Error("invalid log level %q", level)
	}
	lctx := logging.DefaultContext()
	lctx.AddRule(logging.NewConditionRule(l, logging.NewRealmPrefix("engine")))
	lctx.AddRule(logging.NewConditionRule(l, logging.NewRealmPrefix("entrydb")))
	log := lctx.Logger(logging.NewRealm("engine/cli"))

	if len(wants) == 0 {
		wants = []string{"demo"}
	}
	wantKeys := make([]key.Key, len(wants))
	for i, w := range wants {
		wantKeys[i] = engine.Key("text", w)
	}

	var srv *server.Server
	onReady := func(g *action.Global) {
		if serveAddr == "" {
			return
		}
		port, portErr := parsePort(serveAddr)
		if portErr != nil {
			log.Error("invalid --serve address, inspection API disabled", "error", portErr)
			return
		}
		srv = server.NewServer(port, false)
		srv.Handle("/db/", inspect.NewServer(g.DB))
		srv.Handle("/watch", watchHandler(g))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("inspection API server stopped", "error", err)
			}
		}()
		log.Info("serving inspection API", "addr", serveAddr)
	}

	result, err := engine.Run(context.Background(), opts, registerDemo, wantKeys, action.NewWriterSink(os.Stdout), nil, onReady)
	if srv != nil {
		_ = srv.Shutdown(context.Background())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}
	os.Exit(result.ExitCode)
}
