// Package engine wires the Value Registry, Execution Context, Dependency
// Resolver, Scheduler/Pool and Profile/Report Sink into the single
// top-level entry point a host program calls to run one build.
//
// Grounded on the shape of the teacher's cmds/engine/main.go: parse
// options, build the model/processor/controller stack, register it with a
// service.Services registry, Start, Wait. Here the "model" is the
// registry's rule set and the "processor" is the pool-backed resolver.
package engine

import (
	"context"
	"time"

	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/apply"
	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/errs"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/lint"
	"github.com/brisklabs/buildengine/pkg/pool"
	"github.com/brisklabs/buildengine/pkg/registry"
	"github.com/brisklabs/buildengine/pkg/report"
	"github.com/mandelsoft/logging"
	"github.com/mandelsoft/vfs/pkg/vfs"
)

var REALM = logging.DefineRealm("engine", "top-level build orchestration")

var log = logging.DynamicLogger(logging.DefaultContext(), REALM)

// RegisterFunc populates the Value Registry for one build. resolver is
// already constructed (though not yet pool-backed) when RegisterFunc
// runs, so rule bodies registered here may close over it to call
// resolver.Apply when they themselves run later, the same way a rule
// closes over its own resolver reference in production rule layers.
type RegisterFunc func(reg *registry.Registry, resolver *apply.Resolver)

// rootKey is the synthetic identity of the top-level want-driver's own
// call stack. It must not collide with any key a rule ever registers,
// since apply's cycle check would otherwise trip on the very want it is
// resolving: the driver's stack already contains rootKey when it demands
// the wants, but no real dependency stack ever will.
var rootKey = key.Erase[string]("$root", "want")

// Result is the outcome of one build run.
type Result struct {
	ExitCode   int
	Run        int64
	Values     [][]byte
	Violations []lint.Violation
}

// Run loads the database at opts.DBFile, starts a pool of opts.Parallelism
// workers, registers rules, resolves wants against the Dependency
// Resolver, runs after-hooks on success, writes the profile report to
// opts.ReportFile, persists the database, and runs the cleanup registry.
// It returns the process exit code the spec defines (0 success, 1 rule
// failure, 2 user error) alongside the first error encountered, if any.
//
// onReady, if non-nil, is called once Global is fully constructed (DB
// open, rules registered, Events ready to receive subscriptions) but
// before the pool starts executing wants. A host that wants to serve the
// inspection HTTP/websocket API alongside the build passes a hook here
// that starts it against g and arranges its own shutdown; Run does not
// wait for or manage anything onReady starts.
func Run(ctx context.Context, opts action.Options, rules RegisterFunc, wants []key.Key, sink action.Sink, fs vfs.FileSystem, onReady func(*action.Global)) (*Result, error) {
	db, err := entrydb.NewFilesystemDatabase(opts.DBFile, fs)
	if err != nil {
		return &Result{ExitCode: errs.Internal.ExitCode()}, errs.Wrap(errs.Internal, nil, err)
	}
	defer db.Close()

	run, err := nextRun(db)
	if err != nil {
		return &Result{ExitCode: errs.DatabaseCorrupt.ExitCode()}, err
	}

	reg := registry.New()
	g := action.NewGlobal(opts, db, reg, sink, run)
	resolver := apply.New(g, opts.Staunch)
	rules(reg, resolver)

	if onReady != nil {
		onReady(g)
	}

	p := pool.New(logging.DefaultContext(), "engine", opts.Parallelism, resolver.Dispatch)
	resolver.SetPool(p)

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready, done, err := p.Start(pctx)
	if err != nil {
		return &Result{ExitCode: errs.Internal.ExitCode(), Run: run}, errs.Wrap(errs.Internal, nil, err)
	}
	if err := ready.Wait(); err != nil {
		return &Result{ExitCode: errs.Internal.ExitCode(), Run: run}, errs.Wrap(errs.Internal, nil, err)
	}

	log.Info("starting build", "run", run, "wants", len(wants), "parallelism", opts.Parallelism)

	rootCtx := action.NewRootContext(g, rootKey)

	type outcome struct {
		values [][]byte
		err    error
	}
	applied := make(chan outcome, 1)
	go func() {
		values, err := resolver.Apply(rootCtx, wants)
		applied <- outcome{values, err}
	}()

	var o outcome
	if opts.Timeout > 0 {
		select {
		case o = <-applied:
		case <-time.After(opts.Timeout):
			o = outcome{err: errs.New(errs.Internal, nil, "build timed out after %s", opts.Timeout)}
		}
	} else {
		o = <-applied
	}

	cancel()
	_ = done.Wait()

	result := &Result{Run: run, Values: o.values}

	if o.err == nil {
		if err := g.RunAfterHooks(); err != nil {
			o.err = err
		}
	}

	if o.err == nil && g.Lint.Enabled() {
		result.Violations = g.Lint.Violations()
		if len(result.Violations) > 0 {
			o.err = errs.New(errs.LintViolation, nil, "%d lint violation(s), first: %s", len(result.Violations), result.Violations[0])
		}
	}

	if reportErr := report.WriteFile(db, run, opts.ReportFile, fs); reportErr != nil && o.err == nil {
		o.err = reportErr
	}

	g.RunCleanups()

	if o.err != nil {
		result.ExitCode = exitCodeFor(o.err)
		log.Error("build failed", "error", o.err, "run", run)
		return result, o.err
	}
	log.Info("build completed", "run", run)
	return result, nil
}

// nextRun computes the monotonic run counter for a new build: one past
// the highest builtRun stored in db, or 1 for an empty database. Scanning
// the whole database at startup mirrors the teacher's model.NewModel
// warm-load pass over its object store.
func nextRun(db entrydb.Database) (int64, error) {
	keys, err := db.ListKeys()
	if err != nil {
		return 0, errs.Wrap(errs.DatabaseCorrupt, nil, err)
	}
	var max int64
	for _, k := range keys {
		e, err := db.GetEntry(k)
		if err != nil {
			return 0, errs.Wrap(errs.DatabaseCorrupt, nil, err)
		}
		if e.BuiltRun > max {
			max = e.BuiltRun
		}
	}
	return max + 1, nil
}

// exitCodeFor maps err to the spec's process exit code, unwrapping to the
// first *errs.Error found (errs.Wrap/errs.New results, possibly wrapped
// further up the call chain). A non-engine error (should not normally
// occur) is treated as an Internal failure.
func exitCodeFor(err error) int {
	for err != nil {
		if e, ok := err.(*errs.Error); ok {
			return e.Kind.ExitCode()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return errs.Internal.ExitCode()
}
