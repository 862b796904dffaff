package action

import (
	"sync"
	"time"

	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/events"
	"github.com/brisklabs/buildengine/pkg/lint"
	"github.com/brisklabs/buildengine/pkg/registry"
	"github.com/google/uuid"
)

// cleanupEntry is one registered cleanup action, run in reverse-
// registration order via a linearised, atomic list prepend (mirrors
// pkg/ctxutil's cancel-func-in-context-value plumbing style, generalised
// to an ordered list rather than a single func).
type cleanupEntry struct {
	fn func()
}

// Global is the read-only state shared across every rule execution in a
// single build: options, DB handle, output sink, progress sampler,
// timestamp source, cleanup registry, after-hooks list, and the lint-
// absent registry (the process-global lint.Tracker).
type Global struct {
	Options  Options
	DB       entrydb.Database
	Registry *registry.Registry
	Sink     Sink
	Progress ProgressSampler
	Lint     *lint.Tracker
	Events   events.HandlerRegistry[Event]

	RunID    string
	Run      int64 // the monotonic run counter for this build
	started  time.Time

	mu       sync.Mutex
	cleanups []cleanupEntry
	after    []func() error
}

// NewGlobal constructs the shared state for one build.
func NewGlobal(opts Options, db entrydb.Database, reg *registry.Registry, sink Sink, run int64) *Global {
	if sink == nil {
		sink = NewWriterSink(discard{})
	}
	return &Global{
		Options:  opts,
		DB:       db,
		Registry: reg,
		Sink:     sink,
		Progress: NewCounterProgress(),
		Lint:     lint.New(lint.ParseMode(opts.Lint)),
		Events:   NewEventRegistry(db),
		RunID:    uuid.NewString(),
		Run:      run,
		started:  time.Now(),
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Elapsed returns monotonic seconds since the build started, the Global
// timestamp source used to stamp Trace spans.
func (g *Global) Elapsed() float64 {
	return time.Since(g.started).Seconds()
}

// RegisterCleanup prepends fn to the cleanup registry; cleanups run, most-
// recently-registered first, once at build end regardless of outcome.
func (g *Global) RegisterCleanup(fn func()) {
	g.mu.Lock()
	g.cleanups = append([]cleanupEntry{{fn: fn}}, g.cleanups...)
	g.mu.Unlock()
}

// RunCleanups runs every registered cleanup exactly once, most-recently-
// registered first.
func (g *Global) RunCleanups() {
	g.mu.Lock()
	cleanups := g.cleanups
	g.cleanups = nil
	g.mu.Unlock()
	for _, c := range cleanups {
		c.fn()
	}
}

// RegisterAfter prepends io to the after-hooks list.
func (g *Global) RegisterAfter(io func() error) {
	g.mu.Lock()
	g.after = append([]func() error{io}, g.after...)
	g.mu.Unlock()
}

// RunAfterHooks runs every after-hook in reverse-registration order,
// stopping at (and returning) the first error, as documented for runAfter:
// hooks run only if the build completed successfully.
func (g *Global) RunAfterHooks() error {
	g.mu.Lock()
	hooks := g.after
	g.after = nil
	g.mu.Unlock()
	for _, h := range hooks {
		if err := h(); err != nil {
			return err
		}
	}
	return nil
}
