// Package apply implements the Dependency Resolver: the function a rule
// body calls to demand the values of other keys, and the machinery that
// backs it. It is the heart of the engine, wiring together the Value
// Registry, the Entry Database's staleness check, the Scheduler/Pool, and
// the Lint Tracker.
//
// Grounded on the teacher's pkg/pool dispatch pattern and pkg/utils.Cycle,
// generalized into a single-builder-per-key-per-run guarantee: exactly one
// goroutine runs a key's rule body in a given run, every other caller
// demanding the same key waits on that one build's result.
package apply

import (
	"context"
	"errors"
	"sync"

	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/errs"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/pool"
	"github.com/brisklabs/buildengine/pkg/registry"
	"github.com/brisklabs/buildengine/pkg/utils"
)

// resolution is the per-key, per-run bookkeeping for exactly one build (or
// freshness confirmation) of a key. The first caller to demand a key
// creates and owns its resolution; every later caller this run finds it
// already present and waits on it instead. done is closed exactly once,
// by finish: any number of waiters, arriving before or after that close,
// observe it correctly, which a single-shot future.Trigger cannot
// guarantee once more than one caller arrives after the signal fires.
type resolution struct {
	// stack is the caller stack (not including the key itself) that first
	// demanded it this run; it becomes the key's own Stack if a rebuild is
	// needed.
	stack []key.Key

	done chan struct{}

	mu       sync.Mutex
	finished bool
	entry    *entrydb.Entry
	err      error
}

func newResolution(callerStack []key.Key) *resolution {
	return &resolution{
		stack: append([]key.Key(nil), callerStack...),
		done:  make(chan struct{}),
	}
}

// Resolver is the Dependency Resolver for one build run.
type Resolver struct {
	global  *action.Global
	db      entrydb.Database
	reg     *registry.Registry
	pool    pool.Pool
	run     int64
	staunch bool

	mu       sync.Mutex
	active   map[key.Key]*resolution
	aborted  bool
	firstErr error
}

// New creates a Resolver bound to g's database/registry/run. The returned
// Resolver's Dispatch method must be passed to pool.New, and the
// constructed Pool assigned back with SetPool before the build starts.
func New(g *action.Global, staunch bool) *Resolver {
	return &Resolver{
		global:  g,
		db:      g.DB,
		reg:     g.Registry,
		run:     g.Run,
		staunch: staunch,
		active:  map[key.Key]*resolution{},
	}
}

// SetPool wires the pool the resolver schedules rebuilds onto. Must be
// called once, before the pool is started.
func (r *Resolver) SetPool(p pool.Pool) {
	r.pool = p
}

// Apply is the dependency resolver a rule body calls to demand the values
// of keys. It resolves every key in keys (each at most once this run,
// concurrently with one another), records the group as the next
// dependency group on ctx, and returns their values in input order. On
// any failure it returns the first failing key's error in input order,
// without recording a dependency group.
func (r *Resolver) Apply(ctx *action.Context, keys []key.Key) ([][]byte, error) {
	if err := ctx.CheckBlocked(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		ctx.AppendDependencyGroup(nil)
		return nil, nil
	}

	entries, err := r.resolveMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	ctx.AppendDependencyGroup(keys)

	values := make([][]byte, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values, nil
}

// resolveMany resolves every key in keys concurrently against ctx's
// calling stack (for cycle detection), returning the first-in-input-order
// error if any key failed.
func (r *Resolver) resolveMany(ctx *action.Context, keys []key.Key) ([]*entrydb.Entry, error) {
	type outcome struct {
		entry *entrydb.Entry
		err   error
	}
	outcomes := make([]outcome, len(keys))

	var wg sync.WaitGroup
	wg.Add(len(keys))
	for i, k := range keys {
		go func(i int, k key.Key) {
			defer wg.Done()
			e, err := r.resolveOne(ctx, k)
			outcomes[i] = outcome{e, err}
		}(i, k)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
	}
	entries := make([]*entrydb.Entry, len(outcomes))
	for i, o := range outcomes {
		entries[i] = o.entry
	}
	return entries, nil
}

// resolveOne resolves a single key: claims ownership of its build if no
// one else has started it this run, otherwise waits for the owner.
func (r *Resolver) resolveOne(ctx *action.Context, k key.Key) (*entrydb.Entry, error) {
	if cyc := utils.Cycle(k, ctx.Local.Stack...); cyc != nil {
		return nil, errs.CycleError(cyc)
	}

	r.mu.Lock()
	if r.aborted && !r.staunch {
		err := r.firstErr
		r.mu.Unlock()
		if err == nil {
			err = errs.New(errs.Internal, ctx.Local.Stack, "build aborted")
		}
		return nil, err
	}
	res, exists := r.active[k]
	owner := false
	if !exists {
		res = newResolution(ctx.Local.Stack)
		r.active[k] = res
		owner = true
	}
	r.mu.Unlock()

	if owner {
		r.resolveOwned(ctx, k, res)
	}

	return r.await(ctx, res)
}

// resolveOwned runs the staleness check for a key this run has not yet
// touched: if the persisted entry is already fresh (every stored
// dependency's changedRun is no later than the entry's own builtRun), it
// bumps builtRun without re-running the rule body; otherwise it hands the
// key to the pool for a real rebuild. The staleness check itself blocks
// while the stored dependencies are resolved; a key handed to the pool is
// not waited for here — resolveOne's subsequent await does that.
func (r *Resolver) resolveOwned(ctx *action.Context, k key.Key, res *resolution) {
	rule := r.reg.Lookup(k)
	if rule == nil {
		r.finish(k, res, nil, errs.New(errs.MissingRule, ctx.Local.Stack, "no rule matches key %s", k), action.StatusFailed)
		return
	}

	entry, getErr := r.db.GetEntry(k)
	exists := getErr == nil
	if getErr != nil && !errors.Is(getErr, entrydb.ErrNotExist) {
		r.finish(k, res, nil, errs.Wrap(errs.DatabaseCorrupt, ctx.Local.Stack, getErr), action.StatusFailed)
		return
	}

	if exists && entry.BuiltRun == r.run {
		r.finish(k, res, entry, nil, action.StatusUnchanged)
		return
	}

	if exists {
		freshCtx := action.NewContext(r.global, res.stack, k)
		freshCtx.Slot = ctx.Slot

		depEntries, err := r.resolveMany(freshCtx, entry.Dependencies)
		if err != nil {
			r.finish(k, res, nil, err, action.StatusFailed)
			return
		}
		fresh := true
		for _, de := range depEntries {
			if de.ChangedRun > entry.BuiltRun {
				fresh = false
				break
			}
		}
		if fresh {
			saved, err := entrydb.Modify(r.db, k, func(cur *entrydb.Entry) (*entrydb.Entry, bool) {
				cur.BuiltRun = r.run
				return cur, true
			})
			if err != nil {
				r.finish(k, res, nil, errs.Wrap(errs.Internal, ctx.Local.Stack, err), action.StatusFailed)
				return
			}
			r.finish(k, res, saved, nil, action.StatusUnchanged)
			return
		}
	}

	// Not fresh (or never built): a real rebuild is needed. Hand off to
	// the pool; Dispatch will call finish once the rule body completes.
	r.pool.Enqueue(k)
}

// Dispatch is the pool.Dispatch implementation: it runs the rule body
// owning k, records the resulting Entry, and wakes every caller waiting
// on it. Returns a Status the pool uses to decide whether to retry.
func (r *Resolver) Dispatch(pctx context.Context, k key.Key, slot pool.Slot) pool.Status {
	r.mu.Lock()
	res := r.active[k]
	r.mu.Unlock()
	if res == nil {
		err := errs.New(errs.Internal, nil, "dispatch for key %s with no active resolution", k)
		return pool.StatusFailed(err)
	}

	rule := r.reg.Lookup(k)
	if rule == nil {
		err := errs.New(errs.MissingRule, res.stack, "no rule matches key %s", k)
		r.finish(k, res, nil, err, action.StatusFailed)
		return pool.StatusFailed(err)
	}

	ctx := action.NewContext(r.global, res.stack, k)
	ctx.Slot = slot

	prior, getErr := r.db.GetEntry(k)
	var oldValue []byte
	if getErr == nil {
		oldValue = prior.Value
	}

	start := r.global.Elapsed()
	newValue, buildErr := rule.Build(ctx, k)
	elapsed := r.global.Elapsed() - start

	if buildErr != nil {
		err := errs.Wrap(errs.UserError, ctx.Local.Stack, buildErr)
		r.finish(k, res, nil, err, action.StatusFailed)
		return pool.StatusFailed(err)
	}

	result := rule.Comparator(oldValue, newValue)

	saved, err := entrydb.Modify(r.db, k, func(cur *entrydb.Entry) (*entrydb.Entry, bool) {
		cur.Name = k.String()
		cur.Value = newValue
		cur.BuiltRun = r.run
		if result.AdvancesChangedRun() {
			cur.ChangedRun = r.run
		}
		cur.Dependencies = ctx.Local.Depends()
		cur.ExecutionTime = elapsed
		cur.Traces = ctx.Local.Traces
		return cur, true
	})
	if err != nil {
		wrapped := errs.Wrap(errs.Internal, ctx.Local.Stack, err)
		r.finish(k, res, nil, wrapped, action.StatusFailed)
		return pool.StatusFailed(wrapped)
	}

	r.global.Lint.FinishRule(k, ctx.Local.DependsOn, func(dep key.Key) bool {
		e, err := r.db.GetEntry(dep)
		return err == nil && len(e.Dependencies) > 0
	})

	r.finish(k, res, saved, nil, action.StatusBuilt)
	return pool.StatusCompleted()
}

// finish records res's outcome, wakes every waiter and broadcasts an
// Event to any inspection-API watcher subscribed to k's rule tag. If err
// is non-nil and the build is not staunch, it aborts scheduling of
// not-yet-started keys.
func (r *Resolver) finish(k key.Key, res *resolution, entry *entrydb.Entry, err error, status string) {
	res.mu.Lock()
	res.finished = true
	res.entry = entry
	res.err = err
	res.mu.Unlock()
	close(res.done)

	if err != nil {
		r.mu.Lock()
		if r.firstErr == nil {
			r.firstErr = err
		}
		if !r.staunch {
			r.aborted = true
		}
		r.mu.Unlock()
	}

	if r.global.Events != nil {
		evt := action.Event{Key: k, Run: r.run, Status: status}
		if err != nil {
			evt.Error = err.Error()
		}
		r.global.Events.TriggerEvent(evt)
	}
}

// await blocks the caller until res is finished, releasing ctx's pool
// slot (if any) for the duration so a suspended rule body does not tie up
// a concurrency slot while waiting on a dependency.
func (r *Resolver) await(ctx *action.Context, res *resolution) (*entrydb.Entry, error) {
	select {
	case <-res.done:
		res.mu.Lock()
		defer res.mu.Unlock()
		return res.entry, res.err
	default:
	}

	if ctx.Slot != nil {
		ctx.Slot.Release()
	}
	<-res.done
	if ctx.Slot != nil {
		if err := ctx.Slot.Reacquire(context.Background()); err != nil {
			return nil, errs.Wrap(errs.Internal, ctx.Local.Stack, err)
		}
	}

	res.mu.Lock()
	defer res.mu.Unlock()
	return res.entry, res.err
}

// Failed reports whether any key has failed this run and, if so, the
// first such error encountered.
func (r *Resolver) Failed() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr != nil, r.firstErr
}
