package action

import (
	"context"
	"fmt"
	"time"

	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/errs"
	"github.com/brisklabs/buildengine/pkg/key"
)

// Context is the Execution Context threaded through one rule body: a
// shared read-only Global plus an owned, mutable Local. Every rule body
// receives exactly one Context and must not share it across goroutines;
// apply branches a fresh Context (with its own Local) for each dependency
// it spawns.
type Context struct {
	Global *Global
	Local  *Local

	// Slot is the pool concurrency ticket backing the goroutine currently
	// running this Context, if any. It is nil for the top-level driver
	// that enqueues wants (which holds no pool slot to give back) and
	// non-nil for a Context created for a pool-dispatched rule body. The
	// resolver releases/reacquires it around a blocking wait on a
	// dependency, satisfying the requirement that suspension frees the
	// worker slot.
	Slot interface {
		Release()
		Reacquire(ctx context.Context) error
	}
}

// NewContext creates the Context for a rule body about to run for k, atop
// callerStack (nil for a top-level want).
func NewContext(g *Global, callerStack []key.Key, k key.Key) *Context {
	return &Context{Global: g, Local: NewLocal(callerStack, k, g.Options.Verbosity)}
}

// NewRootContext creates the Context for a top-level want, with an empty
// caller stack.
func NewRootContext(g *Global, want key.Key) *Context {
	return NewContext(g, nil, want)
}

// Branch creates the Context for a dependency k spawned from the current
// rule body: a fresh Local rooted at the current Stack plus k, with no
// inherited dependencies/traces/verbosity-override of its own.
func (c *Context) Branch(k key.Key) *Context {
	return NewContext(c.Global, c.Local.Stack, k)
}

// GetOptions returns the build's invariant options.
func (c *Context) GetOptions() Options {
	return c.Global.Options
}

// GetProgress samples the Global progress source.
func (c *Context) GetProgress() Progress {
	return c.Global.Progress.Sample()
}

// RunAfter prepends io to the Global after-hooks list.
func (c *Context) RunAfter(io func() error) {
	c.Global.RegisterAfter(io)
}

// ActionOnException runs act; if it fails, cleanup runs exactly once
// before the error is returned. If act succeeds, cleanup never runs.
func ActionOnException[T any](c *Context, act func() (T, error), cleanup func()) (T, error) {
	v, err := act()
	if err != nil {
		cleanup()
	}
	return v, err
}

// ActionFinally runs act, then runs cleanup exactly once regardless of
// outcome. The register+run pair for cleanup is itself atomic: cleanup
// cannot be partially skipped by a concurrent cancellation, since it is
// invoked directly in the same goroutine via defer-equivalent sequencing
// rather than through a separate cancellable registration.
func ActionFinally[T any](c *Context, act func() (T, error), cleanup func()) (T, error) {
	defer cleanup()
	return act()
}

// WithVerbosity runs act with Local.Verbosity temporarily set to v,
// restoring the previous value on every exit path (including panics,
// which are not recovered here but whose unwind still runs the deferred
// restore).
func WithVerbosity[T any](c *Context, v Verbosity, act func() (T, error)) (T, error) {
	prev := c.Local.Verbosity
	c.Local.Verbosity = v
	defer func() { c.Local.Verbosity = prev }()
	return act()
}

// Quietly runs act at Quiet verbosity.
func Quietly[T any](c *Context, act func() (T, error)) (T, error) {
	return WithVerbosity(c, Quiet, act)
}

// PutWhen emits msg through the Global sink iff the current Local
// verbosity is at least v. Sink.Emit is itself serialised, giving the
// spec's global-FIFO emission guarantee.
func (c *Context) PutWhen(v Verbosity, msg string) {
	if c.Local.Verbosity >= v {
		c.Global.Sink.Emit(v, msg)
	}
}

// Traced runs io, recording a {command, start, stop} span (seconds since
// build start) into Local.Traces and, unless suppressed by an enclosing
// Quietly, emitting "# <msg> (for <top-of-stack>)" at Normal verbosity.
// The trace is appended unconditionally: traced data feeds the profile
// report, which is independent of console verbosity.
func Traced[T any](c *Context, msg string, io func() (T, error)) (T, error) {
	start := c.Global.Elapsed()
	v, err := io()
	stop := c.Global.Elapsed()

	c.Local.Traces = append(c.Local.Traces, entrydb.Trace{Command: msg, Start: start, Stop: stop})
	c.PutWhen(Normal, fmt.Sprintf("# %s (for %s)", msg, c.Local.Top()))
	return v, err
}

// BlockApply runs act with apply forbidden for its dynamic extent; any
// apply call inside act fails with a BlockedApply error quoting reason.
func BlockApply[T any](c *Context, reason string, act func() (T, error)) (T, error) {
	prevBlocked, prevReason := c.Local.Blocked, c.Local.BlockApplyReason
	c.Local.Blocked, c.Local.BlockApplyReason = true, reason
	defer func() { c.Local.Blocked, c.Local.BlockApplyReason = prevBlocked, prevReason }()
	return act()
}

// UnsafeAllowApply clears any enclosing BlockApply for the dynamic extent
// of act.
func UnsafeAllowApply[T any](c *Context, act func() (T, error)) (T, error) {
	prevBlocked, prevReason := c.Local.Blocked, c.Local.BlockApplyReason
	c.Local.Blocked, c.Local.BlockApplyReason = false, ""
	defer func() { c.Local.Blocked, c.Local.BlockApplyReason = prevBlocked, prevReason }()
	return act()
}

// CheckBlocked returns a BlockedApply error if apply is currently
// forbidden in this Context.
func (c *Context) CheckBlocked() error {
	if c.Local.Blocked {
		return errs.New(errs.BlockedApply, c.Local.Stack, "apply blocked: %s", c.Local.BlockApplyReason)
	}
	return nil
}

// AppendDependencyGroup records one apply call's key group, in caller
// order, as the next entry in Local.Dependencies.
func (c *Context) AppendDependencyGroup(keys []key.Key) {
	c.Local.Dependencies = append(c.Local.Dependencies, append([]key.Key(nil), keys...))
}

// LintTrackRead declares a read of k by the current rule, for Lint Tracker
// condition checking. See pkg/lint for the justification rules.
func (c *Context) LintTrackRead(k key.Key) {
	owner := c.Local.Top()
	justified := key.Equal(k, owner) || c.Local.DependsOn(k) || c.Local.AllowsRead(k)
	c.Global.Lint.TrackRead(owner, k, justified)
}

// LintTrackWrite declares a write of k by the current rule.
func (c *Context) LintTrackWrite(k key.Key) {
	owner := c.Local.Top()
	owned := key.Equal(k, owner) || c.Local.AllowsRead(k)
	c.Global.Lint.TrackWrite(owner, k, owned)
}

// LintTrackAllow installs a predicate pre-justifying reads/writes of
// matching keys for the remainder of the current rule body.
func (c *Context) LintTrackAllow(pred func(key.Key) bool) {
	c.Local.LintAllow = append(c.Local.LintAllow, pred)
}

// Elapsed exposes the Global timestamp source directly, for callers that
// need a raw timestamp outside of Traced.
func (c *Context) Elapsed() time.Duration {
	return time.Duration(c.Global.Elapsed() * float64(time.Second))
}
