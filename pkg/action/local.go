package action

import (
	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/key"
)

// Local is the per-rule, copy-on-branch state threaded through one rule
// body's execution. It is owned by exactly one goroutine at a time; when
// apply spawns a dependency's rule body on a fresh goroutine, that
// goroutine gets its own branched Local (see Context.Branch), so Local
// itself needs no internal locking.
type Local struct {
	// Stack is the call stack of keys currently being built above (and
	// including) the current rule, top (current) last.
	Stack []key.Key

	// Dependencies is the ordered list of dependency groups: one entry
	// per apply call, each holding the keys passed to that call in
	// caller order.
	Dependencies [][]key.Key

	// Traces accumulates the spans recorded by traced.
	Traces []entrydb.Trace

	// Verbosity is the current effective verbosity, overridable by
	// withVerbosity/quietly for the dynamic extent of a nested action.
	Verbosity Verbosity

	// Blocked forbids apply for the dynamic extent of the current
	// blockApply scope; BlockApplyReason is the reason quoted in the
	// resulting BlockedApply error.
	BlockApplyReason string
	Blocked          bool

	// LintAllow holds predicates installed by the rule to pre-justify
	// tracked reads/writes of keys it does not itself depend on or own.
	LintAllow []func(key.Key) bool
}

// NewLocal creates the root Local for a rule body about to run for k, atop
// the given caller stack (empty for a top-level want).
func NewLocal(callerStack []key.Key, k key.Key, verbosity Verbosity) *Local {
	return &Local{
		Stack:     append(append([]key.Key(nil), callerStack...), k),
		Verbosity: verbosity,
	}
}

// Clone returns a deep-enough copy for branching into a nested scope or a
// child rule execution.
func (l *Local) Clone() *Local {
	c := &Local{
		Stack:            append([]key.Key(nil), l.Stack...),
		Verbosity:        l.Verbosity,
		BlockApplyReason: l.BlockApplyReason,
		Blocked:          l.Blocked,
	}
	c.Dependencies = make([][]key.Key, len(l.Dependencies))
	for i, g := range l.Dependencies {
		c.Dependencies[i] = append([]key.Key(nil), g...)
	}
	c.Traces = append([]entrydb.Trace(nil), l.Traces...)
	c.LintAllow = append([]func(key.Key) bool(nil), l.LintAllow...)
	return c
}

// Top returns the key at the top of the stack (the rule currently
// executing), the zero Key if the stack is empty.
func (l *Local) Top() key.Key {
	if len(l.Stack) == 0 {
		return key.Key{}
	}
	return l.Stack[len(l.Stack)-1]
}

// Depends flattens Dependencies into a single ordered slice, the form
// persisted onto an Entry.
func (l *Local) Depends() []key.Key {
	var out []key.Key
	for _, g := range l.Dependencies {
		out = append(out, g...)
	}
	return out
}

// DependsOn reports whether k appears anywhere in the accumulated
// dependency groups.
func (l *Local) DependsOn(k key.Key) bool {
	for _, g := range l.Dependencies {
		for _, gk := range g {
			if key.Equal(gk, k) {
				return true
			}
		}
	}
	return false
}

// AllowsRead reports whether an installed lint-allow predicate matches k.
func (l *Local) AllowsRead(k key.Key) bool {
	for _, p := range l.LintAllow {
		if p(k) {
			return true
		}
	}
	return false
}
