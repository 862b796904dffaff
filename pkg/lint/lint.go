// Package lint implements the optional Lint Tracker: an audit, enabled by
// Options.Lint, that every value a rule reads is either its own output, a
// declared dependency, or explicitly allow-listed, and that every value a
// rule writes belongs to it. Grounded on the teacher's pkg/events
// registry-of-interested-parties pattern, repurposed here as a
// registry-of-violations keyed by owner.
package lint

import (
	"fmt"
	"sync"

	"github.com/brisklabs/buildengine/pkg/key"
)

// Mode selects how strict the tracker is.
type Mode int

const (
	// Off disables lint tracking entirely.
	Off Mode = iota
	// Basic reports used-not-depended, depended-after-use and
	// wrote-outside-owned-key violations.
	Basic
	// Change reports the same violations as Basic; the tracker does not
	// distinguish the two modes.
	Change
)

func ParseMode(s string) Mode {
	switch s {
	case "BasicLint":
		return Basic
	case "ChangeLint":
		return Change
	default:
		return Off
	}
}

// ViolationKind classifies a reported Violation.
type ViolationKind int

const (
	UsedNotDepended ViolationKind = iota
	DependedAfterUse
	WroteOutsideOwnedKey
)

func (k ViolationKind) String() string {
	switch k {
	case UsedNotDepended:
		return "value was used but not depended upon"
	case DependedAfterUse:
		return "depended upon after being used"
	case WroteOutsideOwnedKey:
		return "wrote outside owned key"
	default:
		return "unknown lint violation"
	}
}

// Violation is one recorded lint finding.
type Violation struct {
	Kind  ViolationKind
	Owner key.Key // the rule (top-of-stack) that committed the violation
	Key   key.Key // the key that was read or written
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: owner=%s key=%s", v.Kind, v.Owner, v.Key)
}

// pendingRead is a tentatively-justified read awaiting the deferred check
// (condition 4: k will be applied later in the same rule and has no
// dependencies of its own).
type pendingRead struct {
	owner key.Key
	used  key.Key
}

// Tracker accumulates violations across a build. One Tracker is shared,
// process-global, across every rule execution; all methods are safe for
// concurrent use.
type Tracker struct {
	mode Mode

	mu         sync.Mutex
	violations []Violation
	pending    []pendingRead
}

// New creates a Tracker in the given Mode. If mode is Off, all tracking
// methods are no-ops.
func New(mode Mode) *Tracker {
	return &Tracker{mode: mode}
}

func (t *Tracker) Enabled() bool {
	return t != nil && t.mode != Off
}

// TrackRead records a read of used by owner. justified reports whether one
// of conditions 1-3 (self-read, already-depended, allow-listed) already
// holds; if not, the read is deferred until FinishRule.
func (t *Tracker) TrackRead(owner, used key.Key, justified bool) {
	if !t.Enabled() {
		return
	}
	if justified {
		return
	}
	t.mu.Lock()
	t.pending = append(t.pending, pendingRead{owner: owner, used: used})
	t.mu.Unlock()
}

// TrackWrite records a write of k by owner. owned reports whether k is the
// owner's own top-of-stack key or matched by an allow predicate.
func (t *Tracker) TrackWrite(owner, k key.Key, owned bool) {
	if !t.Enabled() || owned {
		return
	}
	t.mu.Lock()
	t.violations = append(t.violations, Violation{Kind: WroteOutsideOwnedKey, Owner: owner, Key: k})
	t.mu.Unlock()
}

// FinishRule resolves the deferred reads recorded for owner (condition 4)
// once the rule's final dependency set and every stored dependency's own
// dependency count are known. dependedOn reports whether k ended up in
// owner's dependency list; hasOwnDeps reports whether k itself has
// non-empty stored dependencies (disqualifying it as a bare source key).
func (t *Tracker) FinishRule(owner key.Key, dependedOn func(key.Key) bool, hasOwnDeps func(key.Key) bool) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := t.pending[:0]
	for _, p := range t.pending {
		if p.owner != owner {
			remaining = append(remaining, p)
			continue
		}
		switch {
		case dependedOn(p.used) && hasOwnDeps(p.used):
			t.violations = append(t.violations, Violation{Kind: DependedAfterUse, Owner: owner, Key: p.used})
		case dependedOn(p.used):
			// justified by condition 4: applied later, plain source key.
		default:
			t.violations = append(t.violations, Violation{Kind: UsedNotDepended, Owner: owner, Key: p.used})
		}
	}
	t.pending = remaining
}

// Violations returns a snapshot of every violation recorded so far.
func (t *Tracker) Violations() []Violation {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Violation, len(t.violations))
	copy(out, t.violations)
	return out
}
