// Package registry implements the Value Registry: a process-scoped,
// type-indexed mapping from a rule's TypeTag to its Rule definition. It
// mirrors the teacher's pkg/runtime type-indexed scheme pattern (a
// mutex-guarded map keyed by a string tag, with Register/MustRegister
// helpers) but matches keys against build functions rather than decoding
// serialized objects.
package registry

import (
	"fmt"
	"sync"

	"github.com/brisklabs/buildengine/pkg/change"
	"github.com/brisklabs/buildengine/pkg/key"
)

// BuildFunc produces the serialized value for k. ctx is opaque to the
// registry; it is cast back to the engine's action.Context by callers.
type BuildFunc func(ctx any, k key.Key) ([]byte, error)

// MatchFunc reports whether a rule claims k, typically by decoding k and
// checking a pattern (a glob, a prefix, a query shape).
type MatchFunc func(k key.Key) bool

// Rule is one registered (key-pattern, builder, comparator) triple.
type Rule struct {
	Tag        key.TypeTag
	Match      MatchFunc
	Build      BuildFunc
	Comparator change.Comparator
}

// Registry is the Value Registry: process-scoped, type-indexed rule
// storage. The zero value is not usable; construct with New.
type Registry struct {
	lock  sync.Mutex
	rules map[key.TypeTag][]*Rule
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{rules: map[key.TypeTag][]*Rule{}}
}

// Register adds r to the registry. Multiple rules may be registered for the
// same TypeTag (e.g. several MatchFunc patterns over the same tag); at
// lookup time the first rule (in registration order) whose Match accepts
// the key wins. Register panics if r is incomplete, mirroring the
// teacher's MustRegister fail-fast style for programmer errors detected at
// startup.
func (reg *Registry) Register(r *Rule) {
	if r.Tag == "" {
		panic("registry: rule has no TypeTag")
	}
	if r.Match == nil || r.Build == nil {
		panic(fmt.Sprintf("registry: rule for tag %q missing Match or Build", r.Tag))
	}
	if r.Comparator == nil {
		r.Comparator = change.Digest()
	}
	reg.lock.Lock()
	defer reg.lock.Unlock()
	reg.rules[r.Tag] = append(reg.rules[r.Tag], r)
}

// Lookup returns the Rule claiming k, or nil if no registered rule matches.
// Multiple rule definitions claiming the same TypeTag are resolved by
// registration-order priority: the first whose Match(k) is true wins.
func (reg *Registry) Lookup(k key.Key) *Rule {
	reg.lock.Lock()
	candidates := reg.rules[k.Tag()]
	// Copy under lock, then probe Match outside it: Match may be
	// arbitrarily expensive and must not serialize against registration.
	snapshot := make([]*Rule, len(candidates))
	copy(snapshot, candidates)
	reg.lock.Unlock()

	for _, r := range snapshot {
		if r.Match(k) {
			return r
		}
	}
	return nil
}

// Tags returns the set of registered TypeTags, for diagnostics.
func (reg *Registry) Tags() []key.TypeTag {
	reg.lock.Lock()
	defer reg.lock.Unlock()
	tags := make([]key.TypeTag, 0, len(reg.rules))
	for t := range reg.rules {
		tags = append(tags, t)
	}
	return tags
}
