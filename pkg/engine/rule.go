package engine

import (
	"encoding/json"

	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/apply"
	"github.com/brisklabs/buildengine/pkg/change"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/registry"
)

// Key erases a typed key value under tag, for callers that want a
// strongly-typed key struct (or a plain comparable value, as here) rather
// than calling key.Erase directly at every call site.
func Key[K any](tag key.TypeTag, k K) key.Key {
	return key.Erase(tag, k)
}

// Want resolves a single typed dependency, decoding its stored value into
// V. It is the typed counterpart to resolver.Apply for rule bodies built
// with Typed, sparing them the []byte encode/decode boilerplate apply
// itself stays agnostic to.
func Want[V any](c *action.Context, resolver *apply.Resolver, k key.Key) (V, error) {
	var v V
	values, err := resolver.Apply(c, []key.Key{k})
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(values[0], &v)
	return v, err
}

// Typed builds a registry.Rule from a typed match predicate and build
// function, so a rule author works with K/V directly instead of key.Key's
// erased bytes and a rule's raw []byte value. This is the minimal
// in-process rule-registration DSL the build-out needed to register toy
// rules in cmds/engine and in the test suites without reaching for an
// out-of-scope file-path rule layer.
func Typed[K any, V any](tag key.TypeTag, match func(K) bool, build func(ctx *action.Context, k K) (V, error), cmp change.Comparator) *registry.Rule {
	return &registry.Rule{
		Tag: tag,
		Match: func(k key.Key) bool {
			var kv K
			if key.Decode(k, &kv) != nil {
				return false
			}
			return match(kv)
		},
		Build: func(ctx any, k key.Key) ([]byte, error) {
			var kv K
			if err := key.Decode(k, &kv); err != nil {
				return nil, err
			}
			v, err := build(ctx.(*action.Context), kv)
			if err != nil {
				return nil, err
			}
			return json.Marshal(v)
		},
		Comparator: cmp,
	}
}
