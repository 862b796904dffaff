package apply_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mandelsoft/logging"
	"github.com/mandelsoft/vfs/pkg/memoryfs"

	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/apply"
	"github.com/brisklabs/buildengine/pkg/change"
	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/pool"
	"github.com/brisklabs/buildengine/pkg/registry"
)

// stringKey erases a plain string as a "text" key, the shape used
// throughout these specs for both source and derived values.
func stringKey(name string) key.Key {
	return key.Erase[string]("text", name)
}

func matches(name string) registry.MatchFunc {
	return func(k key.Key) bool {
		var s string
		_ = key.Decode(k, &s)
		return s == name
	}
}

func decodeValue(v []byte) string {
	var s string
	Expect(json.Unmarshal(v, &s)).To(Succeed())
	return s
}

func encodeValue(s string) []byte {
	b, err := json.Marshal(s)
	Expect(err).To(Succeed())
	return b
}

// currentResolver lets a rule body under test reach the resolver driving
// it, mimicking how a production rule layer closes over its own
// resolver reference rather than threading one through every Build call.
var currentResolver *apply.Resolver

// harness bundles one resolver + its pool for a single run, matching the
// wiring engine.Run performs: registry and DB are supplied by the caller
// so successive runs against the same DB can be composed across specs.
type harness struct {
	resolver *apply.Resolver
	pool     pool.Pool
	global   *action.Global
}

func newHarness(db entrydb.Database, reg *registry.Registry, run int64, staunch bool) *harness {
	opts := action.DefaultOptions()
	opts.Staunch = staunch
	g := action.NewGlobal(opts, db, reg, action.NewWriterSink(GinkgoWriter), run)
	r := apply.New(g, staunch)
	p := pool.New(logging.DefaultContext(), fmt.Sprintf("run-%d", run), 4, r.Dispatch)
	r.SetPool(p)
	currentResolver = r
	return &harness{resolver: r, pool: p, global: g}
}

func (h *harness) startAndWait() {
	ready, _, err := h.pool.Start(context.Background())
	Expect(err).To(Succeed())
	ready.Wait()
}

// rootKey is a synthetic top-level "driver" key: the caller stack for a
// want must not already contain the keys being demanded, or the cycle
// check would (falsely) trip on the want itself.
var rootKey = key.Erase[string]("$root", "want")

func (h *harness) want(keys ...key.Key) ([][]byte, error) {
	ctx := action.NewRootContext(h.global, rootKey)
	return h.resolver.Apply(ctx, keys)
}

var _ = Describe("dependency resolver", func() {
	var db entrydb.Database

	BeforeEach(func() {
		fs := memoryfs.New()
		var err error
		db, err = entrydb.NewFilesystemDatabase("/db", fs)
		Expect(err).To(Succeed())
	})

	It("builds a source key with no dependencies on first demand", func() {
		reg := registry.New()
		reg.Register(&registry.Rule{
			Tag:   "text",
			Match: matches("a"),
			Build: func(ctx any, k key.Key) ([]byte, error) {
				return encodeValue("A"), nil
			},
			Comparator: change.Digest(),
		})

		h := newHarness(db, reg, 1, false)
		h.startAndWait()

		vals, err := h.want(stringKey("a"))
		Expect(err).To(Succeed())
		Expect(decodeValue(vals[0])).To(Equal("A"))

		entry, err := db.GetEntry(stringKey("a"))
		Expect(err).To(Succeed())
		Expect(entry.BuiltRun).To(Equal(int64(1)))
		Expect(entry.ChangedRun).To(Equal(int64(1)))
	})

	It("does not re-run a dependent's rule body across a no-op incremental run", func() {
		var executions int32

		buildA := func(ctx any, k key.Key) ([]byte, error) {
			atomic.AddInt32(&executions, 1)
			return encodeValue("A"), nil
		}
		buildB := func(ctx any, k key.Key) ([]byte, error) {
			atomic.AddInt32(&executions, 1)
			c := ctx.(*action.Context)
			vals, err := currentResolver.Apply(c, []key.Key{stringKey("a")})
			if err != nil {
				return nil, err
			}
			return encodeValue(decodeValue(vals[0]) + "!"), nil
		}
		newReg := func() *registry.Registry {
			reg := registry.New()
			reg.Register(&registry.Rule{Tag: "text", Match: matches("a"), Build: buildA, Comparator: change.Digest()})
			reg.Register(&registry.Rule{Tag: "text", Match: matches("b"), Build: buildB, Comparator: change.Digest()})
			return reg
		}

		h1 := newHarness(db, newReg(), 1, false)
		h1.startAndWait()
		vals, err := h1.want(stringKey("b"))
		Expect(err).To(Succeed())
		Expect(decodeValue(vals[0])).To(Equal("A!"))
		Expect(atomic.LoadInt32(&executions)).To(Equal(int32(2)))

		h2 := newHarness(db, newReg(), 2, false)
		h2.startAndWait()
		vals2, err := h2.want(stringKey("b"))
		Expect(err).To(Succeed())
		Expect(decodeValue(vals2[0])).To(Equal("A!"))
		Expect(atomic.LoadInt32(&executions)).To(Equal(int32(2)), "no rule body should re-run when nothing changed")
	})

	It("propagates a changed dependency to its dependent", func() {
		var mu sync.Mutex
		output := "A"

		buildA := func(ctx any, k key.Key) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			return encodeValue(output), nil
		}
		buildB := func(ctx any, k key.Key) ([]byte, error) {
			c := ctx.(*action.Context)
			vals, err := currentResolver.Apply(c, []key.Key{stringKey("a")})
			if err != nil {
				return nil, err
			}
			return encodeValue(decodeValue(vals[0]) + "!"), nil
		}
		newReg := func() *registry.Registry {
			reg := registry.New()
			reg.Register(&registry.Rule{Tag: "text", Match: matches("a"), Build: buildA, Comparator: change.Digest()})
			reg.Register(&registry.Rule{Tag: "text", Match: matches("b"), Build: buildB, Comparator: change.Digest()})
			return reg
		}

		h1 := newHarness(db, newReg(), 1, false)
		h1.startAndWait()
		vals, err := h1.want(stringKey("b"))
		Expect(err).To(Succeed())
		Expect(decodeValue(vals[0])).To(Equal("A!"))

		mu.Lock()
		output = "A2"
		mu.Unlock()

		h2 := newHarness(db, newReg(), 2, false)
		h2.startAndWait()
		vals2, err := h2.want(stringKey("b"))
		Expect(err).To(Succeed())
		Expect(decodeValue(vals2[0])).To(Equal("A2!"))
	})

	It("reports a Cycle error instead of deadlocking", func() {
		reg := registry.New()
		reg.Register(&registry.Rule{
			Tag:   "text",
			Match: matches("self"),
			Build: func(ctx any, k key.Key) ([]byte, error) {
				c := ctx.(*action.Context)
				_, err := currentResolver.Apply(c, []key.Key{stringKey("self")})
				return nil, err
			},
			Comparator: change.Digest(),
		})

		h := newHarness(db, reg, 1, false)
		h.startAndWait()

		_, err := h.want(stringKey("self"))
		Expect(err).To(HaveOccurred())
	})

	It("resolves independent dependencies of a fan-in rule concurrently", func() {
		reg := registry.New()
		var started sync.WaitGroup
		started.Add(2)
		bothStarted := make(chan struct{})
		go func() {
			started.Wait()
			close(bothStarted)
		}()
		leaf := func(ctx any, k key.Key) ([]byte, error) {
			// Neither leaf finishes until both have started, so building p
			// and q one after the other fails here instead of succeeding.
			started.Done()
			select {
			case <-bothStarted:
			case <-time.After(5 * time.Second):
				return nil, fmt.Errorf("p and q were not built concurrently")
			}
			var s string
			Expect(key.Decode(k, &s)).To(Succeed())
			return encodeValue(s + "-built"), nil
		}
		reg.Register(&registry.Rule{Tag: "text", Match: matches("p"), Build: leaf, Comparator: change.Digest()})
		reg.Register(&registry.Rule{Tag: "text", Match: matches("q"), Build: leaf, Comparator: change.Digest()})
		reg.Register(&registry.Rule{Tag: "text", Match: matches("r"), Build: func(ctx any, k key.Key) ([]byte, error) {
			c := ctx.(*action.Context)
			vals, err := currentResolver.Apply(c, []key.Key{stringKey("p"), stringKey("q")})
			if err != nil {
				return nil, err
			}
			return encodeValue(decodeValue(vals[0]) + "+" + decodeValue(vals[1])), nil
		}, Comparator: change.Digest()})

		h := newHarness(db, reg, 1, false)
		h.startAndWait()

		vals, err := h.want(stringKey("r"))
		Expect(err).To(Succeed())
		Expect(decodeValue(vals[0])).To(Equal("p-built+q-built"))
	})
})
