package engine_test

import (
	"context"
	"encoding/json"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/apply"
	"github.com/brisklabs/buildengine/pkg/change"
	"github.com/brisklabs/buildengine/pkg/engine"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/registry"
)

func textKey(name string) key.Key {
	return key.Erase[string]("text", name)
}

func encodeValue(s string) []byte {
	b, err := json.Marshal(s)
	Expect(err).To(Succeed())
	return b
}

func decodeValue(v []byte) string {
	var s string
	Expect(json.Unmarshal(v, &s)).To(Succeed())
	return s
}

var _ = Describe("Run", func() {
	var fs vfs.FileSystem
	var opts action.Options
	var executions int32

	registerGreeting := func(reg *registry.Registry, resolver *apply.Resolver) {
		reg.Register(&registry.Rule{
			Tag: "text",
			Match: func(k key.Key) bool {
				var s string
				_ = key.Decode(k, &s)
				return s == "greeting"
			},
			Build: func(ctx any, k key.Key) ([]byte, error) {
				atomic.AddInt32(&executions, 1)
				return encodeValue("hello"), nil
			},
			Comparator: change.Digest(),
		})
	}

	BeforeEach(func() {
		fs = memoryfs.New()
		atomic.StoreInt32(&executions, 0)
		opts = action.DefaultOptions()
		opts.DBFile = "/db"
		opts.ReportFile = "/out/report.json"
	})

	It("builds the wanted key and writes a profile report", func() {
		result, err := engine.Run(context.Background(), opts, registerGreeting, []key.Key{textKey("greeting")}, action.NewWriterSink(GinkgoWriter), fs, nil)
		Expect(err).To(Succeed())
		Expect(result.ExitCode).To(Equal(0))
		Expect(result.Run).To(Equal(int64(1)))
		Expect(decodeValue(result.Values[0])).To(Equal("hello"))

		data, err := vfs.ReadFile(fs, "/out/report.json")
		Expect(err).To(Succeed())
		var records []map[string]any
		Expect(json.Unmarshal(data, &records)).To(Succeed())
		Expect(records).To(HaveLen(1))
	})

	It("does not re-run the rule body on a second, unchanged run", func() {
		_, err := engine.Run(context.Background(), opts, registerGreeting, []key.Key{textKey("greeting")}, action.NewWriterSink(GinkgoWriter), fs, nil)
		Expect(err).To(Succeed())
		Expect(atomic.LoadInt32(&executions)).To(Equal(int32(1)))

		result, err := engine.Run(context.Background(), opts, registerGreeting, []key.Key{textKey("greeting")}, action.NewWriterSink(GinkgoWriter), fs, nil)
		Expect(err).To(Succeed())
		Expect(result.Run).To(Equal(int64(2)))
		Expect(atomic.LoadInt32(&executions)).To(Equal(int32(1)))
	})

	It("reports MissingRule as a user-facing exit code 2", func() {
		result, err := engine.Run(context.Background(), opts, func(reg *registry.Registry, resolver *apply.Resolver) {}, []key.Key{textKey("nowhere")}, action.NewWriterSink(GinkgoWriter), fs, nil)
		Expect(err).To(HaveOccurred())
		Expect(result.ExitCode).To(Equal(2))
	})
})

var _ = Describe("the typed rule DSL", func() {
	It("lets a rule body demand a typed dependency without manual (un)marshalling", func() {
		fs := memoryfs.New()
		opts := action.DefaultOptions()
		opts.DBFile = "/db"

		register := func(reg *registry.Registry, resolver *apply.Resolver) {
			reg.Register(engine.Typed("text", func(name string) bool { return name == "base" },
				func(ctx *action.Context, name string) (string, error) {
					return "base-value", nil
				}, change.Digest()))
			reg.Register(engine.Typed("text", func(name string) bool { return name == "derived" },
				func(ctx *action.Context, name string) (string, error) {
					base, err := engine.Want[string](ctx, resolver, engine.Key[string]("text", "base"))
					if err != nil {
						return "", err
					}
					return base + "-derived", nil
				}, change.Digest()))
		}

		result, err := engine.Run(context.Background(), opts, register, []key.Key{engine.Key[string]("text", "derived")}, action.NewWriterSink(GinkgoWriter), fs, nil)
		Expect(err).To(Succeed())
		Expect(decodeValue(result.Values[0])).To(Equal("base-value-derived"))
	})
})

var _ = Describe("LoadOptionsFile", func() {
	var fs vfs.FileSystem

	BeforeEach(func() {
		fs = memoryfs.New()
	})

	It("parses recognised keys and expands environment references", func() {
		GinkgoT().Setenv("BUILDENGINE_TEST_DB", "/data/db")
		Expect(vfs.WriteFile(fs, "/opts.conf", []byte("parallelism = 4\nstaunch = true\ndbFile = ${BUILDENGINE_TEST_DB}\n# a comment\n\n"), 0o644)).To(Succeed())

		opts, err := engine.LoadOptionsFile("/opts.conf", action.DefaultOptions(), fs)
		Expect(err).To(Succeed())
		Expect(opts.Parallelism).To(Equal(4))
		Expect(opts.Staunch).To(BeTrue())
		Expect(opts.DBFile).To(Equal("/data/db"))
	})

	It("rejects an unrecognised key", func() {
		Expect(vfs.WriteFile(fs, "/opts.conf", []byte("bogus = 1\n"), 0o644)).To(Succeed())
		_, err := engine.LoadOptionsFile("/opts.conf", action.DefaultOptions(), fs)
		Expect(err).To(HaveOccurred())
	})
})
