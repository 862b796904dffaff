package pool_test

import (
	"context"
	"sync"
	"time"

	"github.com/mandelsoft/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/brisklabs/buildengine/pkg/ctxutil"
	"github.com/brisklabs/buildengine/pkg/key"
	me "github.com/brisklabs/buildengine/pkg/pool"
)

var _ = Describe("build pool", func() {
	var p me.Pool
	var ctx context.Context

	BeforeEach(func() {
		ctx = ctxutil.CancelContext(context.Background())
	})

	AfterEach(func() {
		ctxutil.Cancel(ctx)
	})

	It("dispatches every enqueued key exactly once", func() {
		var mu sync.Mutex
		seen := map[string]int{}

		p = me.New(logging.DefaultContext(), "test", 2, func(_ context.Context, k key.Key, _ me.Slot) me.Status {
			mu.Lock()
			seen[k.String()]++
			mu.Unlock()
			return me.StatusCompleted()
		})

		ready, _, err := p.Start(ctx)
		Expect(err).To(Succeed())
		ready.Wait()

		p.Enqueue(key.Erase[string]("file", "a"))
		p.Enqueue(key.Erase[string]("file", "b"))

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(seen)
		}, 2*time.Second).Should(Equal(2))

		mu.Lock()
		defer mu.Unlock()
		for k, n := range seen {
			Expect(n).To(Equal(1), "key %s dispatched more than once", k)
		}
	})

	It("bounds true concurrency to its slot count even with suspension", func() {
		var mu sync.Mutex
		running, maxRunning, finished := 0, 0, 0
		work := func() {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		}

		p = me.New(logging.DefaultContext(), "bounded", 1, func(ctx context.Context, k key.Key, slot me.Slot) me.Status {
			work()
			slot.Release()
			time.Sleep(10 * time.Millisecond)
			Expect(slot.Reacquire(ctx)).To(Succeed())
			work()
			mu.Lock()
			finished++
			mu.Unlock()
			return me.StatusCompleted()
		})

		ready, _, err := p.Start(ctx)
		Expect(err).To(Succeed())
		ready.Wait()

		p.Enqueue(key.Erase[string]("file", "a"))
		p.Enqueue(key.Erase[string]("file", "b"))
		p.Enqueue(key.Erase[string]("file", "c"))
		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return finished
		}, 2*time.Second).Should(Equal(3))

		mu.Lock()
		defer mu.Unlock()
		Expect(maxRunning).To(Equal(1), "more rule bodies ran at once than the pool has slots")
	})
})
