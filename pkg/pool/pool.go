// Package pool implements the Scheduler/Pool: a bounded-parallelism worker
// pool executing ready rule bodies, integrated with the suspend/resume
// primitive the Dependency Resolver uses when a rule body blocks on
// apply. Grounded on the teacher's pkg/pool (a k8s client-go
// RateLimitingQueue draining into a fixed worker count), generalized here
// from database.ObjectId work items to key.Key, and from a fixed worker
// count to a semaphore.Weighted concurrency gate so a suspended rule body
// can release its slot (see Slot) without needing a dedicated goroutine
// per worker.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/brisklabs/buildengine/pkg/ctxutil"
	"github.com/brisklabs/buildengine/pkg/healthz"
	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/brisklabs/buildengine/pkg/service"
	"github.com/goombaio/namegenerator"
	"github.com/mandelsoft/logging"
	"golang.org/x/sync/semaphore"
	"k8s.io/client-go/util/workqueue"
)

var REALM = logging.DefineRealm("engine/pool", "build scheduling worker pool")

// Dispatch runs the rule body owning k. slot is bound to the single
// concurrency permit process already holds for this call; Dispatch (or
// code it calls, such as the resolver awaiting a dependency) may Release
// it for the duration of a blocking wait and Reacquire before returning.
// Returns a Status describing whether the item is done, failed, or must be
// retried/rescheduled.
type Dispatch func(ctx context.Context, k key.Key, slot Slot) Status

// Slot is the cooperative-suspension handle a Dispatch implementation
// (the resolver) uses to give back its concurrency slot while blocked
// waiting on a dependency, and to reclaim one before resuming.
type Slot interface {
	// Release gives back this task's concurrency slot for the duration
	// of a blocking wait; the pool admits one more ready item while
	// released.
	Release()
	// Reacquire blocks until a slot is available again, then returns.
	// Must be called before the dispatch resumes doing real work.
	Reacquire(ctx context.Context) error
}

// Pool is the bounded-parallelism scheduler for rule-body execution.
type Pool interface {
	service.Service

	GetName() string

	// Enqueue admits k for execution. Safe to call from any goroutine,
	// including from within a running Dispatch (a rule body discovering
	// a new dependency).
	Enqueue(k key.Key)
	EnqueueRateLimited(k key.Key)
	EnqueueAfter(k key.Key, d time.Duration)
}

type pool struct {
	logging.UnboundLogger
	name     string
	size     int64
	ctx      context.Context
	lctx     logging.AttributionContext
	queue    workqueue.RateLimitingInterface
	sem      *semaphore.Weighted
	dispatch Dispatch
	names    namegenerator.Generator

	ready   service.Trigger
	syncher service.Syncher
}

// New creates a Pool with the given bounded concurrency, draining items
// through dispatch.
func New(lctxp logging.AttributionContextProvider, name string, size int, dispatch Dispatch) Pool {
	lctx := lctxp.AttributionContext().WithContext(REALM, logging.NewAttribute("pool", name)).WithName(name)
	p := &pool{
		UnboundLogger: logging.DynamicLogger(lctx, logging.NewAttribute("pool", name)),
		name:          name,
		size:          int64(size),
		lctx:          lctx.AttributionContext(),
		queue: workqueue.NewRateLimitingQueueWithConfig(workqueue.DefaultControllerRateLimiter(), workqueue.RateLimitingQueueConfig{
			Name: name,
		}),
		sem:      semaphore.NewWeighted(int64(size)),
		dispatch: dispatch,
		names:    namegenerator.NewNameGenerator(time.Now().UnixNano()),
	}
	p.Info("created build pool", "name", name, "size", size)
	return p
}

func (p *pool) GetName() string { return p.name }

func (p *pool) Enqueue(k key.Key)                      { p.queue.Add(k) }
func (p *pool) EnqueueRateLimited(k key.Key)            { p.queue.AddRateLimited(k) }
func (p *pool) EnqueueAfter(k key.Key, d time.Duration) { p.queue.AddAfter(k, d) }

type slot struct {
	sem      *semaphore.Weighted
	released bool
}

func (s *slot) Release() {
	if !s.released {
		s.sem.Release(1)
		s.released = true
	}
}

func (s *slot) Reacquire(ctx context.Context) error {
	if !s.released {
		return nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.released = false
	return nil
}

func (p *pool) Key() string { return fmt.Sprintf("pool %s", p.name) }

func (p *pool) Tick() { healthz.Tick(p.Key()) }

func (p *pool) Wait() error { return p.syncher.Wait() }

func (p *pool) Start(ctx context.Context) (service.Syncher, service.Syncher, error) {
	if p.syncher == nil {
		p.ctx = ctxutil.WaitGroupContext(ctx, p.Key())
		wg := ctxutil.WaitGroupGet(p.ctx)
		p.syncher = service.Sync(wg)
		p.ready = service.SyncTrigger()
		go p.run()
	}
	return p.ready, p.syncher, nil
}

const healthPeriod = 30 * time.Second

func (p *pool) run() {
	p.Info("starting build pool", "name", p.name, "slots", p.size)
	healthz.Start(p.Key(), healthPeriod)
	p.ready.Trigger()

	done := make(chan struct{})
	go func() {
		<-p.ctx.Done()
		p.queue.ShutDown()
		close(done)
	}()

	for {
		item, shutdown := p.queue.Get()
		if shutdown {
			break
		}
		k := item.(key.Key)
		ctxutil.WaitGroupRunUntilCancelled(p.ctx, func() { p.process(k) })
	}

	<-done
	healthz.End(p.Key())
}

func (p *pool) process(k key.Key) {
	defer p.queue.Done(k)
	p.Tick()

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		// Pool shutting down: put the item back for a clean re-drain.
		p.queue.AddRateLimited(k)
		return
	}
	s := &slot{sem: p.sem}
	defer func() {
		if !s.released {
			p.sem.Release(1)
		}
	}()

	status := p.dispatch(p.ctx, k, s)
	switch {
	case status.IsDelayed():
		p.Error("rule body reported a soft failure", "error", status.Error, "key", k.String())
		p.queue.AddRateLimited(k)
	case status.Error != nil:
		p.Error("rule body failed", "error", status.Error, "key", k.String())
		p.queue.Forget(k)
	case status.MustBeRepeated():
		p.queue.Forget(k)
		p.queue.Add(k)
	case status.Interval > 0:
		p.queue.Forget(k)
		p.queue.AddAfter(k, status.Interval)
	default:
		p.queue.Forget(k)
	}
}
