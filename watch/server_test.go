package watch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/brisklabs/buildengine/pkg/server"
	"github.com/brisklabs/buildengine/watch"
	"github.com/mandelsoft/logging"
	"github.com/mandelsoft/logging/logrusl"
	"github.com/mandelsoft/logging/logrusr"
)

var REALM = logging.NewRealm("engine/watch/client")
var log = logging.DefaultContext().Logger(REALM)

var _ = Describe("the watch transport", func() {
	var srv *server.Server
	var registry *Registry

	BeforeEach(func() {
		logcfg := logrusl.Human(true)
		logging.DefaultContext().SetBaseLogger(logrusr.New(logcfg.NewLogrus()))

		lctx := logging.DefaultContext()
		lctx.AddRule(logging.NewConditionRule(logging.DebugLevel, logging.NewRealmPrefix("engine")))

		srv = server.NewServer(18080, false)
		registry = NewRegistry()
		srv.Handle("/watch", watch.WatchHttpHandler[RegistrationRequest, Event](registry))
		go func() {
			_ = srv.ListenAndServe()
		}()
		time.Sleep(100 * time.Millisecond)
	})

	AfterEach(func() {
		Expect(srv.Shutdown(context.Background())).To(Succeed())
	})

	It("delivers events to a registered websocket consumer", func() {
		received := make(chan Event, 10)
		go func() {
			_ = consume(received)
		}()

		time.Sleep(100 * time.Millisecond)
		registry.Trigger(Event{Key: "test", Message: "message 1"})

		select {
		case evt := <-received:
			Expect(evt).To(Equal(Event{Key: "test", Message: "message 1"}))
		case <-time.After(5 * time.Second):
			Fail("timed out waiting for event")
		}
	})
})

type RegistrationRequest struct {
	Key string `json:"key"`
}

type Event struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

type Handler = watch.EventHandler[Event]

type Registry struct {
	lock     sync.Mutex
	handlers map[string][]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string][]Handler{},
	}
}

func (r *Registry) RegisterWatchHandler(req RegistrationRequest, h Handler) {
	r.lock.Lock()
	defer r.lock.Unlock()

	log.Info("registering handler for {{key}}", "key", req.Key)
	list := r.handlers[req.Key]
	r.handlers[req.Key] = append(list, h)
}

func (r *Registry) UnregisterWatchHandler(req RegistrationRequest, h Handler) {
	r.lock.Lock()
	defer r.lock.Unlock()

	list := r.handlers[req.Key]
	r.handlers[req.Key] = slices.DeleteFunc(list, func(e Handler) bool { return e == h })
}

func (r *Registry) Trigger(evt Event) {
	r.lock.Lock()
	list := slices.Clone(r.handlers[evt.Key])
	r.lock.Unlock()

	log.Info("trigger event {{event}} for {{amount}} handlers", "event", evt, "amount", len(list))
	for _, h := range list {
		h.HandleEvent(evt)
	}
}

////////////////////////////////////////////////////////////////////////////////

func consume(out chan<- Event) error {
	conn, _, _, err := ws.Dial(context.Background(), "ws://localhost:18080/watch")
	if err != nil {
		return err
	}

	registration := RegistrationRequest{Key: "test"}
	data, _ := json.Marshal(registration)
	if err := wsutil.WriteClientMessage(conn, ws.OpText, data); err != nil {
		return err
	}

	for {
		msgs, err := wsutil.ReadServerMessage(conn, nil)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			var evt Event
			if err := json.Unmarshal(m.Payload, &evt); err != nil {
				return err
			}
			fmt.Printf("%#v\n", evt)
			out <- evt
		}
	}
}
