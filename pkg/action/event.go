package action

import (
	"github.com/brisklabs/buildengine/pkg/entrydb"
	"github.com/brisklabs/buildengine/pkg/events"
	"github.com/brisklabs/buildengine/pkg/key"
)

// Event is the notification broadcast through Global.Events whenever a
// resolution finishes, successfully or not. It is the events.Id a watcher
// (the inspection API's websocket transport) subscribes to by rule tag.
type Event struct {
	Key    key.Key `json:"key"`
	Run    int64   `json:"run"`
	Status string  `json:"status"` // "built", "unchanged" or "failed"
	Error  string  `json:"error,omitempty"`
}

const (
	StatusBuilt     = "built"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// GetType satisfies events.Id by the key's rule tag, so a watcher can
// subscribe to every event for a given rule kind ("file", "oracle", ...).
func (e Event) GetType() string { return string(e.Key.Tag()) }

// GetNamespace satisfies events.Id. The engine's Key has no namespace
// concept of its own, so every event lives in the default namespace and
// watchers distinguish keys by kind plus their own Match predicate.
func (e Event) GetNamespace() string { return "" }

// dbLister adapts entrydb.Database to events.ObjectLister so a handler
// registering with current=true is replayed every key already stored for
// its kind, not just events for keys built after it subscribed.
type dbLister struct {
	db entrydb.Database
}

func (l dbLister) ListObjectIds(typ string, ns string, atomic ...func()) ([]Event, error) {
	keys, err := l.db.ListKeys()
	if err != nil {
		return nil, err
	}
	var ids []Event
	for _, k := range keys {
		if string(k.Tag()) == typ {
			ids = append(ids, Event{Key: k, Status: StatusUnchanged})
		}
	}
	for _, a := range atomic {
		a()
	}
	return ids, nil
}

// NewEventRegistry builds the HandlerRegistry backing Global.Events,
// replaying a rule kind's already-built keys from db for handlers that
// register with current=true.
func NewEventRegistry(db entrydb.Database) events.HandlerRegistry[Event] {
	return events.NewHandlerRegistry[Event](dbLister{db: db})
}
