// Package inspect bridges the build engine's Global.Events registry to the
// watch package's websocket transport, so an inspection client can
// subscribe to build-completion events for a given rule tag over HTTP.
package inspect

import (
	"github.com/brisklabs/buildengine/pkg/action"
	"github.com/brisklabs/buildengine/pkg/events"
	"github.com/brisklabs/buildengine/watch"
)

// Request is the registration message a watch client sends after the
// websocket upgrade: the rule tag it wants events for, and whether it
// wants every key of that tag replayed on connect.
type Request struct {
	Tag     string `json:"tag"`
	Current bool   `json:"current"`
}

// Event is the payload pushed to a subscriber; it is exactly
// action.Event (key, run, status, error), as broadcast on Global.Events.
type Event = action.Event

// Registry adapts events.HandlerRegistry[action.Event] to watch.Registry,
// so watch.WatchHttpHandler can serve subscriptions directly off
// Global.Events without either package knowing about the other.
type Registry struct {
	events events.HandlerRegistry[Event]
}

func NewRegistry(reg events.HandlerRegistry[Event]) *Registry {
	return &Registry{events: reg}
}

var _ watch.Registry[Request, Event] = (*Registry)(nil)

func (r *Registry) RegisterWatchHandler(req Request, h watch.EventHandler[Event]) {
	r.events.RegisterHandler(h, req.Current, req.Tag)
}

func (r *Registry) UnregisterWatchHandler(req Request, h watch.EventHandler[Event]) {
	r.events.UnregisterHandler(h, req.Tag)
}
