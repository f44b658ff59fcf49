// Package event carries domain events from entity services to the activity
// recorder and the realtime relay.
package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/learning-layers/Timeliner/internal/platform/logging"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/sirupsen/logrus"
)

// Action is the verb of a domain event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionMove   Action = "move"
	ActionInvite Action = "invite"
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionLeave  Action = "leave"
	ActionRemove Action = "remove"
)

// All subscribes a listener to every event.
const All = "*"

// Event is one successful mutation.
type Event struct {
	Action     Action
	ObjectType domain.ObjectType
	Data       domain.Record
	ActorID    string
	// Attachment is set on task updates caused by attach or detach.
	Attachment *domain.Attachment
}

// Name returns the wire name "{action}:{objectType}".
func (e Event) Name() string {
	return NameOf(e.Action, e.ObjectType)
}

// NameOf builds an event name.
func NameOf(action Action, objectType domain.ObjectType) string {
	return string(action) + ":" + string(objectType)
}

// Room returns the realtime room the event belongs to.
func (e Event) Room() string {
	if e.Data == nil {
		return ""
	}
	if e.ObjectType == domain.ObjectProject {
		return e.Data.RecordID()
	}
	return e.Data.RecordProject()
}

// Listener handles one event. Errors are logged by the bus.
type Listener func(ctx context.Context, evt Event) error

// Bus dispatches events synchronously, in registration order, to the
// listeners of the event name and then to listeners of All.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	logger    logrus.FieldLogger
}

// NewBus builds an empty bus.
func NewBus(logger logrus.FieldLogger) *Bus {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bus{
		listeners: make(map[string][]Listener),
		logger:    logging.Component(logger, "event-bus"),
	}
}

// Subscribe registers listener for name, or for every event when name is All.
func (b *Bus) Subscribe(name string, listener Listener) {
	if b == nil || listener == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], listener)
}

// Publish delivers evt to every matching listener. A failing or panicking
// listener does not stop the others.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil {
		return
	}
	name := evt.Name()
	b.mu.RLock()
	targets := make([]Listener, 0, len(b.listeners[name])+len(b.listeners[All]))
	targets = append(targets, b.listeners[name]...)
	targets = append(targets, b.listeners[All]...)
	b.mu.RUnlock()

	for _, listener := range targets {
		if err := b.dispatch(ctx, listener, evt); err != nil {
			b.logger.WithError(err).WithField("event", name).Warn("event listener failed")
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, listener Listener, evt Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("listener panic: %v", recovered)
		}
	}()
	return listener(ctx, evt)
}
