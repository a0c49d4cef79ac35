package event

import (
	"log/slog"
	"sync"

	"github.com/mural-app/birthday-wall/internal/model/wall"
)

// softSubscriberLimit is not enforced; crossing it logs a warning so
// listener leaks show up before they hurt.
const softSubscriberLimit = 50

// Handler receives a published event for one kind.
type Handler func(wall.Event)

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	kind wall.EventKind
	id   uint64
}

type entry struct {
	id uint64
	fn Handler
}

// Bus decouples write-path producers from live subscribers within one
// process. Publish is synchronous and invokes handlers in registration
// order. There is no cross-process fan-out: in a multi-instance
// deployment only clients connected to the writing instance see the
// event.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[wall.EventKind][]entry
	logger *slog.Logger
}

// NewBus creates an empty bus. One instance is owned by the
// composition root and passed by reference to every handler.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[wall.EventKind][]entry),
		logger: logger.With("component", "bus"),
	}
}

// Subscribe registers fn for events of the given kind.
func (b *Bus) Subscribe(kind wall.EventKind, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := Subscription{kind: kind, id: b.nextID}
	b.subs[kind] = append(b.subs[kind], entry{id: sub.id, fn: fn})

	if n := len(b.subs[kind]); n > softSubscriberLimit {
		b.logger.Warn("subscriber count above soft limit, possible listener leak",
			"kind", string(kind), "count", n)
	}
	return sub
}

// Unsubscribe removes a subscription. Removing one that is already
// gone is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subs[sub.kind]
	for i, e := range entries {
		if e.id == sub.id {
			b.subs[sub.kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler currently registered for evt.Kind, in
// registration order. A panicking handler must not prevent the rest
// from running.
func (b *Bus) Publish(evt wall.Event) {
	b.mu.RLock()
	entries := make([]entry, len(b.subs[evt.Kind]))
	copy(entries, b.subs[evt.Kind])
	b.mu.RUnlock()

	for _, e := range entries {
		b.dispatch(e, evt)
	}
}

func (b *Bus) dispatch(e entry, evt wall.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked", "kind", string(evt.Kind), "panic", r)
		}
	}()
	e.fn(evt)
}

// SubscriberCount reports how many handlers are registered for kind.
func (b *Bus) SubscriberCount(kind wall.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
