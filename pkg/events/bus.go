package events

import (
	"sync"

	"github.com/paperstack/paperstack/pkg/permission"
)

// Bus fans permission change events out to every subscriber, synchronously
// and in subscription order. It is itself a ChangeHandler, so producers like
// the document permission mutator publish by pointing at the bus.
type Bus struct {
	mu       sync.RWMutex
	handlers []permission.ChangeHandler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler. There is no unsubscribe; subscribers live
// for the process lifetime.
func (b *Bus) Subscribe(handler permission.ChangeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// OnPermissionChange delivers the event to every subscriber before
// returning, so a cache is never consulted between a mutation and its
// invalidation.
func (b *Bus) OnPermissionChange(event permission.ChangeEvent) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, h := range handlers {
		h.OnPermissionChange(event)
	}
}
