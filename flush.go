package explorer

import (
	"context"
	"sync"
)

// FlushEvent names a broadcast signal. Only some of them clear permission caches.
type FlushEvent string

const (
	EventClearCaches        FlushEvent = "clear_caches"
	EventClearOnlineCaches  FlushEvent = "clear_online_caches"
	EventClearOfflineCaches FlushEvent = "clear_offline_caches"
	EventPublishProject     FlushEvent = "publish_project"
	EventResourceModified   FlushEvent = "resource_modified"
)

// ClearsPermissions reports whether the event flushes permission caches.
func (e FlushEvent) ClearsPermissions() bool {
	switch e {
	case EventClearCaches, EventClearOnlineCaches, EventClearOfflineCaches, EventPublishProject:
		return true
	}
	return false
}

// FlushListener receives flush events.
type FlushListener interface {
	OnFlush(ctx context.Context, event FlushEvent)
}

// FlushListenerFunc adapts a function to FlushListener.
type FlushListenerFunc func(ctx context.Context, event FlushEvent)

func (f FlushListenerFunc) OnFlush(ctx context.Context, event FlushEvent) { f(ctx, event) }

// FlushBus delivers flush events to explicitly registered listeners.
// Listeners are removed with the function returned by Subscribe; nothing
// is kept alive beyond that call.
type FlushBus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]FlushListener
	relays    []FlushRelay
}

// FlushRelay forwards locally published events to other processes.
type FlushRelay interface {
	Forward(ctx context.Context, event FlushEvent) error
}

func NewFlushBus() *FlushBus {
	return &FlushBus{listeners: make(map[uint64]FlushListener)}
}

// Subscribe registers l and returns its unsubscribe function. Calling the
// returned function more than once is harmless.
func (b *FlushBus) Subscribe(l FlushListener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// AddRelay forwards every event published through Publish to r as well.
func (b *FlushBus) AddRelay(r FlushRelay) {
	b.mu.Lock()
	b.relays = append(b.relays, r)
	b.mu.Unlock()
}

// Len returns the number of registered listeners.
func (b *FlushBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers the event locally and to every relay. Relay errors are
// returned after local delivery has completed.
func (b *FlushBus) Publish(ctx context.Context, event FlushEvent) error {
	b.Deliver(ctx, event)
	b.mu.RLock()
	relays := append([]FlushRelay(nil), b.relays...)
	b.mu.RUnlock()
	var firstErr error
	for _, r := range relays {
		if err := r.Forward(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Deliver notifies local listeners only. Relays call it for events that
// arrive from other processes.
func (b *FlushBus) Deliver(ctx context.Context, event FlushEvent) {
	b.mu.RLock()
	listeners := make([]FlushListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()
	for _, l := range listeners {
		l.OnFlush(ctx, event)
	}
}
