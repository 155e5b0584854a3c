package explorer

import "errors"

// WithFlushBus shares bus with other components, e.g. a Redis relay.
func WithFlushBus(bus *FlushBus) Option {
	return func(w *Workplace) error {
		if bus == nil {
			return errors.New("nil flush bus")
		}
		w.bus = bus
		return nil
	}
}

// WithCacheFactory replaces the ristretto permission caches.
func WithCacheFactory(f CacheFactory) Option {
	return func(w *Workplace) error {
		w.cacheFactory = f
		return nil
	}
}

// WithGuestName overrides the configured guest user name.
func WithGuestName(name string) Option {
	return func(w *Workplace) error {
		w.guestName = name
		return nil
	}
}
