package explorer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// DefaultPermissionCacheSize is the per-type capacity of the permission cache.
const DefaultPermissionCacheSize = 2048

// PermissionCache stores resolved permission sets per resource type. It is
// advisory: entries are only dropped by capacity eviction or by Clear on a
// flush signal, so group or role changes may be served stale until the
// next flush.
type PermissionCache interface {
	Get(key string) (PermissionSet, bool)
	Set(key string, set PermissionSet)
	Clear()
	Close()
}

// CacheFactory creates the permission cache of one resource type.
type CacheFactory func(resourceType string) (PermissionCache, error)

// RistrettoCacheConfig sizes the ristretto backed permission cache.
type RistrettoCacheConfig struct {
	MaxEntries  int64 `json:"max_entries" yaml:"max_entries"`
	NumCounters int64 `json:"num_counters" yaml:"num_counters"`
	BufferItems int64 `json:"buffer_items" yaml:"buffer_items"`
}

func (c RistrettoCacheConfig) withDefaults() RistrettoCacheConfig {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultPermissionCacheSize
	}
	if c.NumCounters <= 0 {
		c.NumCounters = c.MaxEntries * 10
	}
	if c.BufferItems <= 0 {
		c.BufferItems = 64
	}
	return c
}

// RistrettoPermissionCache is a bounded, concurrency safe PermissionCache.
// Every entry costs 1, so MaxEntries is the capacity in entries. After
// Close every operation is a no-op.
type RistrettoPermissionCache struct {
	mu     sync.RWMutex
	closed bool
	c      *ristretto.Cache
}

func NewRistrettoPermissionCache(cfg RistrettoCacheConfig) (*RistrettoPermissionCache, error) {
	cfg = cfg.withDefaults()
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        cfg.BufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create permission cache: %w", err)
	}
	return &RistrettoPermissionCache{c: c}, nil
}

// RistrettoCacheFactory returns a CacheFactory building one ristretto cache per type.
func RistrettoCacheFactory(cfg RistrettoCacheConfig) CacheFactory {
	return func(string) (PermissionCache, error) {
		return NewRistrettoPermissionCache(cfg)
	}
}

func (r *RistrettoPermissionCache) Get(key string) (PermissionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return PermissionSet{}, false
	}
	v, ok := r.c.Get(key)
	if !ok {
		return PermissionSet{}, false
	}
	set, ok := v.(PermissionSet)
	return set, ok
}

// Set stores the set and waits for the write buffer so that the next Get
// on the same key observes it.
func (r *RistrettoPermissionCache) Set(key string, set PermissionSet) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	if r.c.Set(key, set, 1) {
		r.c.Wait()
	}
}

func (r *RistrettoPermissionCache) Clear() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		r.c.Clear()
	}
}

// Close releases the cache. Calls running concurrently with Close finish
// before the underlying cache is closed.
func (r *RistrettoPermissionCache) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.c.Close()
}

// permissionCacheKey builds the cache key of a resolution. Groups and roles
// are sorted so the key does not depend on enumeration order. The user id
// is only part of the key when the list holds USER entries; otherwise the
// result depends on groups, roles and guest status alone. Every component
// is quoted so names containing separators cannot collide.
func permissionCacheKey(res *Resource, user *User, guest, userSpecific bool, groups, roles []Principal) string {
	var b strings.Builder
	if guest {
		b.WriteString("guest|")
	}
	if userSpecific && user != nil {
		b.WriteString("user:")
		b.WriteString(strconv.Quote(user.ID))
		b.WriteByte('|')
	}
	b.WriteString(strconv.Quote(res.RootPath))
	b.WriteString("|g")
	writeSortedIDs(&b, groups)
	b.WriteString("|r")
	writeSortedIDs(&b, roles)
	return b.String()
}

func writeSortedIDs(b *strings.Builder, ps []Principal) {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b.WriteString(strconv.Quote(id))
	}
}
