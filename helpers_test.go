package explorer

import (
	"context"
	"fmt"
	"sync"
)

// testIdentity is a minimal Identity for tests in this package.
type testIdentity struct {
	mu         sync.Mutex
	principals map[string]Principal // "KIND.name" -> principal
	groups     map[string][]string  // user id -> group names
	roles      map[string][]string  // user id -> role names
	groupErr   error
	calls      int
}

func newTestIdentity() *testIdentity {
	return &testIdentity{
		principals: make(map[string]Principal),
		groups:     make(map[string][]string),
		roles:      make(map[string][]string),
	}
}

// add registers a principal whose id is its name, as the shipped stores
// do, so same-named principals of different kinds share an id.
func (t *testIdentity) add(kind PrincipalKind, name string) Principal {
	p := Principal{ID: name, Name: name, Kind: kind}
	t.principals[string(kind)+"."+name] = p
	return p
}

func (t *testIdentity) user(name string) *User {
	p := t.add(PrincipalUser, name)
	return &User{Principal: p}
}

func (t *testIdentity) memberOf(user *User, groups ...string) {
	for _, g := range groups {
		t.add(PrincipalGroup, g)
	}
	t.groups[user.ID] = append(t.groups[user.ID], groups...)
}

func (t *testIdentity) withRoles(user *User, roles ...string) {
	for _, r := range roles {
		t.add(PrincipalRole, r)
	}
	t.roles[user.ID] = append(t.roles[user.ID], roles...)
}

func (t *testIdentity) LookupPrincipal(_ context.Context, kind PrincipalKind, name string) (Principal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	p, ok := t.principals[string(kind)+"."+name]
	if !ok {
		if kind == PrincipalRole {
			return Principal{}, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		return Principal{}, fmt.Errorf("%w: %s", ErrPrincipalNotFound, name)
	}
	return p, nil
}

func (t *testIdentity) Groups(_ context.Context, user *User) ([]Principal, error) {
	if t.groupErr != nil {
		return nil, t.groupErr
	}
	var out []Principal
	for _, g := range t.groups[user.ID] {
		out = append(out, t.principals["GROUP."+g])
	}
	return out, nil
}

func (t *testIdentity) Roles(_ context.Context, user *User, _ *Resource) ([]Principal, error) {
	var out []Principal
	for _, r := range t.roles[user.ID] {
		out = append(out, t.principals["ROLE."+r])
	}
	return out, nil
}

// mapCache is a deterministic PermissionCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]PermissionSet
	clears  int
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string]PermissionSet)} }

func (c *mapCache) Get(key string) (PermissionSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *mapCache) Set(key string, set PermissionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = set
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]PermissionSet)
	c.clears++
}

func (c *mapCache) Close() {}

func (c *mapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// staticPermissions returns fixed permissions per resource id.
type staticPermissions map[string]PermissionSet

func (s staticPermissions) Permissions(_ context.Context, _ *User, res *Resource) PermissionSet {
	return s[res.ID]
}

func res(id string) *Resource {
	return &Resource{ID: id, RootPath: "/sites/" + id, Type: "html", State: StateChanged}
}

// recordLogger counts log calls by level.
type recordLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (r *recordLogger) Debug(string, ...any) {}

func (r *recordLogger) Info(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *recordLogger) Error(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordLogger) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}
