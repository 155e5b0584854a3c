package stores

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oarkflow/explorer"
)

// MemoryIdentityStore implements explorer.Identity in-memory for testing/demo
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	principals map[explorer.PrincipalKind]map[string]explorer.Principal
	groups     map[string]map[string]struct{} // user id -> group names
	roles      map[string][]RoleGrant         // user id -> grants
	now        func() time.Time
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		principals: map[explorer.PrincipalKind]map[string]explorer.Principal{
			explorer.PrincipalUser:  {},
			explorer.PrincipalGroup: {},
			explorer.PrincipalRole:  {},
		},
		groups: make(map[string]map[string]struct{}),
		roles:  make(map[string][]RoleGrant),
		now:    time.Now,
	}
}

// SetClock replaces the clock used for grant expiry.
func (s *MemoryIdentityStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddPrincipal registers a principal. An empty id defaults to the name.
func (s *MemoryIdentityStore) AddPrincipal(kind explorer.PrincipalKind, id, name string) explorer.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(kind, id, name)
}

func (s *MemoryIdentityStore) addLocked(kind explorer.PrincipalKind, id, name string) explorer.Principal {
	if p, ok := s.principals[kind][name]; ok && id == "" {
		return p
	}
	if id == "" {
		id = name
	}
	p := explorer.Principal{ID: id, Name: name, Kind: kind}
	s.principals[kind][name] = p
	return p
}

// AddUser registers a user and returns it.
func (s *MemoryIdentityStore) AddUser(name string) *explorer.User {
	p := s.AddPrincipal(explorer.PrincipalUser, "", name)
	return &explorer.User{Principal: p}
}

// AddGroupMember makes the user a member of group, registering the group
// if needed.
func (s *MemoryIdentityStore) AddGroupMember(_ context.Context, userID, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(explorer.PrincipalGroup, "", group)
	m, ok := s.groups[userID]
	if !ok {
		m = make(map[string]struct{})
		s.groups[userID] = m
	}
	m[group] = struct{}{}
	return nil
}

func (s *MemoryIdentityStore) RemoveGroupMember(_ context.Context, userID, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups[userID], group)
	return nil
}

// AssignRole grants a role to the user, registering the role if needed.
func (s *MemoryIdentityStore) AssignRole(_ context.Context, userID string, grant RoleGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(explorer.PrincipalRole, "", grant.Role)
	s.roles[userID] = append(s.roles[userID], grant)
	return nil
}

func (s *MemoryIdentityStore) RevokeRole(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.roles[userID][:0]
	for _, g := range s.roles[userID] {
		if g.Role != role {
			kept = append(kept, g)
		}
	}
	s.roles[userID] = kept
	return nil
}

func (s *MemoryIdentityStore) LookupPrincipal(_ context.Context, kind explorer.PrincipalKind, name string) (explorer.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.principals[kind][name]; ok {
		return p, nil
	}
	return explorer.Principal{}, notFound(kind, name)
}

func (s *MemoryIdentityStore) Groups(_ context.Context, user *explorer.User) ([]explorer.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.groups[user.ID]))
	for g := range s.groups[user.ID] {
		names = append(names, g)
	}
	sort.Strings(names)
	out := make([]explorer.Principal, 0, len(names))
	for _, n := range names {
		out = append(out, s.principals[explorer.PrincipalGroup][n])
	}
	return out, nil
}

func (s *MemoryIdentityStore) Roles(_ context.Context, user *explorer.User, res *explorer.Resource) ([]explorer.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	seen := make(map[string]bool)
	out := make([]explorer.Principal, 0)
	for _, g := range s.roles[user.ID] {
		if seen[g.Role] || !g.Applies(res, now) {
			continue
		}
		seen[g.Role] = true
		out = append(out, s.principals[explorer.PrincipalRole][g.Role])
	}
	return out, nil
}
