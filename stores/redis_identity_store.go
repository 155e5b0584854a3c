package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/explorer"
)

// RedisIdentityStore keeps principals and memberships in Redis:
//
//	{prefix}principal:{KIND}:{name}  string, principal id
//	{prefix}groups:{userID}          set of group names
//	{prefix}roles:{userID}           hash role|scope -> RoleGrant JSON
type RedisIdentityStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisIdentityStore(client redis.UniversalClient, prefix string) *RedisIdentityStore {
	if prefix == "" {
		prefix = "explorer:"
	}
	return &RedisIdentityStore{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisIdentityStore) principalKey(kind explorer.PrincipalKind, name string) string {
	return fmt.Sprintf("%sprincipal:%s:%s", r.prefix, kind, name)
}

func (r *RedisIdentityStore) groupsKey(userID string) string { return r.prefix + "groups:" + userID }
func (r *RedisIdentityStore) rolesKey(userID string) string  { return r.prefix + "roles:" + userID }

// AddPrincipal stores a principal unless one with that name exists.
func (r *RedisIdentityStore) AddPrincipal(ctx context.Context, kind explorer.PrincipalKind, id, name string) error {
	if id == "" {
		id = name
	}
	return r.client.SetNX(ctx, r.principalKey(kind, name), id, 0).Err()
}

func (r *RedisIdentityStore) AddGroupMember(ctx context.Context, userID, group string) error {
	if err := r.AddPrincipal(ctx, explorer.PrincipalGroup, "", group); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.groupsKey(userID), group).Err()
}

func (r *RedisIdentityStore) RemoveGroupMember(ctx context.Context, userID, group string) error {
	return r.client.SRem(ctx, r.groupsKey(userID), group).Err()
}

func (r *RedisIdentityStore) AssignRole(ctx context.Context, userID string, grant RoleGrant) error {
	if err := r.AddPrincipal(ctx, explorer.PrincipalRole, "", grant.Role); err != nil {
		return err
	}
	b, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.rolesKey(userID), grant.Role+"|"+grant.Scope, string(b)).Err()
}

func (r *RedisIdentityStore) RevokeRole(ctx context.Context, userID, role string) error {
	grants, err := r.grants(ctx, userID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.Role == role {
			if err := r.client.HDel(ctx, r.rolesKey(userID), g.Role+"|"+g.Scope).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RedisIdentityStore) LookupPrincipal(ctx context.Context, kind explorer.PrincipalKind, name string) (explorer.Principal, error) {
	id, err := r.client.Get(ctx, r.principalKey(kind, name)).Result()
	if errors.Is(err, redis.Nil) {
		return explorer.Principal{}, notFound(kind, name)
	}
	if err != nil {
		return explorer.Principal{}, fmt.Errorf("lookup %s.%s: %w", kind, name, err)
	}
	return explorer.Principal{ID: id, Name: name, Kind: kind}, nil
}

func (r *RedisIdentityStore) Groups(ctx context.Context, user *explorer.User) ([]explorer.Principal, error) {
	names, err := r.client.SMembers(ctx, r.groupsKey(user.ID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return r.resolve(ctx, explorer.PrincipalGroup, names)
}

func (r *RedisIdentityStore) Roles(ctx context.Context, user *explorer.User, res *explorer.Resource) ([]explorer.Principal, error) {
	grants, err := r.grants(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	seen := make(map[string]bool)
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		if seen[g.Role] || !g.Applies(res, now) {
			continue
		}
		seen[g.Role] = true
		names = append(names, g.Role)
	}
	sort.Strings(names)
	return r.resolve(ctx, explorer.PrincipalRole, names)
}

func (r *RedisIdentityStore) grants(ctx context.Context, userID string) ([]RoleGrant, error) {
	raw, err := r.client.HGetAll(ctx, r.rolesKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RoleGrant, 0, len(raw))
	for field, v := range raw {
		var g RoleGrant
		if err := json.Unmarshal([]byte(v), &g); err != nil {
			return nil, fmt.Errorf("decode role grant %s: %w", field, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// resolve maps names to principals; names without a principal record are dropped.
func (r *RedisIdentityStore) resolve(ctx context.Context, kind explorer.PrincipalKind, names []string) ([]explorer.Principal, error) {
	out := make([]explorer.Principal, 0, len(names))
	if len(names) == 0 {
		return out, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = r.principalKey(kind, n)
	}
	ids, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range ids {
		id, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, explorer.Principal{ID: id, Name: names[i], Kind: kind})
	}
	return out, nil
}
