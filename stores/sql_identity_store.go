package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/explorer"
)

// SQLIdentityStore implements explorer.Identity backed by a SQL DB (squealx).
// Role memberships carry a scope path and an optional expiry.
type SQLIdentityStore struct {
	db  *squealx.DB
	now func() time.Time
}

func NewSQLIdentityStore(db *squealx.DB) *SQLIdentityStore {
	return &SQLIdentityStore{db: db, now: time.Now}
}

// SetClock replaces the clock used for grant expiry.
func (s *SQLIdentityStore) SetClock(now func() time.Time) { s.now = now }

// AddPrincipal inserts a principal. Ids are unique per kind. Adding an
// existing (kind, name) again is a no-op when no id is given or the id
// matches; any other collision yields ErrPrincipalConflict.
func (s *SQLIdentityStore) AddPrincipal(ctx context.Context, kind explorer.PrincipalKind, id, name string) error {
	explicit := id != ""
	if !explicit {
		id = name
	}
	q := `INSERT INTO principals(id, kind, name) VALUES(:id, :kind, :name) ON CONFLICT DO NOTHING`
	if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "kind": string(kind), "name": name}); err != nil {
		return err
	}
	p, err := s.LookupPrincipal(ctx, kind, name)
	if errors.Is(err, explorer.ErrPrincipalNotFound) || errors.Is(err, explorer.ErrUnknownRole) {
		return fmt.Errorf("%w: %s.%s id %q is taken", explorer.ErrPrincipalConflict, kind, name, id)
	}
	if err != nil {
		return err
	}
	if explicit && p.ID != id {
		return fmt.Errorf("%w: %s.%s has id %q, not %q", explorer.ErrPrincipalConflict, kind, name, p.ID, id)
	}
	return nil
}

func (s *SQLIdentityStore) AddGroupMember(ctx context.Context, userID, group string) error {
	if err := s.AddPrincipal(ctx, explorer.PrincipalGroup, "", group); err != nil {
		return err
	}
	q := `INSERT INTO group_members(user_id, group_name) VALUES(:user_id, :group_name) ON CONFLICT DO NOTHING`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "group_name": group})
	return err
}

func (s *SQLIdentityStore) RemoveGroupMember(ctx context.Context, userID, group string) error {
	q := `DELETE FROM group_members WHERE user_id = :user_id AND group_name = :group_name`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "group_name": group})
	return err
}

func (s *SQLIdentityStore) AssignRole(ctx context.Context, userID string, grant RoleGrant) error {
	if err := s.AddPrincipal(ctx, explorer.PrincipalRole, "", grant.Role); err != nil {
		return err
	}
	var expires any
	if !grant.ExpiresAt.IsZero() {
		expires = grant.ExpiresAt.UTC().Format(time.RFC3339)
	}
	q := `INSERT INTO role_members(user_id, role_name, scope, expires_at) VALUES(:user_id, :role_name, :scope, :expires_at)
		ON CONFLICT (user_id, role_name, scope) DO UPDATE SET expires_at = excluded.expires_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":    userID,
		"role_name":  grant.Role,
		"scope":      grant.Scope,
		"expires_at": expires,
	})
	return err
}

func (s *SQLIdentityStore) RevokeRole(ctx context.Context, userID, role string) error {
	q := `DELETE FROM role_members WHERE user_id = :user_id AND role_name = :role_name`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "role_name": role})
	return err
}

func (s *SQLIdentityStore) LookupPrincipal(ctx context.Context, kind explorer.PrincipalKind, name string) (explorer.Principal, error) {
	q := `SELECT id, name FROM principals WHERE kind = :kind AND name = :name`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"kind": string(kind), "name": name})
	if err != nil {
		return explorer.Principal{}, fmt.Errorf("lookup %s.%s: %w", kind, name, err)
	}
	defer r.Close()
	if !r.Next() {
		return explorer.Principal{}, notFound(kind, name)
	}
	p := explorer.Principal{Kind: kind}
	if err := r.Scan(&p.ID, &p.Name); err != nil {
		return explorer.Principal{}, err
	}
	return p, nil
}

func (s *SQLIdentityStore) Groups(ctx context.Context, user *explorer.User) ([]explorer.Principal, error) {
	q := `SELECT p.id, p.name FROM group_members gm
		JOIN principals p ON p.kind = 'GROUP' AND p.name = gm.group_name
		WHERE gm.user_id = :user_id ORDER BY p.name`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": user.ID})
	if err != nil {
		return nil, fmt.Errorf("groups of %s: %w", user.Name, err)
	}
	defer r.Close()
	out := make([]explorer.Principal, 0)
	for r.Next() {
		p := explorer.Principal{Kind: explorer.PrincipalGroup}
		if err := r.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, r.Err()
}

func (s *SQLIdentityStore) Roles(ctx context.Context, user *explorer.User, res *explorer.Resource) ([]explorer.Principal, error) {
	q := `SELECT p.id, p.name, rm.scope, rm.expires_at FROM role_members rm
		JOIN principals p ON p.kind = 'ROLE' AND p.name = rm.role_name
		WHERE rm.user_id = :user_id ORDER BY p.name`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": user.ID})
	if err != nil {
		return nil, fmt.Errorf("roles of %s: %w", user.Name, err)
	}
	defer r.Close()
	now := s.now()
	seen := make(map[string]bool)
	out := make([]explorer.Principal, 0)
	for r.Next() {
		var (
			p          = explorer.Principal{Kind: explorer.PrincipalRole}
			scope      string
			expiresRaw any
		)
		if err := r.Scan(&p.ID, &p.Name, &scope, &expiresRaw); err != nil {
			return nil, err
		}
		expires, err := scanTime(expiresRaw)
		if err != nil {
			return nil, fmt.Errorf("role %s expiry: %w", p.Name, err)
		}
		grant := RoleGrant{Role: p.Name, Scope: scope, ExpiresAt: expires}
		if seen[p.ID] || !grant.Applies(res, now) {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, r.Err()
}
