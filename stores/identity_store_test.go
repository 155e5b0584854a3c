package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/explorer"
)

// identityStore is the write side shared by the memory and SQL stores.
type identityStore interface {
	explorer.Identity
	AddGroupMember(ctx context.Context, userID, group string) error
	RemoveGroupMember(ctx context.Context, userID, group string) error
	AssignRole(ctx context.Context, userID string, grant RoleGrant) error
	RevokeRole(ctx context.Context, userID, role string) error
	SetClock(now func() time.Time)
}

func newSQLStore(t *testing.T) (*SQLIdentityStore, *squealx.DB) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	require.NoError(t, Migrate(context.Background(), db))
	return NewSQLIdentityStore(db), db
}

func storesUnderTest(t *testing.T) map[string]identityStore {
	sqlStore, _ := newSQLStore(t)
	return map[string]identityStore{
		"memory": NewMemoryIdentityStore(),
		"sql":    sqlStore,
	}
}

func names(ps []explorer.Principal) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestIdentityStoreGroups(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			alice := explorer.NewUser("alice")
			require.NoError(t, store.AddGroupMember(ctx, alice.ID, "editors"))
			require.NoError(t, store.AddGroupMember(ctx, alice.ID, "authors"))
			require.NoError(t, store.AddGroupMember(ctx, alice.ID, "authors"))

			groups, err := store.Groups(ctx, alice)
			require.NoError(t, err)
			require.Equal(t, []string{"authors", "editors"}, names(groups))

			p, err := store.LookupPrincipal(ctx, explorer.PrincipalGroup, "authors")
			require.NoError(t, err)
			require.Equal(t, explorer.PrincipalGroup, p.Kind)
			require.Equal(t, "authors", p.ID)

			require.NoError(t, store.RemoveGroupMember(ctx, alice.ID, "editors"))
			groups, err = store.Groups(ctx, alice)
			require.NoError(t, err)
			require.Equal(t, []string{"authors"}, names(groups))

			empty, err := store.Groups(ctx, explorer.NewUser("bob"))
			require.NoError(t, err)
			require.Empty(t, empty)
		})
	}
}

func TestIdentityStoreLookupMissing(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LookupPrincipal(ctx, explorer.PrincipalGroup, "nobody")
			require.ErrorIs(t, err, explorer.ErrPrincipalNotFound)
			_, err = store.LookupPrincipal(ctx, explorer.PrincipalRole, "nobody")
			require.ErrorIs(t, err, explorer.ErrUnknownRole)
		})
	}
}

func TestIdentityStoreScopedRoles(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inside := &explorer.Resource{RootPath: "/sites/shop/index.html", Type: "html"}
	scopeRoot := &explorer.Resource{RootPath: "/sites/shop", Type: "folder", Folder: true}
	outside := &explorer.Resource{RootPath: "/sites/blog/index.html", Type: "html"}

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			store.SetClock(func() time.Time { return now })
			alice := explorer.NewUser("alice")
			require.NoError(t, store.AssignRole(ctx, alice.ID, RoleGrant{Role: "publisher", Scope: "/sites/shop/"}))
			require.NoError(t, store.AssignRole(ctx, alice.ID, RoleGrant{Role: "editor"}))
			require.NoError(t, store.AssignRole(ctx, alice.ID, RoleGrant{Role: "intern", ExpiresAt: now.Add(-time.Hour)}))
			require.NoError(t, store.AssignRole(ctx, alice.ID, RoleGrant{Role: "temp", ExpiresAt: now.Add(time.Hour)}))

			roles, err := store.Roles(ctx, alice, inside)
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"editor", "publisher", "temp"}, names(roles))

			roles, err = store.Roles(ctx, alice, scopeRoot)
			require.NoError(t, err)
			require.Contains(t, names(roles), "publisher")

			roles, err = store.Roles(ctx, alice, outside)
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"editor", "temp"}, names(roles))

			require.NoError(t, store.RevokeRole(ctx, alice.ID, "editor"))
			roles, err = store.Roles(ctx, alice, outside)
			require.NoError(t, err)
			require.Equal(t, []string{"temp"}, names(roles))
		})
	}
}

func TestIdentityStoreSameNameAcrossKinds(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			alice, bob := explorer.NewUser("alice"), explorer.NewUser("bob")
			require.NoError(t, store.AddGroupMember(ctx, alice.ID, "Editors"))
			require.NoError(t, store.AssignRole(ctx, bob.ID, RoleGrant{Role: "Editors"}))

			p, err := store.LookupPrincipal(ctx, explorer.PrincipalRole, "Editors")
			require.NoError(t, err)
			require.Equal(t, explorer.PrincipalRole, p.Kind)

			roles, err := store.Roles(ctx, bob, &explorer.Resource{RootPath: "/a.html"})
			require.NoError(t, err)
			require.Equal(t, []string{"Editors"}, names(roles))

			groups, err := store.Groups(ctx, bob)
			require.NoError(t, err)
			require.Empty(t, groups)
		})
	}
}

func TestSQLAddPrincipalConflict(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLStore(t)
	require.NoError(t, store.AddPrincipal(ctx, explorer.PrincipalGroup, "g1", "ops"))
	require.NoError(t, store.AddPrincipal(ctx, explorer.PrincipalGroup, "", "ops"))
	require.NoError(t, store.AddPrincipal(ctx, explorer.PrincipalGroup, "g1", "ops"))
	require.NoError(t, store.AddPrincipal(ctx, explorer.PrincipalRole, "g1", "ops"))

	require.ErrorIs(t, store.AddPrincipal(ctx, explorer.PrincipalGroup, "g1", "devs"), explorer.ErrPrincipalConflict)
	require.ErrorIs(t, store.AddPrincipal(ctx, explorer.PrincipalGroup, "g2", "ops"), explorer.ErrPrincipalConflict)

	// the default id of "g1" collides with the explicit id of "ops"
	require.ErrorIs(t, store.AddGroupMember(ctx, "alice", "g1"), explorer.ErrPrincipalConflict)
}

func TestScanTime(t *testing.T) {
	ts, err := scanTime(nil)
	require.NoError(t, err)
	require.True(t, ts.IsZero())

	ts, err = scanTime("2026-03-01T12:00:00Z")
	require.NoError(t, err)
	require.Equal(t, 2026, ts.Year())

	_, err = scanTime(42)
	require.Error(t, err)
}
