package stores

import (
	"fmt"
	"strings"
	"time"

	"github.com/oarkflow/date"

	"github.com/oarkflow/explorer"
	"github.com/oarkflow/explorer/utils"
)

func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return date.Parse(s)
}

// scanTime converts a driver value into a time. Drivers differ: sqlite
// returns strings, postgres returns time.Time.
func scanTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return parseFlexibleTime(v)
	case []byte:
		if len(v) == 0 {
			return time.Time{}, nil
		}
		return parseFlexibleTime(string(v))
	}
	return time.Time{}, fmt.Errorf("unsupported time value %T", raw)
}

// RoleGrant is a role membership limited to the resources below Scope
// until ExpiresAt. An empty scope covers the whole repository; a zero
// ExpiresAt never expires.
type RoleGrant struct {
	Role      string    `json:"role"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Applies reports whether the grant is in effect for res at now.
func (g RoleGrant) Applies(res *explorer.Resource, now time.Time) bool {
	if !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt) {
		return false
	}
	return scopeCovers(g.Scope, res)
}

func scopeCovers(scope string, res *explorer.Resource) bool {
	scope = strings.TrimRight(strings.TrimSpace(scope), "/")
	if scope == "" {
		return true
	}
	if res == nil {
		return false
	}
	return utils.MatchPath(res.RootPath, scope+"/*")
}

func notFound(kind explorer.PrincipalKind, name string) error {
	if kind == explorer.PrincipalRole {
		return fmt.Errorf("%w: %s", explorer.ErrUnknownRole, name)
	}
	return fmt.Errorf("%w: %s.%s", explorer.ErrPrincipalNotFound, kind, name)
}
