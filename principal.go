package explorer

import (
	"fmt"
	"strings"
)

// PrincipalKind tags a principal as user, group or role.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "USER"
	PrincipalGroup PrincipalKind = "GROUP"
	PrincipalRole  PrincipalKind = "ROLE"
)

// DefaultPrincipalKey is the access entry key of the synthetic DEFAULT entry.
const DefaultPrincipalKey = "DEFAULT"

// Principal is a user, group or role identity supplied by the identity collaborator.
type Principal struct {
	ID   string        `json:"id" yaml:"id"`
	Name string        `json:"name" yaml:"name"`
	Kind PrincipalKind `json:"kind" yaml:"kind"`
}

func (p Principal) String() string {
	return string(p.Kind) + "." + p.Name
}

// key identifies the principal within an access list. Ids are only unique
// per kind.
func (p Principal) key() string { return principalKey(p.Kind, p.ID) }

func principalKey(kind PrincipalKind, id string) string {
	return string(kind) + ":" + id
}

// User is the subject of a permission resolution or menu render.
type User struct {
	Principal
}

// NewUser returns a user principal whose id and name are both name.
func NewUser(name string) *User {
	return &User{Principal: Principal{ID: name, Name: name, Kind: PrincipalUser}}
}

// ParsePrincipalKey splits an access entry key such as "GROUP.Users" into
// kind and name. The DEFAULT key yields isDefault=true.
func ParsePrincipalKey(key string) (kind PrincipalKind, name string, isDefault bool, err error) {
	key = strings.TrimSpace(key)
	if strings.EqualFold(key, DefaultPrincipalKey) {
		return "", "", true, nil
	}
	idx := strings.Index(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false, fmt.Errorf("%w: %q", ErrInvalidPrincipalKey, key)
	}
	kind = PrincipalKind(strings.ToUpper(key[:idx]))
	switch kind {
	case PrincipalUser, PrincipalGroup, PrincipalRole:
	default:
		return "", "", false, fmt.Errorf("%w: %q", ErrInvalidPrincipalKey, key)
	}
	return kind, key[idx+1:], false, nil
}
