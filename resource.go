package explorer

import "context"

// ResourceState is the offline state of a resource relative to its last published version.
type ResourceState string

const (
	StateUnchanged ResourceState = "unchanged"
	StateChanged   ResourceState = "changed"
	StateNew       ResourceState = "new"
	StateDeleted   ResourceState = "deleted"
)

// Lock describes who holds the lock on a resource. An empty Owner means unlocked.
type Lock struct {
	Owner     string `json:"owner,omitempty" yaml:"owner,omitempty"` // user id
	Inherited bool   `json:"inherited,omitempty" yaml:"inherited,omitempty"`
}

// LockState is a lock seen from the current user's point of view.
type LockState string

const (
	LockNone  LockState = "unlocked"
	LockSelf  LockState = "self"
	LockOther LockState = "other"
)

// Resource is the metadata of a repository resource the engine needs.
type Resource struct {
	ID       string        `json:"id" yaml:"id"`
	RootPath string        `json:"root_path" yaml:"root_path"`
	Type     string        `json:"type" yaml:"type"`
	Folder   bool          `json:"folder,omitempty" yaml:"folder,omitempty"`
	State    ResourceState `json:"state,omitempty" yaml:"state,omitempty"`
	Lock     Lock          `json:"lock,omitempty" yaml:"lock,omitempty"`
}

// LockStateFor returns the lock state of r as seen by user.
func (r *Resource) LockStateFor(user *User) LockState {
	if r.Lock.Owner == "" {
		return LockNone
	}
	if user != nil && r.Lock.Owner == user.ID {
		return LockSelf
	}
	return LockOther
}

// IsDeleted reports whether the resource is marked deleted.
func (r *Resource) IsDeleted() bool { return r.State == StateDeleted }

// Identity supplies group and role memberships and principal lookups.
// Implementations may block on I/O; the engine never holds its own locks
// while calling them.
type Identity interface {
	// LookupPrincipal resolves a configured principal name. It returns an
	// error wrapping ErrPrincipalNotFound (or ErrUnknownRole for roles)
	// when the principal does not exist.
	LookupPrincipal(ctx context.Context, kind PrincipalKind, name string) (Principal, error)
	// Groups returns the groups the user is a member of.
	Groups(ctx context.Context, user *User) ([]Principal, error)
	// Roles returns the roles of the user that apply to the resource.
	Roles(ctx context.Context, user *User, res *Resource) ([]Principal, error)
}
