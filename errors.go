package explorer

import "errors"

var (
	// ErrInvalidPermissionString is returned for permission strings such as "+r+x" or "rw".
	ErrInvalidPermissionString = errors.New("invalid permission string")
	// ErrUnknownRole is returned when a ROLE principal key names no known role.
	ErrUnknownRole = errors.New("unknown role")
	// ErrPrincipalNotFound is returned by identity collaborators for missing users, groups or roles.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalConflict is returned when a store already holds a different principal under the same id.
	ErrPrincipalConflict = errors.New("principal conflict")
	// ErrUnknownRule is returned when a menu item references a rule that is not registered.
	ErrUnknownRule = errors.New("unknown menu rule")
	// ErrUnknownEvaluator is returned when an item rule names an unregistered evaluator.
	ErrUnknownEvaluator = errors.New("unknown rule evaluator")
	// ErrUnknownResourceType is returned when no explorer type settings exist for a type name.
	ErrUnknownResourceType = errors.New("unknown resource type")
	// ErrInvalidPrincipalKey is returned for access entry keys that are neither DEFAULT nor KIND.name.
	ErrInvalidPrincipalKey = errors.New("invalid principal key")
)
