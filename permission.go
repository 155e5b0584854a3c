package explorer

import (
	"fmt"
	"strings"
)

// Permission is a single permission bit.
type Permission uint8

const (
	PermissionRead Permission = 1 << iota
	PermissionWrite
	PermissionView
	PermissionControl
	PermissionDirectPublish
)

// permissionFlags lists the bits in their string order.
var permissionFlags = []struct {
	bit  Permission
	flag byte
}{
	{PermissionRead, 'r'},
	{PermissionWrite, 'w'},
	{PermissionView, 'v'},
	{PermissionControl, 'c'},
	{PermissionDirectPublish, 'd'},
}

// PermissionSet holds allowed and denied bits. A denied bit wins over an
// allowed one when the effective permissions are computed.
type PermissionSet struct {
	Allowed Permission `json:"allowed" yaml:"allowed"`
	Denied  Permission `json:"denied" yaml:"denied"`
}

// NewPermissionSet returns a set allowing the given bits.
func NewPermissionSet(allowed ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range allowed {
		s.Allowed |= p
	}
	return s
}

// ParsePermissionString parses the compact form used in configuration,
// e.g. "+r+w-v". The empty string is the empty set.
func ParsePermissionString(s string) (PermissionSet, error) {
	var set PermissionSet
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	for i := 0; i < len(s); i += 2 {
		if i+1 >= len(s) {
			return PermissionSet{}, fmt.Errorf("%w: %q", ErrInvalidPermissionString, s)
		}
		sign, flag := s[i], s[i+1]
		bit, ok := bitForFlag(flag)
		if !ok {
			return PermissionSet{}, fmt.Errorf("%w: unknown flag %q in %q", ErrInvalidPermissionString, flag, s)
		}
		switch sign {
		case '+':
			set.Allowed |= bit
		case '-':
			set.Denied |= bit
		default:
			return PermissionSet{}, fmt.Errorf("%w: expected +/- before %q in %q", ErrInvalidPermissionString, flag, s)
		}
	}
	return set, nil
}

// MustParsePermissionString is like ParsePermissionString but panics on error.
func MustParsePermissionString(s string) PermissionSet {
	set, err := ParsePermissionString(s)
	if err != nil {
		panic(err)
	}
	return set
}

func bitForFlag(flag byte) (Permission, bool) {
	for _, f := range permissionFlags {
		if f.flag == flag {
			return f.bit, true
		}
	}
	return 0, false
}

// Add unions other into s.
func (s PermissionSet) Add(other PermissionSet) PermissionSet {
	return PermissionSet{Allowed: s.Allowed | other.Allowed, Denied: s.Denied | other.Denied}
}

// Deny marks the given bits as denied.
func (s PermissionSet) Deny(p Permission) PermissionSet {
	s.Denied |= p
	return s
}

// Permissions returns the effective bits: allowed and not denied.
func (s PermissionSet) Permissions() Permission {
	return s.Allowed &^ s.Denied
}

// Has reports whether every bit in p is effectively granted.
func (s PermissionSet) Has(p Permission) bool {
	return s.Permissions()&p == p
}

func (s PermissionSet) IsEmpty() bool {
	return s.Permissions() == 0
}

// String renders the set in its compact form, allowed bits first.
func (s PermissionSet) String() string {
	var b strings.Builder
	for _, f := range permissionFlags {
		if s.Allowed&f.bit != 0 && s.Denied&f.bit == 0 {
			b.WriteByte('+')
			b.WriteByte(f.flag)
		}
	}
	for _, f := range permissionFlags {
		if s.Denied&f.bit != 0 {
			b.WriteByte('-')
			b.WriteByte(f.flag)
		}
	}
	return b.String()
}
