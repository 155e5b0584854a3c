package explorer

// AccessControlEntry associates a principal with a permission set for one
// resource type. A nil Principal marks the DEFAULT entry.
type AccessControlEntry struct {
	ResourceType string        `json:"resource_type"`
	Principal    *Principal    `json:"principal,omitempty"`
	Permissions  PermissionSet `json:"permissions"`
}

// IsDefault reports whether e is the synthetic DEFAULT entry.
func (e *AccessControlEntry) IsDefault() bool { return e.Principal == nil }

// AccessControlList is the ordered list of entries for one resource type.
// It holds at most one entry per principal; principals of different kinds
// never share an entry even when their ids are equal. Once published by a
// TypeAccess it is never mutated again; resolutions layer their own
// synthesized entry on top through an overlay.
type AccessControlList struct {
	resourceType   string
	entries        []*AccessControlEntry
	index          map[string]int // principal key -> position in entries
	hasUserEntries bool
}

func NewAccessControlList(resourceType string) *AccessControlList {
	return &AccessControlList{resourceType: resourceType, index: make(map[string]int)}
}

// Add inserts or replaces the entry for the entry's principal. A replaced
// entry keeps its position. DEFAULT entries are ignored here; they are held
// by the owning TypeAccess.
func (l *AccessControlList) Add(e AccessControlEntry) {
	if e.Principal == nil {
		return
	}
	if e.ResourceType == "" {
		e.ResourceType = l.resourceType
	}
	if e.Principal.Kind == PrincipalUser {
		l.hasUserEntries = true
	}
	entry := &e
	key := e.Principal.key()
	if pos, ok := l.index[key]; ok {
		l.entries[pos] = entry
		return
	}
	l.index[key] = len(l.entries)
	l.entries = append(l.entries, entry)
}

// Entry returns the entry for the principal.
func (l *AccessControlList) Entry(p Principal) (AccessControlEntry, bool) {
	pos, ok := l.index[p.key()]
	if !ok {
		return AccessControlEntry{}, false
	}
	return *l.entries[pos], true
}

// Entries returns a copy of the entries in list order.
func (l *AccessControlList) Entries() []AccessControlEntry {
	out := make([]AccessControlEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

func (l *AccessControlList) Len() int { return len(l.entries) }

func (l *AccessControlList) ResourceType() string { return l.resourceType }

// HasUserEntries reports whether any entry names a single user.
func (l *AccessControlList) HasUserEntries() bool { return l.hasUserEntries }

// covers reports whether any entry exists for the user id, one of the
// groups or one of the roles.
func (l *AccessControlList) covers(userID string, groups, roles []Principal) bool {
	if _, ok := l.index[principalKey(PrincipalUser, userID)]; ok {
		return true
	}
	for _, g := range groups {
		if _, ok := l.index[principalKey(PrincipalGroup, g.ID)]; ok {
			return true
		}
	}
	for _, r := range roles {
		if _, ok := l.index[principalKey(PrincipalRole, r.ID)]; ok {
			return true
		}
	}
	return false
}

// Overlay returns a resolution-local view of l with e layered on top. The
// base list is shared, not copied.
func (l *AccessControlList) Overlay(e *AccessControlEntry) *ACLOverlay {
	return &ACLOverlay{base: l, extra: e}
}

// ACLOverlay is a base list plus at most one additional entry.
type ACLOverlay struct {
	base  *AccessControlList
	extra *AccessControlEntry
}

// Permissions unions the permissions of every entry that applies to the
// user id, its groups or its roles. Entries do not override each other;
// denied bits accumulate like allowed bits.
func (o *ACLOverlay) Permissions(userID string, groups, roles []Principal) PermissionSet {
	var set PermissionSet
	apply := func(key string) {
		if pos, ok := o.base.index[key]; ok {
			set = set.Add(o.base.entries[pos].Permissions)
		}
		if o.extra != nil && o.extra.Principal != nil && o.extra.Principal.key() == key {
			set = set.Add(o.extra.Permissions)
		}
	}
	apply(principalKey(PrincipalUser, userID))
	for _, g := range groups {
		apply(principalKey(PrincipalGroup, g.ID))
	}
	for _, r := range roles {
		apply(principalKey(PrincipalRole, r.ID))
	}
	return set
}
