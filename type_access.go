package explorer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/oarkflow/explorer/logger"
)

// AccessEntryConfig is one configured access entry. Principal is either
// DEFAULT or KIND.name, e.g. "GROUP.Users" or "ROLE.ELEMENT_AUTHOR".
type AccessEntryConfig struct {
	Principal   string `json:"principal" yaml:"principal"`
	Permissions string `json:"permissions" yaml:"permissions"`
}

// AccessConfig is the access configuration of one resource type.
type AccessConfig struct {
	Default string              `json:"default,omitempty" yaml:"default,omitempty"`
	Entries []AccessEntryConfig `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// IsEmpty reports whether nothing is configured.
func (c AccessConfig) IsEmpty() bool {
	return strings.TrimSpace(c.Default) == "" && len(c.Entries) == 0
}

// Validate checks principal keys and permission strings without looking
// principals up. All problems are returned joined.
func (c AccessConfig) Validate() error {
	var errs []error
	if c.Default != "" {
		if _, err := ParsePermissionString(c.Default); err != nil {
			errs = append(errs, err)
		}
	}
	for _, e := range c.Entries {
		if _, _, _, err := ParsePrincipalKey(e.Principal); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParsePermissionString(e.Permissions); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TypeAccess resolves the effective permissions of users on resources of
// one resource type.
type TypeAccess struct {
	resourceType string
	guestName    string
	identity     Identity
	logger       logger.Logger
	fallback     *TypeAccess
	cache        PermissionCache
	unsubscribe  func()

	mu         sync.Mutex
	cfg        AccessConfig
	generation uint64
	acl        *AccessControlList
	def        *PermissionSet
}

type typeAccessDeps struct {
	guestName string
	identity  Identity
	logger    logger.Logger
	fallback  *TypeAccess
	cache     PermissionCache
	bus       *FlushBus
}

func newTypeAccess(resourceType string, cfg AccessConfig, deps typeAccessDeps) *TypeAccess {
	ta := &TypeAccess{
		resourceType: resourceType,
		guestName:    deps.guestName,
		identity:     deps.identity,
		logger:       deps.logger,
		fallback:     deps.fallback,
		cache:        deps.cache,
		cfg:          cfg,
	}
	if ta.logger == nil {
		ta.logger = logger.Default()
	}
	if deps.bus != nil && ta.cache != nil {
		ta.unsubscribe = deps.bus.Subscribe(ta)
	}
	return ta
}

// ResourceType returns the type this access object belongs to.
func (ta *TypeAccess) ResourceType() string { return ta.resourceType }

// UsesDefault reports whether resolution is delegated to the process-wide default access.
func (ta *TypeAccess) UsesDefault() bool {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	return ta.cfg.IsEmpty() && ta.fallback != nil
}

// SetDefault replaces the DEFAULT permission string. Cached results are
// kept until the next flush.
func (ta *TypeAccess) SetDefault(permissions string) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.cfg.Default = permissions
	ta.invalidateLocked()
}

// SetEntry adds or replaces the entry for principal. Cached results are
// kept until the next flush.
func (ta *TypeAccess) SetEntry(principal, permissions string) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	entries := make([]AccessEntryConfig, 0, len(ta.cfg.Entries)+1)
	replaced := false
	for _, e := range ta.cfg.Entries {
		if strings.EqualFold(e.Principal, principal) {
			e.Permissions = permissions
			replaced = true
		}
		entries = append(entries, e)
	}
	if !replaced {
		entries = append(entries, AccessEntryConfig{Principal: principal, Permissions: permissions})
	}
	ta.cfg.Entries = entries
	ta.invalidateLocked()
}

func (ta *TypeAccess) invalidateLocked() {
	ta.generation++
	ta.acl = nil
	ta.def = nil
}

// Config returns a copy of the current access configuration.
func (ta *TypeAccess) Config() AccessConfig {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	cfg := ta.cfg
	cfg.Entries = append([]AccessEntryConfig(nil), ta.cfg.Entries...)
	return cfg
}

// ACL returns the built access control list, building it on first use.
func (ta *TypeAccess) ACL(ctx context.Context) *AccessControlList {
	acl, _ := ta.built(ctx)
	return acl
}

// built returns the base list and DEFAULT set. The identity collaborator
// is called without holding ta.mu; a concurrent reconfiguration discards
// the result of a build that started before it.
func (ta *TypeAccess) built(ctx context.Context) (*AccessControlList, *PermissionSet) {
	ta.mu.Lock()
	if ta.acl != nil {
		acl, def := ta.acl, ta.def
		ta.mu.Unlock()
		return acl, def
	}
	cfg := ta.cfg
	cfg.Entries = append([]AccessEntryConfig(nil), ta.cfg.Entries...)
	gen := ta.generation
	ta.mu.Unlock()

	acl, def := ta.build(ctx, cfg)

	ta.mu.Lock()
	if ta.generation == gen && ta.acl == nil {
		ta.acl, ta.def = acl, def
	}
	ta.mu.Unlock()
	return acl, def
}

func (ta *TypeAccess) build(ctx context.Context, cfg AccessConfig) (*AccessControlList, *PermissionSet) {
	acl := NewAccessControlList(ta.resourceType)
	var def *PermissionSet
	setDefault := func(s string) {
		set, err := ParsePermissionString(s)
		if err != nil {
			ta.logger.Error("invalid default permissions", "type", ta.resourceType, "error", err)
			return
		}
		def = &set
	}
	if strings.TrimSpace(cfg.Default) != "" {
		setDefault(cfg.Default)
	}
	for _, e := range cfg.Entries {
		kind, name, isDefault, err := ParsePrincipalKey(e.Principal)
		if err != nil {
			ta.logger.Error("invalid access entry", "type", ta.resourceType, "error", err)
			continue
		}
		if isDefault {
			setDefault(e.Permissions)
			continue
		}
		set, err := ParsePermissionString(e.Permissions)
		if err != nil {
			ta.logger.Error("invalid access entry permissions", "type", ta.resourceType, "principal", e.Principal, "error", err)
			continue
		}
		p, err := ta.identity.LookupPrincipal(ctx, kind, name)
		if err != nil {
			ta.logLookupFailure("skipping access entry", err, "type", ta.resourceType, "principal", e.Principal)
			continue
		}
		p.Kind = kind
		acl.Add(AccessControlEntry{ResourceType: ta.resourceType, Principal: &p, Permissions: set})
	}
	ta.logger.Debug("built access control list", "type", ta.resourceType, "entries", acl.Len(), "has_default", def != nil)
	return acl, def
}

// IsGuest reports whether user is the anonymous guest user.
func (ta *TypeAccess) IsGuest(user *User) bool {
	if user == nil {
		return true
	}
	return ta.guestName != "" && (user.Name == ta.guestName || user.ID == ta.guestName)
}

// Permissions returns the effective permission set of user on res.
//
// When the user is not the guest and a DEFAULT is configured, the DEFAULT
// permissions are granted to the user only if no entry covers the user
// id, one of its groups or one of its roles. All matching entries are
// unioned; no match yields the empty set.
func (ta *TypeAccess) Permissions(ctx context.Context, user *User, res *Resource) PermissionSet {
	if res == nil || user == nil {
		return PermissionSet{}
	}
	if ta.UsesDefault() {
		return ta.fallback.Permissions(ctx, user, res)
	}
	acl, def := ta.built(ctx)
	guest := ta.IsGuest(user)
	groups := ta.groups(ctx, user)
	roles := ta.roles(ctx, user, res)

	key := permissionCacheKey(res, user, guest, acl.HasUserEntries(), groups, roles)
	if ta.cache != nil {
		if set, ok := ta.cache.Get(key); ok {
			return set
		}
	}

	var extra *AccessControlEntry
	if !guest && def != nil && !acl.covers(user.ID, groups, roles) {
		principal := user.Principal
		principal.Kind = PrincipalUser
		extra = &AccessControlEntry{ResourceType: ta.resourceType, Principal: &principal, Permissions: *def}
	}
	set := acl.Overlay(extra).Permissions(user.ID, groups, roles)
	if ta.cache != nil {
		ta.cache.Set(key, set)
	}
	return set
}

func (ta *TypeAccess) groups(ctx context.Context, user *User) []Principal {
	groups, err := ta.identity.Groups(ctx, user)
	if err != nil {
		ta.logLookupFailure("reading groups failed", err, "user", user.Name)
		return nil
	}
	return groups
}

func (ta *TypeAccess) roles(ctx context.Context, user *User, res *Resource) []Principal {
	roles, err := ta.identity.Roles(ctx, user, res)
	if err != nil {
		ta.logLookupFailure("reading roles failed", err, "user", user.Name, "resource", res.RootPath)
		return nil
	}
	return roles
}

func (ta *TypeAccess) logLookupFailure(msg string, err error, keyvals ...any) {
	keyvals = append(keyvals, "error", err)
	if errors.Is(err, ErrPrincipalNotFound) {
		ta.logger.Info(msg, keyvals...)
		return
	}
	ta.logger.Error(msg, keyvals...)
}

// OnFlush clears the permission cache for events that invalidate permissions.
func (ta *TypeAccess) OnFlush(_ context.Context, event FlushEvent) {
	if !event.ClearsPermissions() || ta.cache == nil {
		return
	}
	ta.cache.Clear()
	ta.logger.Debug("permission cache flushed", "type", ta.resourceType, "event", string(event))
}

// Close unregisters the flush listener and releases the cache.
func (ta *TypeAccess) Close() {
	if ta.unsubscribe != nil {
		ta.unsubscribe()
	}
	if ta.cache != nil {
		ta.cache.Close()
	}
}
