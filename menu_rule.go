package explorer

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// VisibilityMode is the tri-state outcome of a menu rule.
type VisibilityMode int

const (
	ModeActive VisibilityMode = iota
	ModeInactive
	ModeInvisible
)

func (m VisibilityMode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModeInactive:
		return "inactive"
	default:
		return "invisible"
	}
}

func (m VisibilityMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Verdict is the visibility of one menu entry plus an optional message key
// explaining why an entry is inactive.
type Verdict struct {
	Mode       VisibilityMode `json:"mode"`
	MessageKey string         `json:"message_key,omitempty"`
}

var (
	VerdictActive    = Verdict{Mode: ModeActive}
	VerdictInvisible = Verdict{Mode: ModeInvisible}
)

// Inactive returns an inactive verdict with the given reason key.
func Inactive(messageKey string) Verdict {
	return Verdict{Mode: ModeInactive, MessageKey: messageKey}
}

func (v Verdict) IsVisible() bool { return v.Mode != ModeInvisible }

// worse returns the more restrictive of two verdicts, keeping the first
// reason on ties.
func worse(a, b Verdict) Verdict {
	if b.Mode > a.Mode {
		return b
	}
	return a
}

// PermissionChecker resolves effective permissions. The Workplace implements it.
type PermissionChecker interface {
	Permissions(ctx context.Context, user *User, res *Resource) PermissionSet
}

// RuleContext is the selection an item rule is matched and evaluated against.
type RuleContext struct {
	User        *User
	Resources   []*Resource
	Permissions PermissionChecker
	// SubRules holds the matched item rules of every non-parent descendant
	// while a parent entry is evaluated.
	SubRules []ItemRule
	// SubVerdicts, when set, holds the verdict already computed for each
	// entry of SubRules during the current render.
	SubVerdicts []Verdict

	memo *permissionMemo
}

// permissionMemo keeps the permissions resolved during one request.
type permissionMemo struct {
	mu   sync.Mutex
	sets map[*Resource]PermissionSet
}

// NewRuleContext returns a context for the given selection.
func NewRuleContext(user *User, perms PermissionChecker, resources ...*Resource) *RuleContext {
	return &RuleContext{User: user, Resources: resources, Permissions: perms, memo: &permissionMemo{}}
}

// IsSingle reports whether exactly one resource is selected.
func (rc *RuleContext) IsSingle() bool { return len(rc.Resources) == 1 }

// PermissionsOf returns the effective permissions of the user on res,
// resolved at most once per request.
func (rc *RuleContext) PermissionsOf(ctx context.Context, res *Resource) PermissionSet {
	if rc.Permissions == nil || res == nil {
		return PermissionSet{}
	}
	if rc.memo == nil {
		return rc.Permissions.Permissions(ctx, rc.User, res)
	}
	rc.memo.mu.Lock()
	set, ok := rc.memo.sets[res]
	rc.memo.mu.Unlock()
	if ok {
		return set
	}
	set = rc.Permissions.Permissions(ctx, rc.User, res)
	rc.memo.mu.Lock()
	if rc.memo.sets == nil {
		rc.memo.sets = make(map[*Resource]PermissionSet)
	}
	rc.memo.sets[res] = set
	rc.memo.mu.Unlock()
	return set
}

// withSubRules returns a copy of rc, sharing its permission memo, with
// SubRules and SubVerdicts replaced.
func (rc *RuleContext) withSubRules(sub []ItemRule, verdicts []Verdict) *RuleContext {
	return &RuleContext{
		User:        rc.User,
		Resources:   rc.Resources,
		Permissions: rc.Permissions,
		SubRules:    sub,
		SubVerdicts: verdicts,
		memo:        rc.memo,
	}
}

// ItemRule is one predicate/verdict pair of a menu rule.
type ItemRule interface {
	// Matches reports whether the rule applies to the selection.
	Matches(ctx context.Context, rc *RuleContext) bool
	// Visibility computes the verdict once the rule has been selected.
	Visibility(ctx context.Context, rc *RuleContext) Verdict
}

// MenuRule is a named, ordered list of item rules. The first item rule
// whose predicate accepts the selection decides; later ones are not consulted.
type MenuRule struct {
	Name  string
	Items []ItemRule
}

// MatchingRule returns the first matching item rule or nil.
func (r *MenuRule) MatchingRule(ctx context.Context, rc *RuleContext) ItemRule {
	for _, item := range r.Items {
		if item.Matches(ctx, rc) {
			return item
		}
	}
	return nil
}

// Visibility evaluates the first matching item rule. No match is invisible.
func (r *MenuRule) Visibility(ctx context.Context, rc *RuleContext) Verdict {
	item := r.MatchingRule(ctx, rc)
	if item == nil {
		return VerdictInvisible
	}
	return item.Visibility(ctx, rc)
}

// RuleRegistry maps rule names to menu rules. It is filled at configuration
// load and only read afterwards.
type RuleRegistry struct {
	rules map[string]*MenuRule
}

func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{rules: make(map[string]*MenuRule)}
}

// Register adds or replaces a rule.
func (r *RuleRegistry) Register(rule *MenuRule) {
	r.rules[rule.Name] = rule
}

// Lookup returns the named rule or an error wrapping ErrUnknownRule.
func (r *RuleRegistry) Lookup(name string) (*MenuRule, error) {
	rule, ok := r.rules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	return rule, nil
}

// Names returns the registered rule names, sorted.
func (r *RuleRegistry) Names() []string {
	names := make([]string, 0, len(r.rules))
	for n := range r.rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
