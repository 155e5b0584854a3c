package explorer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oarkflow/explorer/utils"
)

// Built-in rule names.
const (
	RuleStandard      = "standard"
	RuleMultiStandard = "multistandard"
	RuleSubmenu       = "submenu"
	RuleAlways        = "always"
	RuleNever         = "never"
	RulePublish       = "publish"
	RuleReadable      = "readable"
)

// Message keys of inactive verdicts produced by the built-in evaluators.
const (
	ReasonInactive      = "explorer.reason.inactive"
	ReasonLockedByOther = "explorer.reason.locked_other"
	ReasonNoPermission  = "explorer.reason.no_permission"
	ReasonDeleted       = "explorer.reason.deleted"
	ReasonUnchanged     = "explorer.reason.unchanged"
)

// Selection restricts an item rule to single or multi selections.
type Selection string

const (
	SelectAny    Selection = ""
	SelectSingle Selection = "single"
	SelectMulti  Selection = "multi"
)

// LockMatch restricts an item rule by lock state.
type LockMatch string

const (
	LockAny      LockMatch = ""
	LockUnlocked LockMatch = "unlocked"
	LockBySelf   LockMatch = "self"
	LockByOther  LockMatch = "other"
	LockLocked   LockMatch = "locked"
)

// Match is the predicate of a configured item rule. Zero fields match
// anything; resource level fields must hold for every selected resource.
type Match struct {
	Selection Selection       `json:"selection,omitempty" yaml:"selection,omitempty"`
	Lock      LockMatch       `json:"lock,omitempty" yaml:"lock,omitempty"`
	States    []ResourceState `json:"states,omitempty" yaml:"states,omitempty"`
	Types     []string        `json:"types,omitempty" yaml:"types,omitempty"`
	Folder    *bool           `json:"folder,omitempty" yaml:"folder,omitempty"`
	Paths     []string        `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// Accepts reports whether the selection satisfies every condition of m.
func (m Match) Accepts(rc *RuleContext) bool {
	if len(rc.Resources) == 0 {
		return false
	}
	switch m.Selection {
	case SelectSingle:
		if !rc.IsSingle() {
			return false
		}
	case SelectMulti:
		if rc.IsSingle() {
			return false
		}
	}
	for _, res := range rc.Resources {
		if !m.acceptsResource(rc.User, res) {
			return false
		}
	}
	return true
}

func (m Match) acceptsResource(user *User, res *Resource) bool {
	if res == nil {
		return false
	}
	switch ls := res.LockStateFor(user); m.Lock {
	case LockUnlocked:
		if ls != LockNone {
			return false
		}
	case LockBySelf:
		if ls != LockSelf {
			return false
		}
	case LockByOther:
		if ls != LockOther {
			return false
		}
	case LockLocked:
		if ls == LockNone {
			return false
		}
	}
	if len(m.States) > 0 && !containsState(m.States, res.State) {
		return false
	}
	if len(m.Types) > 0 && !containsString(m.Types, res.Type) {
		return false
	}
	if m.Folder != nil && *m.Folder != res.Folder {
		return false
	}
	return utils.MatchAnyPath(res.RootPath, m.Paths)
}

func containsState(states []ResourceState, s ResourceState) bool {
	if s == "" {
		s = StateUnchanged
	}
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Evaluator computes the verdict of a selected item rule. reason is the
// message key configured on the item rule, if any.
type Evaluator func(ctx context.Context, rc *RuleContext, reason string) Verdict

var (
	evaluatorsMu sync.RWMutex
	evaluators   = map[string]Evaluator{
		"active":        func(context.Context, *RuleContext, string) Verdict { return VerdictActive },
		"invisible":     func(context.Context, *RuleContext, string) Verdict { return VerdictInvisible },
		"inactive":      evalInactive,
		"editable":      evalEditable,
		"readable":      evalReadable,
		"publishable":   evalPublishable,
		"multistandard": evalMultiStandard,
		"subitems":      evalSubItems,
	}
)

// RegisterEvaluator makes an evaluator available to configured item rules.
// It is meant to be called during program initialisation.
func RegisterEvaluator(name string, fn Evaluator) {
	evaluatorsMu.Lock()
	defer evaluatorsMu.Unlock()
	evaluators[strings.ToLower(name)] = fn
}

func lookupEvaluator(name string) (Evaluator, error) {
	evaluatorsMu.RLock()
	defer evaluatorsMu.RUnlock()
	fn, ok := evaluators[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvaluator, name)
	}
	return fn, nil
}

func evalInactive(_ context.Context, _ *RuleContext, reason string) Verdict {
	if reason == "" {
		reason = ReasonInactive
	}
	return Inactive(reason)
}

// evalEditable requires WRITE on every resource; resources locked by
// another user make the entry inactive.
func evalEditable(ctx context.Context, rc *RuleContext, _ string) Verdict {
	v := VerdictActive
	for _, res := range rc.Resources {
		if !rc.PermissionsOf(ctx, res).Has(PermissionWrite) {
			return VerdictInvisible
		}
		if res.LockStateFor(rc.User) == LockOther {
			v = worse(v, Inactive(ReasonLockedByOther))
		}
	}
	return v
}

func evalReadable(ctx context.Context, rc *RuleContext, _ string) Verdict {
	for _, res := range rc.Resources {
		if !rc.PermissionsOf(ctx, res).Has(PermissionRead) {
			return VerdictInvisible
		}
	}
	return VerdictActive
}

// evalPublishable requires DIRECT_PUBLISH on every resource and at least
// one resource with unpublished changes.
func evalPublishable(ctx context.Context, rc *RuleContext, _ string) Verdict {
	changed := false
	v := VerdictActive
	for _, res := range rc.Resources {
		if !rc.PermissionsOf(ctx, res).Has(PermissionDirectPublish) {
			return VerdictInvisible
		}
		if res.LockStateFor(rc.User) == LockOther {
			v = worse(v, Inactive(ReasonLockedByOther))
		}
		if res.State != "" && res.State != StateUnchanged {
			changed = true
		}
	}
	if !changed {
		v = worse(v, Inactive(ReasonUnchanged))
	}
	return v
}

// evalMultiStandard is active only if every selected resource is
// individually feasible: not deleted, writable, not locked by someone else.
// The reason of the first infeasible resource is reported.
func evalMultiStandard(ctx context.Context, rc *RuleContext, _ string) Verdict {
	for _, res := range rc.Resources {
		if reason := standardInfeasibility(ctx, rc, res); reason != "" {
			return Inactive(reason)
		}
	}
	return VerdictActive
}

func standardInfeasibility(ctx context.Context, rc *RuleContext, res *Resource) string {
	switch {
	case res.IsDeleted():
		return ReasonDeleted
	case !rc.PermissionsOf(ctx, res).Has(PermissionWrite):
		return ReasonNoPermission
	case res.LockStateFor(rc.User) == LockOther:
		return ReasonLockedByOther
	}
	return ""
}

// evalSubItems decides a parent entry from its descendants' matched rules:
// active if any descendant is active, inactive if any is inactive,
// invisible otherwise (including when there are none).
func evalSubItems(ctx context.Context, rc *RuleContext, _ string) Verdict {
	leafCtx := rc.withSubRules(nil, nil)
	memoized := len(rc.SubVerdicts) == len(rc.SubRules)
	best := VerdictInvisible
	for i, sub := range rc.SubRules {
		var v Verdict
		if memoized {
			v = rc.SubVerdicts[i]
		} else {
			v = sub.Visibility(ctx, leafCtx)
		}
		if v.Mode < best.Mode {
			best = v
		}
		if best.Mode == ModeActive {
			break
		}
	}
	return best
}

// ItemRuleConfig configures one item rule.
type ItemRuleConfig struct {
	Match   Match  `json:"match" yaml:"match"`
	Verdict string `json:"verdict" yaml:"verdict"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// MenuRuleConfig configures a named menu rule.
type MenuRuleConfig struct {
	Name  string           `json:"name" yaml:"name"`
	Items []ItemRuleConfig `json:"items" yaml:"items"`
}

// ConfiguredItemRule is an item rule built from configuration.
type ConfiguredItemRule struct {
	Match   Match
	Verdict string
	Reason  string
	eval    Evaluator
}

func (r *ConfiguredItemRule) Matches(_ context.Context, rc *RuleContext) bool {
	return r.Match.Accepts(rc)
}

func (r *ConfiguredItemRule) Visibility(ctx context.Context, rc *RuleContext) Verdict {
	return r.eval(ctx, rc, r.Reason)
}

func (r *ConfiguredItemRule) String() string {
	return fmt.Sprintf("%+v -> %s", r.Match, r.Verdict)
}

// Build compiles the configuration into a MenuRule.
func (c MenuRuleConfig) Build() (*MenuRule, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, errors.New("menu rule without name")
	}
	rule := &MenuRule{Name: c.Name, Items: make([]ItemRule, 0, len(c.Items))}
	for i, ic := range c.Items {
		eval, err := lookupEvaluator(ic.Verdict)
		if err != nil {
			return nil, fmt.Errorf("rule %s item %d: %w", c.Name, i, err)
		}
		rule.Items = append(rule.Items, &ConfiguredItemRule{Match: ic.Match, Verdict: ic.Verdict, Reason: ic.Reason, eval: eval})
	}
	return rule, nil
}

// DefaultRuleConfigs returns the built-in menu rules. Configured rules with
// the same name replace them.
func DefaultRuleConfigs() []MenuRuleConfig {
	return []MenuRuleConfig{
		{Name: RuleStandard, Items: []ItemRuleConfig{
			{Match: Match{Selection: SelectMulti}, Verdict: "multistandard"},
			{Match: Match{States: []ResourceState{StateDeleted}}, Verdict: "inactive", Reason: ReasonDeleted},
			{Verdict: "editable"},
		}},
		{Name: RuleMultiStandard, Items: []ItemRuleConfig{{Verdict: "multistandard"}}},
		{Name: RuleSubmenu, Items: []ItemRuleConfig{{Verdict: "subitems"}}},
		{Name: RuleAlways, Items: []ItemRuleConfig{{Verdict: "active"}}},
		{Name: RuleNever, Items: []ItemRuleConfig{{Verdict: "invisible"}}},
		{Name: RulePublish, Items: []ItemRuleConfig{{Verdict: "publishable"}}},
		{Name: RuleReadable, Items: []ItemRuleConfig{{Verdict: "readable"}}},
	}
}

// BuildRuleRegistry registers the built-in rules followed by cfgs. Rules
// that fail to build are skipped and reported in the returned error; the
// registry is usable either way.
func BuildRuleRegistry(cfgs []MenuRuleConfig) (*RuleRegistry, error) {
	reg := NewRuleRegistry()
	var errs []error
	for _, c := range append(DefaultRuleConfigs(), cfgs...) {
		rule, err := c.Build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reg.Register(rule)
	}
	return reg, errors.Join(errs...)
}
