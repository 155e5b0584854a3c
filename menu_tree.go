package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oarkflow/explorer/logger"
)

// MenuItemType distinguishes entries from separators.
type MenuItemType string

const (
	ItemEntry     MenuItemType = "entry"
	ItemSeparator MenuItemType = "separator"
)

// MenuItem is a node of a context menu. An item with a non-nil Items slice
// is a parent, even when the slice is empty.
type MenuItem struct {
	Key         string       `json:"key" yaml:"key"`
	Rule        string       `json:"rule,omitempty" yaml:"rule,omitempty"`
	LegacyRules string       `json:"legacy_rules,omitempty" yaml:"legacy_rules,omitempty"`
	URI         string       `json:"uri,omitempty" yaml:"uri,omitempty"`
	Target      string       `json:"target,omitempty" yaml:"target,omitempty"`
	Icon        string       `json:"icon,omitempty" yaml:"icon,omitempty"`
	Type        MenuItemType `json:"type,omitempty" yaml:"type,omitempty"`
	Items       []*MenuItem  `json:"items,omitempty" yaml:"items,omitempty"`

	// Parent and ResolvedRule are set when the menu is built.
	Parent       *MenuItem `json:"-" yaml:"-"`
	ResolvedRule string    `json:"-" yaml:"-"`
}

func (m *MenuItem) IsParent() bool    { return m.Items != nil }
func (m *MenuItem) IsSubItem() bool   { return m.Parent != nil }
func (m *MenuItem) IsSeparator() bool { return m.Type == ItemSeparator }

// RenderedEntry is one emitted menu entry. Separators carry no verdict.
type RenderedEntry struct {
	Item      *MenuItem       `json:"item"`
	Verdict   Verdict         `json:"verdict"`
	Separator bool            `json:"separator,omitempty"`
	Children  []RenderedEntry `json:"children,omitempty"`
}

// ContextMenu is a configured menu tree bound to a rule registry. It is
// built once and only read while rendering.
type ContextMenu struct {
	items    []*MenuItem
	rules    *RuleRegistry
	logger   logger.Logger
	reported sync.Map // *MenuItem -> struct{}, configuration errors already logged at render time
}

// NewContextMenu links parents, resolves every item's rule name (legacy
// rule strings are translated here, once) and checks the names against
// the registry. Problems are logged and returned joined; the menu is
// usable regardless and renders unresolved items as invisible.
func NewContextMenu(items []*MenuItem, rules *RuleRegistry, translator *LegacyRuleTranslator, log logger.Logger) (*ContextMenu, error) {
	if log == nil {
		log = logger.Default()
	}
	if translator == nil {
		translator = NewLegacyRuleTranslator(nil)
	}
	m := &ContextMenu{items: items, rules: rules, logger: log}
	var errs []error
	var walk func(parent *MenuItem, list []*MenuItem)
	walk = func(parent *MenuItem, list []*MenuItem) {
		for _, it := range list {
			it.Parent = parent
			if it.Type == "" {
				it.Type = ItemEntry
			}
			if !it.IsSeparator() {
				if err := m.resolveRule(it, translator); err != nil {
					log.Error("menu item rule unresolved", "item", it.Key, "error", err)
					errs = append(errs, err)
				}
			}
			if it.IsParent() {
				walk(it, it.Items)
			}
		}
	}
	walk(nil, items)
	return m, errors.Join(errs...)
}

func (m *ContextMenu) resolveRule(it *MenuItem, translator *LegacyRuleTranslator) error {
	switch {
	case it.Rule != "":
		it.ResolvedRule = it.Rule
	case it.LegacyRules != "":
		name, err := translator.Translate(it.LegacyRules)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.Key, err)
		}
		it.ResolvedRule = name
	case it.IsParent():
		it.ResolvedRule = RuleSubmenu
	default:
		// multi selections fall back to multistandard at render time
		return nil
	}
	if _, err := m.rules.Lookup(it.ResolvedRule); err != nil {
		return fmt.Errorf("item %s: %w", it.Key, err)
	}
	return nil
}

// Items returns the top level items.
func (m *ContextMenu) Items() []*MenuItem { return m.items }

// renderState memoizes leaf rule results for one render call.
type renderState struct {
	rc      *RuleContext
	results map[string]ruleResult
}

type ruleResult struct {
	matched ItemRule
	verdict Verdict
}

// Render evaluates the whole menu for the selection in rc. Entries are
// emitted in configured order; invisible entries are omitted and a
// separator is only emitted between two visible entries of the same list.
func (m *ContextMenu) Render(ctx context.Context, rc *RuleContext) []RenderedEntry {
	st := &renderState{rc: rc, results: make(map[string]ruleResult)}
	return m.renderList(ctx, st, m.items)
}

func (m *ContextMenu) renderList(ctx context.Context, st *renderState, items []*MenuItem) []RenderedEntry {
	var out []RenderedEntry
	var pending *MenuItem
	emitted := false
	for _, it := range items {
		if it.IsSeparator() {
			if emitted {
				pending = it
			}
			continue
		}
		var entry RenderedEntry
		if it.IsParent() {
			v := m.parentVerdict(ctx, st, it)
			if !v.IsVisible() {
				continue
			}
			entry = RenderedEntry{Item: it, Verdict: v, Children: m.renderList(ctx, st, it.Items)}
		} else {
			v := m.leafResult(ctx, st, it).verdict
			if !v.IsVisible() {
				continue
			}
			entry = RenderedEntry{Item: it, Verdict: v}
		}
		if pending != nil {
			out = append(out, RenderedEntry{Item: pending, Separator: true})
			pending = nil
		}
		out = append(out, entry)
		emitted = true
	}
	return out
}

// parentVerdict hands the matched rules of all non-parent descendants to
// the parent's own rule.
func (m *ContextMenu) parentVerdict(ctx context.Context, st *renderState, it *MenuItem) Verdict {
	rule := m.lookup(it, it.ResolvedRule)
	if rule == nil {
		return VerdictInvisible
	}
	sub := &subResults{}
	m.collectSubRules(ctx, st, it.Items, sub)
	return rule.Visibility(ctx, st.rc.withSubRules(sub.rules, sub.verdicts))
}

// subResults pairs each matched descendant rule with its memoized verdict.
type subResults struct {
	rules    []ItemRule
	verdicts []Verdict
}

func (m *ContextMenu) collectSubRules(ctx context.Context, st *renderState, items []*MenuItem, acc *subResults) {
	for _, it := range items {
		switch {
		case it.IsSeparator():
		case it.IsParent():
			m.collectSubRules(ctx, st, it.Items, acc)
		default:
			if r := m.leafResult(ctx, st, it); r.matched != nil {
				acc.rules = append(acc.rules, r.matched)
				acc.verdicts = append(acc.verdicts, r.verdict)
			}
		}
	}
}

func (m *ContextMenu) leafRuleName(st *renderState, it *MenuItem) string {
	if it.Rule == "" && !st.rc.IsSingle() {
		return RuleMultiStandard
	}
	return it.ResolvedRule
}

func (m *ContextMenu) leafResult(ctx context.Context, st *renderState, it *MenuItem) ruleResult {
	name := m.leafRuleName(st, it)
	if res, ok := st.results[name]; ok && name != "" {
		return res
	}
	res := ruleResult{verdict: VerdictInvisible}
	if rule := m.lookup(it, name); rule != nil {
		if matched := rule.MatchingRule(ctx, st.rc); matched != nil {
			res = ruleResult{matched: matched, verdict: matched.Visibility(ctx, st.rc)}
		}
	}
	if name != "" {
		st.results[name] = res
	}
	return res
}

func (m *ContextMenu) lookup(it *MenuItem, name string) *MenuRule {
	if name == "" {
		m.reportOnce(it, fmt.Errorf("%w: item has no rule", ErrUnknownRule))
		return nil
	}
	rule, err := m.rules.Lookup(name)
	if err != nil {
		m.reportOnce(it, err)
		return nil
	}
	return rule
}

func (m *ContextMenu) reportOnce(it *MenuItem, err error) {
	if _, seen := m.reported.LoadOrStore(it, struct{}{}); seen {
		return
	}
	m.logger.Error("menu item rendered invisible", "item", it.Key, "error", err)
}
