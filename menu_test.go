package explorer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func testRegistry(t *testing.T, extra ...MenuRuleConfig) *RuleRegistry {
	t.Helper()
	extra = append(extra, MenuRuleConfig{Name: "disabled", Items: []ItemRuleConfig{{Verdict: "inactive", Reason: "test.disabled"}}})
	reg, err := BuildRuleRegistry(extra)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func keys(entries []RenderedEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Separator {
			out = append(out, "|")
			continue
		}
		out = append(out, e.Item.Key)
	}
	return out
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func render(t *testing.T, reg *RuleRegistry, items []*MenuItem, rc *RuleContext) []RenderedEntry {
	t.Helper()
	m, err := NewContextMenu(items, reg, nil, nil)
	if err != nil {
		t.Fatalf("new context menu: %v", err)
	}
	return m.Render(context.Background(), rc)
}

func TestMenuRuleFirstMatchWins(t *testing.T) {
	reg := testRegistry(t, NewMenuRuleBuilder("first").
		WhenInactive(Match{Selection: SelectMulti}, "v1").
		Otherwise("active").
		Build())
	rule, err := reg.Lookup("first")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	ctx := context.Background()

	multi := NewRuleContext(NewUser("alice"), nil, res("a"), res("b"))
	if v := rule.Visibility(ctx, multi); v.Mode != ModeInactive || v.MessageKey != "v1" {
		t.Fatalf("multi selection: expected V1, got %+v", v)
	}
	single := NewRuleContext(NewUser("alice"), nil, res("a"))
	if v := rule.Visibility(ctx, single); v != VerdictActive {
		t.Fatalf("single selection: expected V2, got %+v", v)
	}
}

func TestMenuRuleWithoutMatchIsInvisible(t *testing.T) {
	reg := testRegistry(t, NewMenuRuleBuilder("folders").When(Match{Folder: boolPtr(true)}, "active").Build())
	rule, _ := reg.Lookup("folders")
	rc := NewRuleContext(NewUser("alice"), nil, res("a"))
	if rule.MatchingRule(context.Background(), rc) != nil {
		t.Fatalf("expected no matching item rule")
	}
	if v := rule.Visibility(context.Background(), rc); v != VerdictInvisible {
		t.Fatalf("expected invisible, got %+v", v)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestSeparatorsBetweenVisibleEntriesOnly(t *testing.T) {
	reg := testRegistry(t)
	rc := NewRuleContext(NewUser("alice"), nil, res("a"))

	got := keys(render(t, reg, []*MenuItem{
		Entry("A", RuleNever), Separator(), Entry("B", RuleAlways), Separator(), Entry("C", RuleNever),
	}, rc))
	if !equalKeys(got, []string{"B"}) {
		t.Fatalf("expected [B], got %v", got)
	}

	got = keys(render(t, reg, []*MenuItem{
		Separator(), Entry("A", RuleAlways), Separator(), Separator(), Entry("B", RuleAlways), Separator(),
	}, rc))
	if !equalKeys(got, []string{"A", "|", "B"}) {
		t.Fatalf("expected [A | B], got %v", got)
	}
}

func TestInvisibleParentDoesNotArmSeparator(t *testing.T) {
	reg := testRegistry(t)
	rc := NewRuleContext(NewUser("alice"), nil, res("a"))

	got := keys(render(t, reg, []*MenuItem{
		Parent("P", "", Entry("X", RuleNever), Entry("Y", RuleNever)),
		Separator(),
		Entry("B", RuleAlways),
		Parent("Empty", ""),
	}, rc))
	if !equalKeys(got, []string{"B"}) {
		t.Fatalf("expected [B], got %v", got)
	}
}

func TestParentVerdictFromSubItems(t *testing.T) {
	reg := testRegistry(t)
	rc := NewRuleContext(NewUser("alice"), nil, res("a"))

	entries := render(t, reg, []*MenuItem{
		Parent("Active", "", Entry("X", RuleNever), Parent("Nested", "", Entry("Y", RuleAlways))),
		Parent("Inactive", "", Entry("Z", "disabled"), Entry("W", RuleNever)),
	}, rc)
	if len(entries) != 2 {
		t.Fatalf("expected two parents, got %v", keys(entries))
	}
	if entries[0].Verdict != VerdictActive {
		t.Fatalf("parent with an active descendant must be active, got %+v", entries[0].Verdict)
	}
	if !equalKeys(keys(entries[0].Children), []string{"Nested"}) {
		t.Fatalf("unexpected children %v", keys(entries[0].Children))
	}
	if entries[1].Verdict.Mode != ModeInactive {
		t.Fatalf("parent with only inactive descendants must be inactive, got %+v", entries[1].Verdict)
	}
}

func TestStandardRuleSingleSelection(t *testing.T) {
	reg := testRegistry(t)
	alice := NewUser("alice")
	writable := staticPermissions{"a": MustParsePermissionString("+r+w")}
	items := []*MenuItem{Entry("edit", RuleStandard)}

	if v := render(t, reg, items, NewRuleContext(alice, writable, res("a")))[0].Verdict; v != VerdictActive {
		t.Fatalf("expected active, got %+v", v)
	}

	locked := res("a")
	locked.Lock.Owner = "bob"
	if v := render(t, reg, items, NewRuleContext(alice, writable, locked))[0].Verdict; v.MessageKey != ReasonLockedByOther {
		t.Fatalf("expected locked by other, got %+v", v)
	}

	deleted := res("a")
	deleted.State = StateDeleted
	if v := render(t, reg, items, NewRuleContext(alice, writable, deleted))[0].Verdict; v.MessageKey != ReasonDeleted {
		t.Fatalf("expected deleted, got %+v", v)
	}

	if got := render(t, reg, items, NewRuleContext(alice, staticPermissions{}, res("a"))); len(got) != 0 {
		t.Fatalf("expected no entries without write permission, got %v", keys(got))
	}
}

func TestMultiStandardRequiresEveryResource(t *testing.T) {
	reg := testRegistry(t)
	alice := NewUser("alice")
	items := []*MenuItem{{Key: "delete"}}
	perms := staticPermissions{
		"a": MustParsePermissionString("+r+w"),
		"b": MustParsePermissionString("+r+w"),
		"c": MustParsePermissionString("+r"),
	}

	if v := render(t, reg, items, NewRuleContext(alice, perms, res("a"), res("b")))[0].Verdict; v != VerdictActive {
		t.Fatalf("expected active, got %+v", v)
	}
	if v := render(t, reg, items, NewRuleContext(alice, perms, res("a"), res("c")))[0].Verdict; v.MessageKey != ReasonNoPermission {
		t.Fatalf("expected no permission, got %+v", v)
	}
	deleted := res("b")
	deleted.State = StateDeleted
	if v := render(t, reg, items, NewRuleContext(alice, perms, deleted, res("c")))[0].Verdict; v.MessageKey != ReasonDeleted {
		t.Fatalf("expected first failing reason (deleted), got %+v", v)
	}
}

func TestPublishRule(t *testing.T) {
	reg := testRegistry(t)
	alice := NewUser("alice")
	perms := staticPermissions{"a": MustParsePermissionString("+r+d")}
	items := []*MenuItem{Entry("publish", RulePublish)}

	if v := render(t, reg, items, NewRuleContext(alice, perms, res("a")))[0].Verdict; v != VerdictActive {
		t.Fatalf("expected active, got %+v", v)
	}
	unchanged := res("a")
	unchanged.State = StateUnchanged
	if v := render(t, reg, items, NewRuleContext(alice, perms, unchanged))[0].Verdict; v.MessageKey != ReasonUnchanged {
		t.Fatalf("expected unchanged reason, got %+v", v)
	}
}

func TestLegacyRulesResolvedAtLoad(t *testing.T) {
	reg := testRegistry(t)
	item := LegacyEntry("edit", "D D  AAAI dddd")
	m, err := NewContextMenu([]*MenuItem{item}, reg, nil, nil)
	if err != nil {
		t.Fatalf("new context menu: %v", err)
	}
	if item.ResolvedRule != RuleStandard {
		t.Fatalf("expected %s, got %q", RuleStandard, item.ResolvedRule)
	}
	if len(m.Items()) != 1 {
		t.Fatalf("unexpected items")
	}

	custom := NewLegacyRuleTranslator(map[string]string{"x x xxxx xxxx": RuleAlways})
	if name, err := custom.Translate("X X XXXX XXXX"); err != nil || name != RuleAlways {
		t.Fatalf("custom legacy rule: %q %v", name, err)
	}
	if _, err := custom.Translate("q"); !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
}

func TestUnknownRuleRendersInvisibleAndLogsOnce(t *testing.T) {
	reg := testRegistry(t)
	log := &recordLogger{}
	items := []*MenuItem{Entry("ghost", "no-such-rule"), Entry("ok", RuleAlways), {Key: "norule"}}
	m, err := NewContextMenu(items, reg, nil, log)
	if !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
	rc := NewRuleContext(NewUser("alice"), nil, res("a"))
	for i := 0; i < 3; i++ {
		if got := keys(m.Render(context.Background(), rc)); !equalKeys(got, []string{"ok"}) {
			t.Fatalf("expected [ok], got %v", got)
		}
	}
	// one at load for ghost, one at render for ghost and one for norule
	if log.errorCount() != 3 {
		t.Fatalf("expected 3 logged errors, got %v", log.errors)
	}
}

func TestLeafVerdictsMemoizedPerRender(t *testing.T) {
	var calls int32
	RegisterEvaluator("counting", func(context.Context, *RuleContext, string) Verdict {
		atomic.AddInt32(&calls, 1)
		return VerdictActive
	})
	reg := testRegistry(t, MenuRuleConfig{Name: "counted", Items: []ItemRuleConfig{{Verdict: "counting"}}})
	items := []*MenuItem{Entry("a", "counted"), Entry("b", "counted"), Parent("p", "", Entry("c", "counted"))}
	m, err := NewContextMenu(items, reg, nil, nil)
	if err != nil {
		t.Fatalf("new context menu: %v", err)
	}
	rc := NewRuleContext(NewUser("alice"), nil, res("a"))
	if got := keys(m.Render(context.Background(), rc)); !equalKeys(got, []string{"a", "b", "p"}) {
		t.Fatalf("unexpected entries %v", got)
	}
	// subitems reuses the verdict memoized for c
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 evaluator call, got %d", n)
	}
}

func TestMatchPredicates(t *testing.T) {
	alice := NewUser("alice")
	r := &Resource{ID: "1", RootPath: "/sites/shop/index.html", Type: "html", State: StateNew, Lock: Lock{Owner: "alice"}}
	cases := []struct {
		name string
		m    Match
		want bool
	}{
		{"any", Match{}, true},
		{"single", Match{Selection: SelectSingle}, true},
		{"multi", Match{Selection: SelectMulti}, false},
		{"locked by self", Match{Lock: LockBySelf}, true},
		{"locked", Match{Lock: LockLocked}, true},
		{"unlocked", Match{Lock: LockUnlocked}, false},
		{"state", Match{States: []ResourceState{StateNew, StateChanged}}, true},
		{"other state", Match{States: []ResourceState{StateDeleted}}, false},
		{"type", Match{Types: []string{"image"}}, false},
		{"file", Match{Folder: boolPtr(false)}, true},
		{"path", Match{Paths: []string{"/sites/:site/*.html"}}, true},
		{"other path", Match{Paths: []string{"/sites/blog/*"}}, false},
	}
	rc := NewRuleContext(alice, nil, r)
	for _, c := range cases {
		if got := c.m.Accepts(rc); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
	if (Match{}).Accepts(NewRuleContext(alice, nil)) {
		t.Fatalf("empty selection must not match")
	}
}
