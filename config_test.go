package explorer

import (
	"errors"
	"strings"
	"testing"
)

const sampleYAML = `
version: 1
engine:
  guest_user: Anonymous
  permission_cache_size: 128
default_access:
  default: "+r"
rules:
  - name: folders-only
    items:
      - match: {folder: true, selection: single}
        verdict: active
      - match: {}
        verdict: inactive
        reason: explorer.reason.not_a_folder
legacy_rules:
  "x x xxxx xxxx": always
types:
  - name: html
    creatable: true
    page: pages
    order: 2
    access:
      default: "+r"
      entries:
        - principal: GROUP.authors
          permissions: "+r+w"
    menu:
      - key: edit
        rule: standard
      - type: separator
      - key: publish
        legacy_rules: "d d aaaa aaaa"
      - key: more
        items:
          - key: properties
            rule: readable
  - name: folder
    menu:
      - key: upload
        rule: folders-only
multi_menu:
  - key: delete
`

func TestConfigLoaderYAML(t *testing.T) {
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Engine.guestUser() != "Anonymous" || cfg.Engine.cacheConfig().MaxEntries != 128 {
		t.Fatalf("engine settings not loaded: %+v", cfg.Engine)
	}
	if len(cfg.Types) != 2 || len(cfg.Types[0].Menu) != 4 {
		t.Fatalf("unexpected types: %+v", cfg.Types)
	}
	if !cfg.Types[0].Menu[3].IsParent() || cfg.Types[0].Menu[1].Type != ItemSeparator {
		t.Fatalf("menu structure not preserved")
	}

	js, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	back, err := NewConfigLoader().LoadJSON(js)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if back.Types[0].Access.Entries[0].Principal != "GROUP.authors" {
		t.Fatalf("json export lost access entries")
	}
}

func TestConfigValidateAggregatesErrors(t *testing.T) {
	cfg := NewConfigBuilder().
		DefaultAccess(NewAccessBuilder().Default("+z").Build()).
		AddRule(MenuRuleConfig{Name: "broken", Items: []ItemRuleConfig{{Verdict: "nope"}}}).
		AddType(NewTypeConfig("html").
			Access(NewAccessBuilder().Entry("TEAM.x", "+r").Build()).
			Menu(Entry("edit", "missing"), LegacyEntry("old", "q q qqqq qqqq"))).
		AddType(NewTypeConfig("html")).
		Build()

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, target := range []error{ErrInvalidPermissionString, ErrInvalidPrincipalKey, ErrUnknownEvaluator, ErrUnknownRule} {
		if !errors.Is(err, target) {
			t.Fatalf("expected %v in %v", target, err)
		}
	}
	if !strings.Contains(err.Error(), "duplicate type html") {
		t.Fatalf("expected duplicate type error, got %v", err)
	}
}

func TestConfigBuilderYAMLRoundTrip(t *testing.T) {
	b := NewConfigBuilder().
		GuestUser("Guest").
		PermissionCacheSize(64).
		LegacyRule("x x xxxx xxxx", RuleAlways).
		AddType(NewTypeConfig("image").
			Icon("image.png").
			Creatable("media", 1).
			Access(NewAccessBuilder().Default("+r").Group("designers", "+r+w").Role("ELEMENT_AUTHOR", "+v").User("alice", "+c").Build()).
			Menu(Entry("edit", RuleStandard).WithURI("/edit", "_blank"), Separator(), Parent("more", "", Entry("info", RuleReadable).WithIcon("info.png")))).
		MultiMenu(Entry("delete", RuleMultiStandard))

	data, err := b.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	cfg, err := NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	tc := cfg.Types[0]
	if tc.Key != "fileicon.image" || !tc.Creatable || tc.Page != "media" || len(tc.Access.Entries) != 3 {
		t.Fatalf("type not preserved: %+v", tc)
	}
	if tc.Menu[0].URI != "/edit" || tc.Menu[2].Items[0].Icon != "info.png" {
		t.Fatalf("menu not preserved: %+v", tc.Menu)
	}
}

func TestConfigLoaderJSONWithComments(t *testing.T) {
	data := []byte(`{
		// resource types
		"types": [
			{"name": "html", "access": {"default": "+r"},},
		],
	}`)
	cfg, err := NewConfigLoader().LoadJSON(data)
	if err != nil {
		t.Fatalf("load jsonc: %v", err)
	}
	if len(cfg.Types) != 1 || cfg.Types[0].Access.Default != "+r" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
