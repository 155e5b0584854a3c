package explorer

import (
	"fmt"
	"strings"
)

// DefaultLegacyRules maps the legacy per-state rule strings to rule names.
// Each character group describes a column of the old state matrix with
// 'a' (active), 'i' (inactive) and 'd' (invisible).
var DefaultLegacyRules = map[string]string{
	"a a aaaa aaaa": RuleAlways,
	"d d dddd dddd": RuleNever,
	"d d aaai dddd": RuleStandard,
	"d d iiii aaai": RuleStandard,
	"d a aaaa dddd": RuleReadable,
	"d d aaaa aaaa": RulePublish,
}

// LegacyRuleTranslator normalises legacy rule strings into rule names.
type LegacyRuleTranslator struct {
	names map[string]string
}

// NewLegacyRuleTranslator starts from DefaultLegacyRules and adds extra.
func NewLegacyRuleTranslator(extra map[string]string) *LegacyRuleTranslator {
	t := &LegacyRuleTranslator{names: make(map[string]string, len(DefaultLegacyRules)+len(extra))}
	for k, v := range DefaultLegacyRules {
		t.names[normalizeLegacy(k)] = v
	}
	for k, v := range extra {
		t.names[normalizeLegacy(k)] = v
	}
	return t
}

// Translate returns the rule name for a legacy rule string.
func (t *LegacyRuleTranslator) Translate(legacy string) (string, error) {
	name, ok := t.names[normalizeLegacy(legacy)]
	if !ok {
		return "", fmt.Errorf("%w: no rule for legacy rules %q", ErrUnknownRule, legacy)
	}
	return name, nil
}

func normalizeLegacy(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
