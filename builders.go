package explorer

// Builders provide a fluent API for menus and access configuration.

// Entry returns a leaf menu entry bound to a rule.
func Entry(key, rule string) *MenuItem {
	return &MenuItem{Key: key, Rule: rule, Type: ItemEntry}
}

// LegacyEntry returns a leaf entry whose rule is given as a legacy rule string.
func LegacyEntry(key, legacyRules string) *MenuItem {
	return &MenuItem{Key: key, LegacyRules: legacyRules, Type: ItemEntry}
}

// Separator returns a separator item.
func Separator() *MenuItem {
	return &MenuItem{Type: ItemSeparator}
}

// Parent returns a sub menu. The children slice is never nil, so the item
// is a parent even without children.
func Parent(key, rule string, children ...*MenuItem) *MenuItem {
	if children == nil {
		children = []*MenuItem{}
	}
	return &MenuItem{Key: key, Rule: rule, Type: ItemEntry, Items: children}
}

func (m *MenuItem) WithURI(uri, target string) *MenuItem { m.URI = uri; m.Target = target; return m }
func (m *MenuItem) WithIcon(icon string) *MenuItem        { m.Icon = icon; return m }

// AccessBuilder builds an AccessConfig
type AccessBuilder struct {
	c AccessConfig
}

func NewAccessBuilder() *AccessBuilder { return &AccessBuilder{} }

func (b *AccessBuilder) Default(perms string) *AccessBuilder { b.c.Default = perms; return b }
func (b *AccessBuilder) User(name, perms string) *AccessBuilder {
	return b.Entry(string(PrincipalUser)+"."+name, perms)
}
func (b *AccessBuilder) Group(name, perms string) *AccessBuilder {
	return b.Entry(string(PrincipalGroup)+"."+name, perms)
}
func (b *AccessBuilder) Role(name, perms string) *AccessBuilder {
	return b.Entry(string(PrincipalRole)+"."+name, perms)
}
func (b *AccessBuilder) Entry(principal, perms string) *AccessBuilder {
	b.c.Entries = append(b.c.Entries, AccessEntryConfig{Principal: principal, Permissions: perms})
	return b
}
func (b *AccessBuilder) Build() AccessConfig { return b.c }

// MenuRuleBuilder builds a MenuRuleConfig
type MenuRuleBuilder struct {
	c MenuRuleConfig
}

func NewMenuRuleBuilder(name string) *MenuRuleBuilder {
	return &MenuRuleBuilder{c: MenuRuleConfig{Name: name}}
}

// When appends an item rule; item rules are tried in the order added.
func (b *MenuRuleBuilder) When(m Match, verdict string) *MenuRuleBuilder {
	b.c.Items = append(b.c.Items, ItemRuleConfig{Match: m, Verdict: verdict})
	return b
}

// WhenInactive appends an item rule producing an inactive verdict with reason.
func (b *MenuRuleBuilder) WhenInactive(m Match, reason string) *MenuRuleBuilder {
	b.c.Items = append(b.c.Items, ItemRuleConfig{Match: m, Verdict: "inactive", Reason: reason})
	return b
}

// Otherwise appends a rule that matches every selection.
func (b *MenuRuleBuilder) Otherwise(verdict string) *MenuRuleBuilder {
	return b.When(Match{}, verdict)
}

func (b *MenuRuleBuilder) Build() MenuRuleConfig { return b.c }
