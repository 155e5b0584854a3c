package explorer

// ConfigBuilder provides a fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: &Config{Version: 1, LegacyRules: map[string]string{}}}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) GuestUser(name string) *ConfigBuilder {
	b.cfg.Engine.GuestUser = name
	return b
}

func (b *ConfigBuilder) PermissionCacheSize(n int64) *ConfigBuilder {
	b.cfg.Engine.PermissionCacheSize = n
	return b
}

func (b *ConfigBuilder) DefaultAccess(a AccessConfig) *ConfigBuilder {
	b.cfg.DefaultAccess = a
	return b
}

func (b *ConfigBuilder) AddRule(r MenuRuleConfig) *ConfigBuilder {
	b.cfg.Rules = append(b.cfg.Rules, r)
	return b
}

func (b *ConfigBuilder) LegacyRule(legacy, ruleName string) *ConfigBuilder {
	b.cfg.LegacyRules[legacy] = ruleName
	return b
}

func (b *ConfigBuilder) AddType(t *TypeConfigBuilder) *ConfigBuilder {
	b.cfg.Types = append(b.cfg.Types, t.Build())
	return b
}

func (b *ConfigBuilder) MultiMenu(items ...*MenuItem) *ConfigBuilder {
	b.cfg.MultiMenu = append(b.cfg.MultiMenu, items...)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

// TypeConfigBuilder builds a TypeConfig
type TypeConfigBuilder struct {
	t TypeConfig
}

func NewTypeConfig(name string) *TypeConfigBuilder {
	return &TypeConfigBuilder{t: TypeConfig{Name: name, Key: "fileicon." + name}}
}

func (t *TypeConfigBuilder) Icon(icon string) *TypeConfigBuilder {
	t.t.Icon = icon
	return t
}

// Creatable lists the type in the new resource dialog at page/order.
func (t *TypeConfigBuilder) Creatable(page string, order float64) *TypeConfigBuilder {
	t.t.Creatable = true
	t.t.Page = page
	t.t.Order = order
	return t
}

func (t *TypeConfigBuilder) Access(a AccessConfig) *TypeConfigBuilder {
	t.t.Access = a
	return t
}

func (t *TypeConfigBuilder) Menu(items ...*MenuItem) *TypeConfigBuilder {
	t.t.Menu = append(t.t.Menu, items...)
	return t
}

func (t *TypeConfigBuilder) Build() TypeConfig {
	return t.t
}
