package explorer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the complete explorer configuration.
type Config struct {
	Version       uint16            `json:"version" yaml:"version"`
	Engine        EngineConfig      `json:"engine" yaml:"engine"`
	DefaultAccess AccessConfig      `json:"default_access" yaml:"default_access"`
	Rules         []MenuRuleConfig  `json:"rules,omitempty" yaml:"rules,omitempty"`
	LegacyRules   map[string]string `json:"legacy_rules,omitempty" yaml:"legacy_rules,omitempty"`
	Types         []TypeConfig      `json:"types" yaml:"types"`
	MultiMenu     []*MenuItem       `json:"multi_menu,omitempty" yaml:"multi_menu,omitempty"`
}

// EngineConfig holds engine wide settings.
type EngineConfig struct {
	GuestUser           string `json:"guest_user,omitempty" yaml:"guest_user,omitempty"`
	PermissionCacheSize int64  `json:"permission_cache_size,omitempty" yaml:"permission_cache_size,omitempty"`
	CacheNumCounters    int64  `json:"cache_num_counters,omitempty" yaml:"cache_num_counters,omitempty"`
	CacheBufferItems    int64  `json:"cache_buffer_items,omitempty" yaml:"cache_buffer_items,omitempty"`
}

// DefaultGuestUser is the name of the anonymous user unless configured otherwise.
const DefaultGuestUser = "Guest"

func (c EngineConfig) guestUser() string {
	if c.GuestUser == "" {
		return DefaultGuestUser
	}
	return c.GuestUser
}

func (c EngineConfig) cacheConfig() RistrettoCacheConfig {
	return RistrettoCacheConfig{
		MaxEntries:  c.PermissionCacheSize,
		NumCounters: c.CacheNumCounters,
		BufferItems: c.CacheBufferItems,
	}
}

// TypeConfig configures one explorer resource type.
type TypeConfig struct {
	Name      string       `json:"name" yaml:"name"`
	Key       string       `json:"key,omitempty" yaml:"key,omitempty"`
	Icon      string       `json:"icon,omitempty" yaml:"icon,omitempty"`
	Creatable bool         `json:"creatable,omitempty" yaml:"creatable,omitempty"`
	Page      string       `json:"page,omitempty" yaml:"page,omitempty"`
	Order     float64      `json:"order,omitempty" yaml:"order,omitempty"`
	Access    AccessConfig `json:"access,omitempty" yaml:"access,omitempty"`
	Menu      []*MenuItem  `json:"menu,omitempty" yaml:"menu,omitempty"`
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}
	return cfg, nil
}

// LoadJSON accepts JSON with comments and trailing commas.
func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("decode json config: %w", err)
	}
	return cfg, nil
}

// LoadFile picks the decoder from the file extension (.yaml, .yml, .json).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return l.LoadJSON(data)
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate reports every syntactic problem in the configuration: bad
// permission strings, bad principal keys, unknown evaluators, unknown rule
// names and untranslatable legacy rules. Principal existence is not
// checked here since it needs the identity collaborator.
func (c *Config) Validate() error {
	var errs []error
	if err := c.DefaultAccess.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("default access: %w", err))
	}
	reg, err := BuildRuleRegistry(c.Rules)
	if err != nil {
		errs = append(errs, err)
	}
	translator := NewLegacyRuleTranslator(c.LegacyRules)
	seen := make(map[string]bool, len(c.Types))
	for _, t := range c.Types {
		if t.Name == "" {
			errs = append(errs, errors.New("type without name"))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate type %s", t.Name))
		}
		seen[t.Name] = true
		if err := t.Access.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("type %s access: %w", t.Name, err))
		}
		if err := validateMenu(t.Menu, reg, translator); err != nil {
			errs = append(errs, fmt.Errorf("type %s menu: %w", t.Name, err))
		}
	}
	if err := validateMenu(c.MultiMenu, reg, translator); err != nil {
		errs = append(errs, fmt.Errorf("multi menu: %w", err))
	}
	return errors.Join(errs...)
}

func validateMenu(items []*MenuItem, reg *RuleRegistry, translator *LegacyRuleTranslator) error {
	var errs []error
	var walk func(list []*MenuItem)
	walk = func(list []*MenuItem) {
		for _, it := range list {
			if it.Type == ItemSeparator {
				continue
			}
			name := it.Rule
			if name == "" && it.LegacyRules != "" {
				n, err := translator.Translate(it.LegacyRules)
				if err != nil {
					errs = append(errs, fmt.Errorf("item %s: %w", it.Key, err))
				}
				name = n
			}
			if name != "" {
				if _, err := reg.Lookup(name); err != nil {
					errs = append(errs, fmt.Errorf("item %s: %w", it.Key, err))
				}
			}
			if it.Items != nil {
				walk(it.Items)
			}
		}
	}
	walk(items)
	return errors.Join(errs...)
}
