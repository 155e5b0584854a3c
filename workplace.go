package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/oarkflow/explorer/logger"
)

// TypeSettings is the runtime view of one configured resource type.
type TypeSettings struct {
	Name      string
	Key       string
	Icon      string
	Creatable bool
	Page      string
	Order     float64
	Access    *TypeAccess
	Menu      *ContextMenu
}

// workplaceState is everything built from one configuration. It is
// replaced as a whole on reconfiguration and never mutated afterwards.
type workplaceState struct {
	cfg           *Config
	rules         *RuleRegistry
	defaultAccess *TypeAccess
	types         map[string]*TypeSettings
	multiMenu     *ContextMenu
}

func (s *workplaceState) close() {
	if s == nil {
		return
	}
	s.defaultAccess.Close()
	for _, t := range s.types {
		t.Access.Close()
	}
}

// Option configures a Workplace.
type Option func(*Workplace) error

// Workplace resolves explorer permissions and context menus for a
// configuration. It is safe for concurrent use.
type Workplace struct {
	identity     Identity
	logger       logger.Logger
	bus          *FlushBus
	cacheFactory CacheFactory
	guestName    string

	applyMu sync.Mutex
	state   atomic.Pointer[workplaceState]
}

// NewWorkplace returns a Workplace with an empty configuration. Call
// ApplyConfig to load types, rules and menus.
func NewWorkplace(identity Identity, opts ...Option) (*Workplace, error) {
	if identity == nil {
		return nil, errors.New("identity collaborator is required")
	}
	w := &Workplace{identity: identity, logger: logger.Default()}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	if w.bus == nil {
		w.bus = NewFlushBus()
	}
	if err := w.ApplyConfig(context.Background(), &Config{}); err != nil {
		return nil, err
	}
	return w, nil
}

// ApplyConfig builds rules, menus and access objects from cfg and swaps
// them in atomically. Configuration errors are logged and returned joined
// but never prevent the rest of the configuration from being applied;
// affected entries resolve to no permission or to invisible menu entries.
func (w *Workplace) ApplyConfig(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	var errs []error
	note := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cacheFactory := w.cacheFactory
	if cacheFactory == nil {
		cacheFactory = RistrettoCacheFactory(cfg.Engine.cacheConfig())
	}
	guest := w.guestName
	if guest == "" {
		guest = cfg.Engine.guestUser()
	}

	rules, err := BuildRuleRegistry(cfg.Rules)
	if err != nil {
		w.logger.Error("menu rule configuration", "error", err)
		note(err)
	}
	translator := NewLegacyRuleTranslator(cfg.LegacyRules)

	newAccess := func(name string, ac AccessConfig, fallback *TypeAccess) (*TypeAccess, error) {
		if err := ac.Validate(); err != nil {
			w.logger.Error("access configuration", "type", name, "error", err)
			note(fmt.Errorf("type %s access: %w", name, err))
		}
		cache, err := cacheFactory(name)
		if err != nil {
			return nil, err
		}
		return newTypeAccess(name, ac, typeAccessDeps{
			guestName: guest,
			identity:  w.identity,
			logger:    w.logger,
			fallback:  fallback,
			cache:     cache,
			bus:       w.bus,
		}), nil
	}

	st := &workplaceState{cfg: cfg, rules: rules, types: make(map[string]*TypeSettings, len(cfg.Types))}
	st.defaultAccess, err = newAccess("", cfg.DefaultAccess, nil)
	if err != nil {
		return err
	}
	for _, tc := range cfg.Types {
		if tc.Name == "" {
			note(errors.New("type without name"))
			continue
		}
		if old, dup := st.types[tc.Name]; dup {
			// last definition wins
			old.Access.Close()
			note(fmt.Errorf("duplicate type %s", tc.Name))
		}
		access, err := newAccess(tc.Name, tc.Access, st.defaultAccess)
		if err != nil {
			st.close()
			return err
		}
		menu, err := NewContextMenu(cloneMenu(tc.Menu, nil), rules, translator, w.logger)
		note(err)
		st.types[tc.Name] = &TypeSettings{
			Name:      tc.Name,
			Key:       tc.Key,
			Icon:      tc.Icon,
			Creatable: tc.Creatable,
			Page:      tc.Page,
			Order:     tc.Order,
			Access:    access,
			Menu:      menu,
		}
	}
	multi, err := NewContextMenu(cloneMenu(cfg.MultiMenu, nil), rules, translator, w.logger)
	note(err)
	st.multiMenu = multi

	old := w.state.Swap(st)
	old.close()
	w.logger.Info("explorer configuration applied", "types", len(st.types), "rules", len(rules.Names()))
	return errors.Join(errs...)
}

// cloneMenu copies the items so that building a menu never mutates the
// caller's configuration.
func cloneMenu(items []*MenuItem, parent *MenuItem) []*MenuItem {
	if items == nil {
		return nil
	}
	out := make([]*MenuItem, 0, len(items))
	for _, it := range items {
		cp := *it
		cp.Parent = parent
		cp.Items = cloneMenu(it.Items, &cp)
		out = append(out, &cp)
	}
	return out
}

func (w *Workplace) current() *workplaceState { return w.state.Load() }

// Config returns the configuration currently applied.
func (w *Workplace) Config() *Config { return w.current().cfg }

// Rules returns the rule registry of the current configuration.
func (w *Workplace) Rules() *RuleRegistry { return w.current().rules }

// GuestName returns the effective guest user name.
func (w *Workplace) GuestName() string {
	if w.guestName != "" {
		return w.guestName
	}
	return w.current().cfg.Engine.guestUser()
}

// Bus returns the flush bus the permission caches listen on.
func (w *Workplace) Bus() *FlushBus { return w.bus }

// TypeSettings returns the settings of a configured type.
func (w *Workplace) TypeSettings(name string) (*TypeSettings, error) {
	t, ok := w.current().types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, name)
	}
	return t, nil
}

// Types returns every configured type ordered by name.
func (w *Workplace) Types() []*TypeSettings {
	st := w.current()
	out := make([]*TypeSettings, 0, len(st.types))
	for _, t := range st.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewResourceTypes returns the creatable types ordered by page, then order
// value, then name.
func (w *Workplace) NewResourceTypes() []*TypeSettings {
	var out []*TypeSettings
	for _, t := range w.Types() {
		if t.Creatable {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// Access returns the access object of a type, or the default access for
// unknown types.
func (w *Workplace) Access(typeName string) *TypeAccess {
	st := w.current()
	if t, ok := st.types[typeName]; ok {
		return t.Access
	}
	return st.defaultAccess
}

// DefaultAccess returns the process-wide default access.
func (w *Workplace) DefaultAccess() *TypeAccess { return w.current().defaultAccess }

// Permissions returns the effective permissions of user on res.
func (w *Workplace) Permissions(ctx context.Context, user *User, res *Resource) PermissionSet {
	if res == nil {
		return PermissionSet{}
	}
	return w.Access(res.Type).Permissions(ctx, user, res)
}

// IsEditable reports whether user may write res.
func (w *Workplace) IsEditable(ctx context.Context, user *User, res *Resource) bool {
	return w.Permissions(ctx, user, res).Has(PermissionWrite)
}

// RenderMenu evaluates the context menu for a selection. A single resource
// uses the menu of its type; several resources use the multi selection menu.
func (w *Workplace) RenderMenu(ctx context.Context, user *User, resources ...*Resource) ([]RenderedEntry, error) {
	if len(resources) == 0 {
		return nil, errors.New("no resources selected")
	}
	st := w.current()
	menu := st.multiMenu
	if len(resources) == 1 {
		t, ok := st.types[resources[0].Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, resources[0].Type)
		}
		menu = t.Menu
	}
	rc := NewRuleContext(user, w, resources...)
	return menu.Render(ctx, rc), nil
}

// Flush publishes a flush event to every permission cache and relay.
func (w *Workplace) Flush(ctx context.Context, event FlushEvent) error {
	w.logger.Info("flush requested", "event", string(event))
	return w.bus.Publish(ctx, event)
}

// Close unregisters all permission caches from the flush bus. The
// Workplace must not be used afterwards.
func (w *Workplace) Close() {
	w.applyMu.Lock()
	defer w.applyMu.Unlock()
	w.state.Swap(nil).close()
}
