package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/oarkflow/explorer"
	"github.com/oarkflow/explorer/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd := os.Args[1]; cmd {
	case "validate":
		err = handleValidate(os.Args[2:])
	case "convert":
		err = handleConvert(os.Args[2:])
	case "permissions":
		err = handlePermissions(ctx, os.Args[2:])
	case "menu":
		err = handleMenu(ctx, os.Args[2:])
	case "serve":
		err = handleServe(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("explorer-access - explorer permissions and context menu tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  explorer-access validate <config>                          - Validate configuration")
	fmt.Println("  explorer-access convert <input> <output>                   - Convert between yaml and json")
	fmt.Println("  explorer-access permissions <config> --user U --resource R - Resolve permissions")
	fmt.Println("  explorer-access menu <config> --user U --resource R...     - Render the context menu")
	fmt.Println("  explorer-access serve <config> [--listen :8080]            - Run the admin HTTP server")
	fmt.Println()
	fmt.Println("Resources are written type:path[:state[:lock-owner]], e.g. html:/sites/a.html:changed:bob")
	fmt.Println("Settings may also be given as EXPLORER_* environment variables.")
}

func handleValidate(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: explorer-access validate <config>")
	}
	cfg, err := explorer.NewConfigLoader().LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	items := 0
	for _, t := range cfg.Types {
		items += countItems(t.Menu)
	}
	fmt.Printf("Configuration %s is valid\n", fs.Arg(0))
	fmt.Printf("  Types:       %d\n", len(cfg.Types))
	fmt.Printf("  Rules:       %d (+%d built in)\n", len(cfg.Rules), len(explorer.DefaultRuleConfigs()))
	fmt.Printf("  Menu items:  %d (+%d multi selection)\n", items, countItems(cfg.MultiMenu))
	return nil
}

func countItems(items []*explorer.MenuItem) int {
	n := 0
	for _, it := range items {
		n++
		n += countItems(it.Items)
	}
	return n
}

func handleConvert(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: explorer-access convert <input> <output>")
	}
	cfg, err := explorer.NewConfigLoader().LoadFile(args[0])
	if err != nil {
		return err
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(args[1])) {
	case ".json":
		data, err = cfg.ToJSON()
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	default:
		return fmt.Errorf("unsupported output format: %s", args[1])
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Converted %s -> %s\n", args[0], args[1])
	return nil
}

// session is a workplace loaded from a config file plus its cleanups.
type session struct {
	w       *explorer.Workplace
	memory  *stores.MemoryIdentityStore
	cleanup []func()
}

func (s *session) Close() {
	s.w.Close()
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

type commonFlags struct {
	fs     *pflag.FlagSet
	user   *string
	groups *[]string
	roles  *[]string
}

func newCommonFlags(name string) *commonFlags {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	return &commonFlags{
		fs:     fs,
		user:   fs.StringP("user", "u", "", "user name; empty is the guest"),
		groups: fs.StringSlice("group", nil, "group memberships of --user (in-memory identity only)"),
		roles:  fs.StringSlice("role", nil, "roles of --user as name[@scope] (in-memory identity only)"),
	}
}

func openSession(ctx context.Context, c *commonFlags, v settingsSource) (*session, error) {
	if c.fs.NArg() < 1 {
		return nil, fmt.Errorf("missing config file")
	}
	st, err := v.load()
	if err != nil {
		return nil, err
	}
	log := st.logger()
	identity, mem, closeID, err := st.identity(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{memory: mem, cleanup: []func(){closeID}}
	w, err := explorer.NewWorkplace(identity, explorer.WithLogger(log))
	if err != nil {
		closeID()
		return nil, err
	}
	s.w = w
	cfg, err := explorer.NewConfigLoader().LoadFile(c.fs.Arg(0))
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := w.ApplyConfig(ctx, cfg); err != nil {
		log.Error("configuration applied with errors", "error", err)
	}
	stopRelay, err := st.relay(ctx, w.Bus(), log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.cleanup = append(s.cleanup, stopRelay)
	if err := s.seed(ctx, c); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// seed registers flag supplied memberships in the in-memory identity.
func (s *session) seed(ctx context.Context, c *commonFlags) error {
	if s.memory == nil || *c.user == "" {
		return nil
	}
	user := s.memory.AddUser(*c.user)
	for _, g := range *c.groups {
		if err := s.memory.AddGroupMember(ctx, user.ID, g); err != nil {
			return err
		}
	}
	for _, r := range *c.roles {
		name, scope, _ := strings.Cut(r, "@")
		if err := s.memory.AssignRole(ctx, user.ID, stores.RoleGrant{Role: name, Scope: scope}); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) user(name string) *explorer.User {
	if name == "" {
		name = s.w.GuestName()
	}
	return explorer.NewUser(name)
}

// parseResource reads type:path[:state[:lock-owner]].
func parseResource(s string) (*explorer.Resource, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid resource %q, want type:path[:state[:lock-owner]]", s)
	}
	res := &explorer.Resource{ID: parts[1], Type: parts[0], RootPath: parts[1], State: explorer.StateUnchanged}
	res.Folder = strings.HasSuffix(res.RootPath, "/")
	if len(parts) > 2 && parts[2] != "" {
		res.State = explorer.ResourceState(parts[2])
	}
	if len(parts) > 3 {
		res.Lock.Owner = parts[3]
	}
	return res, nil
}

func handlePermissions(ctx context.Context, args []string) error {
	c := newCommonFlags("permissions")
	resource := c.fs.StringP("resource", "r", "", "resource as type:path[:state[:lock-owner]]")
	v := newSettingsSource(c.fs)
	if err := c.fs.Parse(args); err != nil {
		return err
	}
	res, err := parseResource(*resource)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, c, v)
	if err != nil {
		return err
	}
	defer s.Close()
	user := s.user(*c.user)
	set := s.w.Permissions(ctx, user, res)
	fmt.Printf("%s on %s (%s): %s\n", user.Name, res.RootPath, res.Type, set)
	fmt.Printf("  editable: %v\n", set.Has(explorer.PermissionWrite))
	return nil
}

func handleMenu(ctx context.Context, args []string) error {
	c := newCommonFlags("menu")
	resources := c.fs.StringArrayP("resource", "r", nil, "selected resource, repeatable")
	asJSON := c.fs.Bool("json", false, "print the rendered menu as json")
	v := newSettingsSource(c.fs)
	if err := c.fs.Parse(args); err != nil {
		return err
	}
	sel := make([]*explorer.Resource, 0, len(*resources))
	for _, r := range *resources {
		res, err := parseResource(r)
		if err != nil {
			return err
		}
		sel = append(sel, res)
	}
	s, err := openSession(ctx, c, v)
	if err != nil {
		return err
	}
	defer s.Close()
	entries, err := s.w.RenderMenu(ctx, s.user(*c.user), sel...)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	printEntries(entries, "")
	return nil
}

func printEntries(entries []explorer.RenderedEntry, indent string) {
	for _, e := range entries {
		if e.Separator {
			fmt.Printf("%s----\n", indent)
			continue
		}
		line := fmt.Sprintf("%s%s [%s]", indent, e.Item.Key, e.Verdict.Mode)
		if e.Verdict.MessageKey != "" {
			line += " " + e.Verdict.MessageKey
		}
		fmt.Println(line)
		printEntries(e.Children, indent+"  ")
	}
}

func handleServe(ctx context.Context, args []string) error {
	c := newCommonFlags("serve")
	listen := c.fs.String("listen", ":8080", "admin server listen address")
	origins := c.fs.StringSlice("cors-origin", nil, "origins allowed to call the admin server from a browser")
	v := newSettingsSource(c.fs)
	if err := c.fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(ctx, c, v)
	if err != nil {
		return err
	}
	defer s.Close()
	addr := v.v.GetString("listen")
	if addr == "" {
		addr = *listen
	}
	return explorer.NewAdminHTTPServer(s.w, *origins...).ListenAndServe(ctx, addr)
}
