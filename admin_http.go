package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AdminHTTPServer exposes a Workplace over JSON for tooling and diagnostics.
type AdminHTTPServer struct {
	w      *Workplace
	router chi.Router
}

type userRequest struct {
	User string `json:"user"`
}

type permissionsRequest struct {
	userRequest
	Resource *Resource `json:"resource"`
}

type permissionsResponse struct {
	Type        string `json:"type"`
	Permissions string `json:"permissions"`
	Editable    bool   `json:"editable"`
	UsesDefault bool   `json:"uses_default"`
}

type menuRequest struct {
	userRequest
	Resources []*Resource `json:"resources"`
}

type menuEntryView struct {
	Key        string          `json:"key,omitempty"`
	Separator  bool            `json:"separator,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	MessageKey string          `json:"message_key,omitempty"`
	URI        string          `json:"uri,omitempty"`
	Children   []menuEntryView `json:"children,omitempty"`
}

type typeView struct {
	Name      string  `json:"name"`
	Key       string  `json:"key,omitempty"`
	Icon      string  `json:"icon,omitempty"`
	Creatable bool    `json:"creatable"`
	Page      string  `json:"page,omitempty"`
	Order     float64 `json:"order,omitempty"`
}

type flushRequest struct {
	Event FlushEvent `json:"event"`
}

// NewAdminHTTPServer builds the router. Routes:
//
//	GET  /types
//	GET  /types/new
//	POST /permissions
//	POST /menu
//	POST /flush
//
// Browser clients from allowedOrigins are admitted through CORS.
func NewAdminHTTPServer(w *Workplace, allowedOrigins ...string) *AdminHTTPServer {
	s := &AdminHTTPServer{w: w}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Get("/types", s.handleTypes(w.Types))
	r.Get("/types/new", s.handleTypes(w.NewResourceTypes))
	r.Post("/permissions", s.handlePermissions)
	r.Post("/menu", s.handleMenu)
	r.Post("/flush", s.handleFlush)
	s.router = r
	return s
}

func (s *AdminHTTPServer) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(rw, req)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *AdminHTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.w.logger.Info("admin server listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *AdminHTTPServer) handleTypes(list func() []*TypeSettings) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		types := list()
		out := make([]typeView, 0, len(types))
		for _, t := range types {
			out = append(out, typeView{Name: t.Name, Key: t.Key, Icon: t.Icon, Creatable: t.Creatable, Page: t.Page, Order: t.Order})
		}
		writeJSON(rw, http.StatusOK, out)
	}
}

func (s *AdminHTTPServer) handlePermissions(rw http.ResponseWriter, req *http.Request) {
	var body permissionsRequest
	if !decodeJSON(rw, req, &body) {
		return
	}
	if body.Resource == nil {
		writeError(rw, http.StatusBadRequest, errors.New("resource is required"))
		return
	}
	ctx := req.Context()
	user := s.user(ctx, body.User)
	access := s.w.Access(body.Resource.Type)
	set := access.Permissions(ctx, user, body.Resource)
	writeJSON(rw, http.StatusOK, permissionsResponse{
		Type:        body.Resource.Type,
		Permissions: set.String(),
		Editable:    set.Has(PermissionWrite),
		UsesDefault: access.UsesDefault(),
	})
}

func (s *AdminHTTPServer) handleMenu(rw http.ResponseWriter, req *http.Request) {
	var body menuRequest
	if !decodeJSON(rw, req, &body) {
		return
	}
	ctx := req.Context()
	entries, err := s.w.RenderMenu(ctx, s.user(ctx, body.User), body.Resources...)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownResourceType) {
			status = http.StatusNotFound
		}
		writeError(rw, status, err)
		return
	}
	writeJSON(rw, http.StatusOK, menuViews(entries))
}

func (s *AdminHTTPServer) handleFlush(rw http.ResponseWriter, req *http.Request) {
	var body flushRequest
	if !decodeJSON(rw, req, &body) {
		return
	}
	if body.Event == "" {
		body.Event = EventClearCaches
	}
	if err := s.w.Flush(req.Context(), body.Event); err != nil {
		writeError(rw, http.StatusBadGateway, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// user resolves a user name through the identity collaborator. Unknown
// names and the empty name act as plain users of that name, so the guest
// can be queried without being stored.
func (s *AdminHTTPServer) user(ctx context.Context, name string) *User {
	if name == "" {
		name = s.w.GuestName()
	}
	p, err := s.w.identity.LookupPrincipal(ctx, PrincipalUser, name)
	if err != nil {
		return NewUser(name)
	}
	return &User{Principal: p}
}

func menuViews(entries []RenderedEntry) []menuEntryView {
	out := make([]menuEntryView, 0, len(entries))
	for _, e := range entries {
		if e.Separator {
			out = append(out, menuEntryView{Separator: true})
			continue
		}
		out = append(out, menuEntryView{
			Key:        e.Item.Key,
			Mode:       e.Verdict.Mode.String(),
			MessageKey: e.Verdict.MessageKey,
			URI:        e.Item.URI,
			Children:   menuViews(e.Children),
		})
	}
	return out
}

func decodeJSON(rw http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}
