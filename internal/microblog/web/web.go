// Package web is the HTTP layer of the microblog demo: a chi router wired
// through the upwire middleware, server-rendered templates, and the
// protocol calls (validation probes, layer accepts, events, cache
// expiry) a real Unpoly application makes.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sufield/upwire/internal/microblog/store"
	"github.com/sufield/upwire/uphttp"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages are the templates rendered inside the shared layout.
var pages = []string{"landing", "timeline", "login", "register", "profile"}

// Handler serves the microblog's routes.
type Handler struct {
	store     *store.Store
	logger    *slog.Logger
	templates map[string]*template.Template
}

// New builds the handler and parses all templates.
func New(st *store.Store, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing template %q: %w", page, err)
		}
		templates[page] = tmpl
	}
	return &Handler{store: st, logger: logger, templates: templates}, nil
}

// Router assembles the route tree. The upwire middleware runs first so
// every inner middleware and handler can read protocol state.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(uphttp.Middleware)
	r.Use(h.metrics)
	r.Use(h.withUser)

	r.Get("/", h.index)
	r.Get("/login", h.loginForm)
	r.Post("/login", h.login)
	r.Get("/register", h.registerForm)
	r.Post("/register", h.register)
	r.Get("/logout", h.logout)
	r.Post("/posts", h.createPost)
	r.Get("/profile/{userID}", h.profile)

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// render writes a page template inside the layout.
func (h *Handler) render(w http.ResponseWriter, page string, data map[string]any) {
	h.renderStatus(w, http.StatusOK, page, data)
}

func (h *Handler) renderStatus(w http.ResponseWriter, status int, page string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	tmpl, ok := h.templates[page]
	if !ok {
		h.logger.Error("unknown template", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		h.logger.Error("rendering template", "page", page, "error", err)
	}
}

// sessionCookie identifies the login session.
const sessionCookie = "microblog_session"

// context key type (unexported) to avoid collisions with keys from other
// packages.
type userCtxKey struct{}

var userKey = userCtxKey{}

// withUser resolves the session cookie to an account and stores it in the
// request context. Anonymous requests pass through unchanged.
func (h *Handler) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			if user, err := h.store.UserBySession(cookie.Value); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// currentUser returns the logged-in account, if any.
func currentUser(r *http.Request) (store.User, bool) {
	user, ok := r.Context().Value(userKey).(store.User)
	return user, ok
}
