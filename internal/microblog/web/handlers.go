package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sufield/upwire/internal/microblog/store"
	"github.com/sufield/upwire/uphttp"
)

const timelineLimit = 50

// postView pairs a post with its resolved author for the templates.
type postView struct {
	Post   store.Post
	Author string
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	up, _ := uphttp.FromRequest(r)

	user, ok := currentUser(r)
	if !ok {
		up.SetTitle("Welcome | microblog")
		h.render(w, "landing", nil)
		return
	}

	posts, err := h.store.RecentPosts(timelineLimit)
	if err != nil {
		h.logger.Error("loading timeline", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	up.SetTitle("Timeline | microblog")
	h.render(w, "timeline", map[string]any{
		"User":  user,
		"Posts": h.postViews(posts),
	})
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	up, _ := uphttp.FromRequest(r)
	up.SetTitle("Log in | microblog")
	h.render(w, "login", nil)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	up, _ := uphttp.FromRequest(r)

	user, err := h.store.Authenticate(r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		h.renderStatus(w, http.StatusUnprocessableEntity, "login", map[string]any{
			"Error":    "Wrong username or password.",
			"Username": r.FormValue("username"),
		})
		return
	}

	token, err := h.store.CreateSession(user.ID)
	if err != nil {
		h.logger.Error("creating session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})

	// When the login form runs in an overlay, close it and let the parent
	// layer react instead of navigating.
	if up.Layer().IsOverlay() {
		up.Layer().Accept(map[string]any{"userId": user.ID})
		up.Emit("user:authenticated", map[string]any{"username": user.Username})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) registerForm(w http.ResponseWriter, r *http.Request) {
	up, _ := uphttp.FromRequest(r)
	up.SetTitle("Register | microblog")
	h.render(w, "register", nil)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	up, _ := uphttp.FromRequest(r)
	username := r.FormValue("username")

	// Unpoly probes the form while the user types; report availability
	// without committing anything.
	if len(up.Validate()) > 0 {
		data := map[string]any{"Username": username}
		if _, err := h.store.UserByName(username); err == nil {
			data["Error"] = "That username is already taken."
		}
		h.render(w, "register", data)
		return
	}

	user, err := h.store.CreateUser(username, r.FormValue("password"))
	if err != nil {
		message := "Could not register."
		if errors.Is(err, store.ErrUsernameTaken) {
			message = "That username is already taken."
		}
		h.renderStatus(w, http.StatusUnprocessableEntity, "register", map[string]any{
			"Error":    message,
			"Username": username,
		})
		return
	}

	h.logger.Info("user registered", "username", user.Username)
	up.Emit("user:created", map[string]any{"username": user.Username})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err := h.store.DeleteSession(cookie.Value); err != nil {
			h.logger.Error("deleting session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	up, _ := uphttp.FromRequest(r)
	post, err := h.store.CreatePost(user.ID, r.FormValue("content"))
	if err != nil {
		posts, loadErr := h.store.RecentPosts(timelineLimit)
		if loadErr != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.renderStatus(w, http.StatusUnprocessableEntity, "timeline", map[string]any{
			"User":  user,
			"Posts": h.postViews(posts),
			"Error": "Posts must have 1-280 characters.",
		})
		return
	}

	up.Emit("post:created", map[string]any{"id": post.ID})
	// The timeline changed for everyone; tell the client to drop its
	// cached copies.
	up.Cache().Expire("/*")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	up, _ := uphttp.FromRequest(r)

	user, err := h.store.UserByID(chi.URLParam(r, "userID"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("loading profile", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	posts, err := h.store.PostsByUser(user.ID, timelineLimit)
	if err != nil {
		h.logger.Error("loading profile posts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	viewer, _ := currentUser(r)
	up.SetTitle(user.Username + " | microblog")
	h.render(w, "profile", map[string]any{
		"User":        viewer,
		"ProfileUser": user,
		"Posts":       h.postViews(posts),
	})
}

// postViews resolves author names, caching lookups per request.
func (h *Handler) postViews(posts []store.Post) []postView {
	authors := map[string]string{}
	views := make([]postView, 0, len(posts))
	for _, post := range posts {
		name, ok := authors[post.UserID]
		if !ok {
			if user, err := h.store.UserByID(post.UserID); err == nil {
				name = user.Username
			}
			authors[post.UserID] = name
		}
		views = append(views, postView{Post: post, Author: name})
	}
	return views
}
