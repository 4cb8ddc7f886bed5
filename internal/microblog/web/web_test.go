package web

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/upwire/internal/microblog/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h, err := New(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return h, st
}

func postForm(h *Handler, path string, form url.Values, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, r)
	return w
}

func get(h *Handler, path string, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, r)
	return w
}

func login(t *testing.T, h *Handler, username, password string) *http.Cookie {
	t.Helper()
	w := postForm(h, "/login", url.Values{
		"username": {username},
		"password": {password},
	}, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLandingForAnonymous(t *testing.T) {
	h, _ := newTestHandler(t)
	w := get(h, "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome to microblog")
}

func TestRegisterAndLogin(t *testing.T) {
	h, st := newTestHandler(t)

	w := postForm(h, "/register", url.Values{
		"username": {"alice"},
		"password": {"secret"},
	}, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	_, err := st.UserByName("alice")
	require.NoError(t, err)

	cookie := login(t, h, "alice", "secret")
	w = get(h, "/", func(r *http.Request) { r.AddCookie(cookie) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Timeline")
}

func TestRegister_ValidationProbeCommitsNothing(t *testing.T) {
	h, st := newTestHandler(t)
	_, err := st.CreateUser("alice", "secret")
	require.NoError(t, err)

	w := postForm(h, "/register", url.Values{
		"username": {"alice"},
		"password": {"whatever"},
	}, func(r *http.Request) {
		r.Header.Set("X-Up-Version", "3.7.1")
		r.Header.Set("X-Up-Validate", "username")
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already taken")

	// The probe must not have tried to create the duplicate.
	_, err = st.Authenticate("alice", "whatever")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	h, st := newTestHandler(t)
	_, err := st.CreateUser("alice", "secret")
	require.NoError(t, err)

	w := postForm(h, "/register", url.Values{
		"username": {"alice"},
		"password": {"other"},
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "already taken")
}

func TestLogin_WrongPassword(t *testing.T) {
	h, st := newTestHandler(t)
	_, err := st.CreateUser("alice", "secret")
	require.NoError(t, err)

	w := postForm(h, "/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Wrong username or password")
}

func TestLogin_OverlayAccepted(t *testing.T) {
	h, st := newTestHandler(t)
	user, err := st.CreateUser("alice", "secret")
	require.NoError(t, err)

	w := postForm(h, "/login", url.Values{
		"username": {"alice"},
		"password": {"secret"},
	}, func(r *http.Request) {
		r.Header.Set("X-Up-Version", "3.7.1")
		r.Header.Set("X-Up-Mode", "modal")
	})

	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	assert.Contains(t, location, "_up_accept_layer=")
	assert.Contains(t, location, url.QueryEscape(user.ID))
}

func TestCreatePost(t *testing.T) {
	h, st := newTestHandler(t)
	_, err := st.CreateUser("alice", "secret")
	require.NoError(t, err)
	cookie := login(t, h, "alice", "secret")

	w := postForm(h, "/posts", url.Values{
		"content": {"hello world"},
	}, func(r *http.Request) {
		r.AddCookie(cookie)
		r.Header.Set("X-Up-Version", "3.7.1")
	})

	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "/?"), location)
	assert.Contains(t, location, "_up_expire_cache=")
	assert.Contains(t, location, "_up_events=")

	posts, err := st.RecentPosts(10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello world", posts[0].Content)
}

func TestCreatePost_RequiresLogin(t *testing.T) {
	h, _ := newTestHandler(t)
	w := postForm(h, "/posts", url.Values{"content": {"hi"}}, nil)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestProfile(t *testing.T) {
	h, st := newTestHandler(t)
	alice, err := st.CreateUser("alice", "secret")
	require.NoError(t, err)
	_, err = st.CreatePost(alice.ID, "my first post")
	require.NoError(t, err)

	w := get(h, "/profile/"+alice.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "my first post")

	w = get(h, "/profile/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	w := get(h, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "microblog_unpoly_requests_total")
}
