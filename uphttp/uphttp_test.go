package uphttp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/upwire"
	"github.com/sufield/upwire/uphttp"
)

func serve(t *testing.T, handler http.HandlerFunc, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	uphttp.Middleware(handler).ServeHTTP(w, r)
	return w
}

func TestMiddleware_PlainRequestWritesNothing(t *testing.T) {
	w := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}, nil)

	assert.Empty(t, w.Result().Cookies(), "no cookie to set or delete")
	for name := range w.Header() {
		assert.NotContains(t, name, "X-Up-")
	}
}

func TestMiddleware_PlainPostSetsMethodCookie(t *testing.T) {
	w := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, func(r *http.Request) {
		r.Method = http.MethodPost
	})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, upwire.MethodCookie, cookies[0].Name)
	assert.Equal(t, "POST", cookies[0].Value)
}

func TestMiddleware_DeletesStaleMethodCookie(t *testing.T) {
	w := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: upwire.MethodCookie, Value: "POST"})
	})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, upwire.MethodCookie, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestMiddleware_ExposesCoordinator(t *testing.T) {
	var target string
	serve(t, func(w http.ResponseWriter, r *http.Request) {
		up, ok := uphttp.FromContext(r.Context())
		require.True(t, ok)
		target = up.Target()
		w.Write([]byte("ok"))
	}, func(r *http.Request) {
		r.Header.Set("X-Up-Version", "3.7.1")
		r.Header.Set("X-Up-Target", ".content")
	})

	assert.Equal(t, ".content", target)
}

func TestMiddleware_WritesProtocolHeaders(t *testing.T) {
	w := serve(t, func(w http.ResponseWriter, r *http.Request) {
		up, _ := uphttp.FromRequest(r)
		up.SetTitle("Users")
		up.Layer().Accept(42)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}, func(r *http.Request) {
		r.Header.Set("X-Up-Version", "3.7.1")
	})

	assert.Equal(t, "42", w.Header().Get("X-Up-Accept-Layer"))
	assert.Equal(t, `"Users"`, w.Header().Get("X-Up-Title"))
	assert.Equal(t, "GET", w.Header().Get("X-Up-Method"))
}

func TestMiddleware_FinalizesWhenHandlerWritesNothing(t *testing.T) {
	w := serve(t, func(w http.ResponseWriter, r *http.Request) {
		up, _ := uphttp.FromRequest(r)
		up.SetTitle("Silent")
	}, func(r *http.Request) {
		r.Header.Set("X-Up-Version", "3.7.1")
	})

	assert.Equal(t, `"Silent"`, w.Header().Get("X-Up-Title"))
}

func TestMiddleware_RedirectCarriesState(t *testing.T) {
	w := serve(t, func(w http.ResponseWriter, r *http.Request) {
		up, _ := uphttp.FromRequest(r)
		up.Context()["k"] = "v"
		http.Redirect(w, r, "/users/7", http.StatusSeeOther)
	}, func(r *http.Request) {
		r.Header.Set("X-Up-Version", "3.7.1")
	})

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/users/7?_up_context_diff=%7B%22k%22%3A%22v%22%7D", w.Header().Get("Location"))
	assert.Empty(t, w.Header().Get("X-Up-Method"), "redirects carry state in the URI, not headers")
}

func TestMiddleware_CleansLocationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/search?q=go&_up_target=.content", nil)
	r.Header.Set("X-Up-Version", "3.7.1")
	w := httptest.NewRecorder()
	uphttp.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})).ServeHTTP(w, r)

	assert.Equal(t, "/search?q=go", w.Header().Get("X-Up-Location"))
}
