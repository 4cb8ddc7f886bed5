package upgin_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/upwire"
	"github.com/sufield/upwire/upgin"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(upgin.Middleware())
	return r
}

func TestMiddleware_ExposesCoordinator(t *testing.T) {
	r := newRouter()
	r.GET("/", func(c *gin.Context) {
		up, ok := upgin.FromContext(c)
		require.True(t, ok)
		up.SetTitle("Home")
		c.String(http.StatusOK, "hello")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Up-Version", "3.7.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, `"Home"`, w.Header().Get("X-Up-Title"))
	assert.Equal(t, "GET", w.Header().Get("X-Up-Method"))
}

func TestMiddleware_PlainPostSetsMethodCookie(t *testing.T) {
	r := newRouter()
	r.POST("/submit", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, upwire.MethodCookie, cookies[0].Name)
	assert.Equal(t, "POST", cookies[0].Value)
}

func TestMiddleware_PlainRequestGetsNoProtocolHeaders(t *testing.T) {
	r := newRouter()
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "hello")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	for name := range w.Header() {
		assert.NotContains(t, name, "X-Up-")
	}
}

func TestMiddleware_RedirectCarriesState(t *testing.T) {
	r := newRouter()
	r.POST("/users", func(c *gin.Context) {
		up, _ := upgin.FromContext(c)
		up.Context()["k"] = "v"
		c.Redirect(http.StatusSeeOther, "/users/7")
	})

	req := httptest.NewRequest(http.MethodPost, "/users", nil)
	req.Header.Set("X-Up-Version", "3.7.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/users/7?_up_context_diff=%7B%22k%22%3A%22v%22%7D", w.Header().Get("Location"))
}

func TestMiddleware_LayerAccept(t *testing.T) {
	r := newRouter()
	r.POST("/users", func(c *gin.Context) {
		up, _ := upgin.FromContext(c)
		up.Layer().Accept(map[string]any{"id": 7})
		c.String(http.StatusOK, "created")
	})

	req := httptest.NewRequest(http.MethodPost, "/users", nil)
	req.Header.Set("X-Up-Version", "3.7.1")
	req.Header.Set("X-Up-Mode", "modal")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, `{"id":7}`, w.Header().Get("X-Up-Accept-Layer"))
}
