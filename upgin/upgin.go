// Package upgin integrates the upwire protocol with the Gin framework.
//
//	r := gin.New()
//	r.Use(upgin.Middleware())
//	r.GET("/", func(c *gin.Context) {
//	    up, _ := upgin.FromContext(c)
//	    up.SetTitle("Home")
//	    c.String(http.StatusOK, "hello")
//	})
package upgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sufield/upwire"
)

// contextKey is the gin context key the coordinator is stored under.
const contextKey = "upwire.unpoly"

// Adapter implements upwire.Adapter for one Gin request.
type Adapter struct {
	upwire.JSONCodec

	ctx      *gin.Context
	response *responseWriter
}

func (a *Adapter) RequestHeaders() map[string]string {
	headers := make(map[string]string, len(a.ctx.Request.Header))
	for k, v := range a.ctx.Request.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

func (a *Adapter) RequestParams() map[string]string {
	query := a.ctx.Request.URL.Query()
	params := make(map[string]string, len(query))
	for k, v := range query {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

func (a *Adapter) RedirectURI() string {
	status := a.response.Status()
	if status < 300 || status > 399 {
		return ""
	}
	return a.response.Header().Get("Location")
}

func (a *Adapter) SetRedirectURI(uri string) {
	a.response.Header().Set("Location", uri)
}

func (a *Adapter) SetHeaders(headers map[string]string) {
	for k, v := range headers {
		a.response.Header().Set(k, v)
	}
}

func (a *Adapter) SetCookie(needsCookie bool) {
	if needsCookie {
		http.SetCookie(a.response, &http.Cookie{
			Name:  upwire.MethodCookie,
			Value: a.ctx.Request.Method,
			Path:  "/",
		})
		return
	}
	if _, err := a.ctx.Request.Cookie(upwire.MethodCookie); err == nil {
		http.SetCookie(a.response, &http.Cookie{
			Name:   upwire.MethodCookie,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
}

func (a *Adapter) Method() string { return a.ctx.Request.Method }

func (a *Adapter) Location() string { return a.ctx.Request.URL.RequestURI() }

// responseWriter wraps gin's writer so finalization runs before the first
// byte (or the deferred status) reaches the client. Gin defers the actual
// header write until WriteHeaderNow or the first body write, so those are
// the interception points; gin's final flush bypasses replaced writers,
// which is why Middleware also finalizes after c.Next().
type responseWriter struct {
	gin.ResponseWriter

	up        *upwire.Unpoly
	finalized bool
}

func (w *responseWriter) finalize() {
	if w.finalized {
		return
	}
	w.finalized = true
	w.up.Finalize()
}

func (w *responseWriter) WriteHeaderNow() {
	w.finalize()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.finalize()
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.finalize()
	return w.ResponseWriter.WriteString(s)
}

// Middleware makes every request protocol-aware. Register it before any
// handler that reads or mutates protocol state.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ww := &responseWriter{ResponseWriter: c.Writer}
		up := upwire.New(&Adapter{ctx: c, response: ww})
		ww.up = up
		c.Writer = ww
		c.Set(contextKey, up)

		c.Next()

		// Covers handlers that never wrote a body (204s, bare redirects).
		ww.finalize()
	}
}

// FromContext retrieves the protocol coordinator stored by Middleware.
// Returns (nil, false) when the request did not pass through it.
func FromContext(c *gin.Context) (*upwire.Unpoly, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	up, ok := v.(*upwire.Unpoly)
	return up, ok
}
