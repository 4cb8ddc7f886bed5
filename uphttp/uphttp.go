// Package uphttp integrates the upwire protocol with net/http. The
// Middleware works with anything built on standard middleware chains,
// including chi routers.
//
// Usage with net/http:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", handler)
//	http.ListenAndServe(":8080", uphttp.Middleware(mux))
//
// Usage with chi:
//
//	r := chi.NewRouter()
//	r.Use(uphttp.Middleware)
//	r.Get("/", handler)
//
// Handlers retrieve the per-request coordinator from the context:
//
//	up, ok := uphttp.FromContext(r.Context())
package uphttp

import (
	"net/http"

	"github.com/sufield/upwire"
)

// Adapter implements upwire.Adapter on top of an *http.Request and the
// finalizing ResponseWriter that Bind wraps around the response.
type Adapter struct {
	upwire.JSONCodec

	request  *http.Request
	response *ResponseWriter
}

// RequestHeaders returns the request headers, reduced to first values.
// net/http has already canonicalized the names ("x-up-target" arrives as
// "X-Up-Target"), which is the form the protocol prefix matches.
func (a *Adapter) RequestHeaders() map[string]string {
	headers := make(map[string]string, len(a.request.Header))
	for k, v := range a.request.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

// RequestParams returns the query parameters, reduced to first values.
func (a *Adapter) RequestParams() map[string]string {
	query := a.request.URL.Query()
	params := make(map[string]string, len(query))
	for k, v := range query {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

// RedirectURI returns the Location header when the captured status is a
// redirection, "" otherwise.
func (a *Adapter) RedirectURI() string {
	status := a.response.Status()
	if status < 300 || status > 399 {
		return ""
	}
	return a.response.Header().Get("Location")
}

// SetRedirectURI replaces the response's Location header.
func (a *Adapter) SetRedirectURI(uri string) {
	a.response.Header().Set("Location", uri)
}

// SetHeaders sets the given headers on the response.
func (a *Adapter) SetHeaders(headers map[string]string) {
	for k, v := range headers {
		a.response.Header().Set(k, v)
	}
}

// SetCookie sets the method cookie, or deletes it if the request carried
// one that is no longer needed.
func (a *Adapter) SetCookie(needsCookie bool) {
	if needsCookie {
		http.SetCookie(a.response, &http.Cookie{
			Name:  upwire.MethodCookie,
			Value: a.request.Method,
			Path:  "/",
		})
		return
	}
	if _, err := a.request.Cookie(upwire.MethodCookie); err == nil {
		http.SetCookie(a.response, &http.Cookie{
			Name:   upwire.MethodCookie,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
}

// Method returns the request method.
func (a *Adapter) Method() string { return a.request.Method }

// Location returns the request path including the query string.
func (a *Adapter) Location() string { return a.request.URL.RequestURI() }
