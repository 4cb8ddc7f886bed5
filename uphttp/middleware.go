package uphttp

import (
	"context"
	"net/http"

	"github.com/sufield/upwire"
)

// ResponseWriter wraps the framework's writer so the protocol headers can
// still be set when the handler starts writing the response: the first
// WriteHeader or Write triggers upwire.Finalize before any header is
// flushed to the client.
type ResponseWriter struct {
	http.ResponseWriter

	up          *upwire.Unpoly
	status      int
	wroteHeader bool
	finalized   bool
}

// Status returns the captured status code, defaulting to 200 when the
// handler has not written one yet.
func (w *ResponseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// WriteHeader finalizes the protocol state, then writes the status.
func (w *ResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		// Let the underlying writer log the superfluous call.
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.status = code
	w.Finalize()
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// Write writes an implicit 200 header first if none was written.
func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher when the underlying writer does.
func (w *ResponseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for middleware
// compatibility (http.ResponseController).
func (w *ResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Finalize runs the protocol finalization pass once. Safe to call
// repeatedly; the middleware calls it after the handler in case nothing
// was written.
func (w *ResponseWriter) Finalize() {
	if w.finalized {
		return
	}
	w.finalized = true
	w.up.Finalize()
}

// Bind builds the per-request protocol coordinator and the finalizing
// writer the handler must write through. Most callers want Middleware
// instead; Bind exists for frameworks with non-standard handler shapes.
func Bind(w http.ResponseWriter, r *http.Request) (*upwire.Unpoly, *ResponseWriter) {
	ww := &ResponseWriter{ResponseWriter: w}
	up := upwire.New(&Adapter{request: r, response: ww})
	ww.up = up
	return up, ww
}

// Middleware makes every request protocol-aware: it parses the X-Up-*
// request state, exposes it to handlers via the request context, and
// writes the response headers back when the handler finishes.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up, ww := Bind(w, r)
		next.ServeHTTP(ww, r.WithContext(WithUnpoly(r.Context(), up)))
		ww.Finalize()
	})
}

// context key type (unexported) to avoid collisions with keys from other
// packages.
type unpolyCtxKey struct{}

var unpolyKey = unpolyCtxKey{}

// WithUnpoly attaches the protocol coordinator to the context. Typically
// called by Middleware; exposed for custom integrations.
func WithUnpoly(ctx context.Context, up *upwire.Unpoly) context.Context {
	return context.WithValue(ctx, unpolyKey, up)
}

// FromContext retrieves the protocol coordinator stored by Middleware.
// Returns (nil, false) when the request did not pass through it.
func FromContext(ctx context.Context) (*upwire.Unpoly, bool) {
	up, ok := ctx.Value(unpolyKey).(*upwire.Unpoly)
	return up, ok
}

// FromRequest is a convenience wrapper over FromContext.
func FromRequest(r *http.Request) (*upwire.Unpoly, bool) {
	return FromContext(r.Context())
}
