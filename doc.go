// Package upwire implements the server side of the Unpoly frontend
// protocol: it reads the X-Up-* request headers (and _up_* request
// parameters) sent by the Unpoly JavaScript library, exposes them through
// typed accessors, and writes the accumulated response directives back as
// X-Up-* response headers or redirect query parameters.
//
// The core is framework-agnostic. All I/O goes through the Adapter
// interface, which binds the protocol to one request/response pair of the
// hosting framework. Ready-made integrations live in subpackages:
//
//   - uphttp: net/http middleware (also works with chi and any router
//     built on func(http.Handler) http.Handler middleware chains)
//   - upgin: Gin middleware
//
// Quick start with net/http:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
//	    up, _ := uphttp.FromContext(r.Context())
//	    up.SetTitle("Users | example.com")
//	    if r.Method == http.MethodPost {
//	        // Unpoly is only probing the form, don't commit anything.
//	        if len(up.Validate()) > 0 {
//	            renderForm(w, r)
//	            return
//	        }
//	        createUser(r)
//	        up.Emit("user:created", map[string]any{"name": r.FormValue("name")})
//	        up.Layer().Accept(nil)
//	    }
//	    renderForm(w, r)
//	})
//	http.ListenAndServe(":8080", uphttp.Middleware(mux))
//
// One Unpoly value exists per request cycle. Nothing is written to the
// response until Finalize runs (the middlewares take care of that), so an
// aborted request leaks no partial protocol state.
package upwire
