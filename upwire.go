package upwire

import (
	"net/url"
	"strings"
)

// Unpoly coordinates the protocol for one request/response cycle. The
// hosting framework constructs it with a concrete Adapter when the request
// arrives, handlers read and mutate protocol state through its accessors,
// and the framework calls Finalize exactly once when handling ends.
//
// Options, Layer, FailLayer and Cache are computed lazily and memoized for
// the lifetime of the cycle. An Unpoly value must not be shared across
// requests.
type Unpoly struct {
	adapter Adapter

	options   *Options
	layer     *Layer
	failLayer *Layer
	cache     *Cache
}

// New returns the protocol coordinator for one request cycle.
func New(adapter Adapter) *Unpoly {
	return &Unpoly{adapter: adapter}
}

// Adapter returns the adapter the coordinator was constructed with.
func (u *Unpoly) Adapter() Adapter { return u.adapter }

// Options returns the parsed protocol state, computing it from the
// adapter's request headers and parameters on first use. Headers carry the
// state on normal requests; parameters take precedence because they carry
// the state through redirects.
func (u *Unpoly) Options() *Options {
	if u.options != nil {
		return u.options
	}
	raw := map[string]string{}
	for k, v := range u.adapter.RequestHeaders() {
		if strings.HasPrefix(k, HeaderPrefix) {
			raw[headerToOption(k)] = v
		}
	}
	for k, v := range u.adapter.RequestParams() {
		if strings.HasPrefix(k, ParamPrefix) {
			raw[paramToOption(k)] = v
		}
	}
	u.options = ParseOptions(raw, u.adapter)
	return u.options
}

// Active reports whether the request was issued by Unpoly, i.e. whether
// the client advertised a protocol version (X-Up-Version). Requests that
// are not active get no protocol headers on their response.
func (u *Unpoly) Active() bool {
	return u.Options().Version != ""
}

// Version returns the client's protocol version (X-Up-Version), "" when
// the request was not issued by Unpoly.
func (u *Unpoly) Version() string { return u.Options().Version }

// Target returns the CSS selector the client wants rendered
// (X-Up-Target). If the server overrode it via SetTarget, the override is
// returned instead.
func (u *Unpoly) Target() string {
	if t := u.Options().serverTarget; t != "" {
		return t
	}
	return u.Options().Target
}

// SetTarget overrides the render target; the client will be told via the
// X-Up-Target response header.
func (u *Unpoly) SetTarget(target string) {
	u.Options().serverTarget = target
}

// Mode returns the requested layer mode (X-Up-Mode).
func (u *Unpoly) Mode() string { return u.Options().Mode }

// Context returns the layer context (X-Up-Context). Handlers may mutate
// the returned map; the changes reach the client as a diff.
func (u *Unpoly) Context() map[string]any { return u.Options().Context }

// Layer returns the primary layer view, memoized per cycle.
func (u *Unpoly) Layer() *Layer {
	if u.layer == nil {
		mode := u.Mode()
		if mode == "" {
			mode = "root"
		}
		u.layer = &Layer{up: u, mode: mode, context: u.Context()}
	}
	return u.layer
}

// Validate returns the names of the fields the client wants validated
// without committing the form (X-Up-Validate). Empty for normal requests.
func (u *Unpoly) Validate() []string {
	return strings.Fields(u.Options().Validate)
}

// FailTarget returns the render target for the failure case
// (X-Up-Fail-Target). A SetTarget override wins here too; the one override
// field serves both the primary and the failure target by protocol design.
func (u *Unpoly) FailTarget() string {
	if t := u.Options().serverTarget; t != "" {
		return t
	}
	return u.Options().FailTarget
}

// FailMode returns the layer mode for the failure case (X-Up-Fail-Mode).
func (u *Unpoly) FailMode() string { return u.Options().FailMode }

// FailContext returns the layer context for the failure case
// (X-Up-Fail-Context).
func (u *Unpoly) FailContext() map[string]any { return u.Options().FailContext }

// FailLayer returns the failure layer view, memoized per cycle.
func (u *Unpoly) FailLayer() *Layer {
	if u.failLayer == nil {
		mode := u.FailMode()
		if mode == "" {
			mode = "root"
		}
		u.failLayer = &Layer{up: u, mode: mode, context: u.FailContext()}
	}
	return u.failLayer
}

// SetTitle sets the document title the client should show (X-Up-Title).
func (u *Unpoly) SetTitle(title string) {
	u.Options().Title = title
}

// Emit queues an event for the client to emit after rendering
// (X-Up-Events). Events keep their emission order. eventType always
// becomes the event's "type" field, overriding any "type" key in options.
func (u *Unpoly) Emit(eventType string, options map[string]any) {
	event := make(map[string]any, len(options)+1)
	for k, v := range options {
		event[k] = v
	}
	event["type"] = eventType
	opts := u.Options()
	opts.Events = append(opts.Events, event)
}

// Cache returns the client cache controls, memoized per cycle.
func (u *Unpoly) Cache() *Cache {
	if u.cache == nil {
		u.cache = &Cache{up: u}
	}
	return u.cache
}

// NeedsCookie reports whether the response must set the MethodCookie: the
// request was a non-GET submission made without Unpoly, and a later Unpoly
// navigation needs to know that.
func (u *Unpoly) NeedsCookie() bool {
	return u.adapter.Method() != "GET" && !u.Active()
}

// Finalize writes the accumulated protocol state onto the outgoing
// response through the adapter. The framework integration calls it exactly
// once, after the handler ran and before the response headers are sent.
//
// For redirect responses the state is appended to the redirect URI as
// _up_* query parameters so it survives into the follow-up request; for
// everything else it is written as X-Up-* headers, together with the
// request's method and its location cleaned of _up_* parameters.
func (u *Unpoly) Finalize() {
	u.adapter.SetCookie(u.NeedsCookie())

	if !u.Active() {
		return
	}

	serialized := u.Options().Serialize(u.adapter)

	if redirect := u.adapter.RedirectURI(); redirect != "" {
		if diff, ok := serialized["context"]; ok {
			delete(serialized, "context")
			serialized["context_diff"] = diff
		}
		if len(serialized) > 0 {
			params := url.Values{}
			for k, v := range serialized {
				params.Set(optionToParam(k), v)
			}
			sep := "?"
			if strings.Contains(redirect, "?") {
				sep = "&"
			}
			redirect += sep + params.Encode()
		}
		u.adapter.SetRedirectURI(redirect)
		return
	}

	if loc := u.adapter.Location(); strings.Contains(loc, "?") && strings.Contains(loc, ParamPrefix) {
		serialized["location"] = stripProtocolParams(loc)
	}
	serialized["method"] = u.adapter.Method()

	headers := make(map[string]string, len(serialized))
	for k, v := range serialized {
		headers[optionToHeader(k)] = v
	}
	u.adapter.SetHeaders(headers)
}

// stripProtocolParams removes every _up_* parameter from a path+query
// location, preserving multi-valued parameters and dropping the "?" when
// nothing remains.
func stripProtocolParams(location string) string {
	path, query, _ := strings.Cut(location, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return path
	}
	for k := range values {
		if strings.HasPrefix(k, ParamPrefix) {
			delete(values, k)
		}
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}
