package upwire

import "reflect"

// Payload is a tri-state protocol value: unset, set to nil, or set to a
// value. The distinction matters for accept/dismiss-layer directives where
// "never touched" must not be sent but "accepted with a null payload" must
// serialize as a literal JSON null.
//
// The zero Payload is unset.
type Payload struct {
	value   any
	defined bool
}

// Set marks the payload as explicitly set, possibly to nil.
func (p *Payload) Set(value any) {
	p.value = value
	p.defined = true
}

// Get returns the payload value and whether it was ever set.
func (p Payload) Get() (any, bool) {
	return p.value, p.defined
}

// Options is the negotiated protocol state for one request/response cycle:
// the fields the client sent, the fields the server sets during handling,
// and the bookkeeping needed to diff the layer context at the end.
//
// An Options value is built once per cycle by ParseOptions and mutated
// through the Unpoly accessors; handlers rarely touch it directly.
type Options struct {
	// Request-supplied fields.
	Version     string
	Target      string
	Mode        string
	Context     map[string]any
	FailTarget  string
	FailMode    string
	FailContext map[string]any
	Validate    string // space-separated field names

	// Response fields set by the server during handling.
	Title        string
	ExpireCache  string
	AcceptLayer  Payload
	DismissLayer Payload
	Events       []map[string]any

	// serverTarget overrides Target during serialization when the server
	// decides to render a different fragment than requested.
	serverTarget string

	// initialContext is a deep snapshot of Context taken at construction,
	// used only to compute the context diff. Never exposed for mutation.
	initialContext map[string]any
}

// structuredOptions are the raw option keys whose values arrive as encoded
// structured data rather than plain strings.
var structuredOptions = []string{
	"events", "context", "context_diff", "fail_context",
	"dismiss_layer", "accept_layer", "title",
}

// ParseOptions builds an Options record from the merged raw header/param
// option map. Structured values are decoded through the adapter's codec;
// malformed input degrades to an empty map for context-like options, an
// empty list for events and nil otherwise. A context_diff option (passed
// through a redirect) is applied onto the fresh record's Context after the
// initial snapshot is taken, so the final response still reports the diff
// to the client.
func ParseOptions(raw map[string]string, adapter Adapter) *Options {
	decoded := make(map[string]any, len(raw))
	for k, v := range raw {
		decoded[k] = v
	}
	for _, opt := range structuredOptions {
		rawValue, ok := raw[opt]
		if !ok {
			continue
		}
		value := adapter.DeserializeData(rawValue)
		if value == nil {
			switch opt {
			case "context", "fail_context", "context_diff":
				value = map[string]any{}
			case "events":
				value = []any{}
			}
		}
		decoded[opt] = value
	}

	contextDiff, _ := decoded["context_diff"].(map[string]any)
	delete(decoded, "context_diff")

	opts := &Options{
		Version:     stringOption(decoded, "version"),
		Target:      stringOption(decoded, "target"),
		Mode:        stringOption(decoded, "mode"),
		Context:     mapOption(decoded, "context"),
		FailTarget:  stringOption(decoded, "fail_target"),
		FailMode:    stringOption(decoded, "fail_mode"),
		FailContext: mapOption(decoded, "fail_context"),
		Validate:    stringOption(decoded, "validate"),
		Title:       stringOption(decoded, "title"),
		ExpireCache: stringOption(decoded, "expire_cache"),
		Events:      eventsOption(decoded),
	}
	if v, ok := decoded["accept_layer"]; ok {
		opts.AcceptLayer.Set(v)
	}
	if v, ok := decoded["dismiss_layer"]; ok {
		opts.DismissLayer.Set(v)
	}
	// Unknown option keys are ignored.

	opts.initialContext = deepCopyMap(opts.Context)

	// The diff was computed by the handler that issued the redirect; apply
	// it after the snapshot so it still shows up in this cycle's diff.
	for k, v := range contextDiff {
		if _, present := opts.Context[k]; v == nil && present {
			delete(opts.Context, k)
		} else {
			opts.Context[k] = v
		}
	}
	return opts
}

func stringOption(decoded map[string]any, key string) string {
	s, _ := decoded[key].(string)
	return s
}

func mapOption(decoded map[string]any, key string) map[string]any {
	if m, ok := decoded[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func eventsOption(decoded map[string]any) []map[string]any {
	raw, _ := decoded["events"].([]any)
	if len(raw) == 0 {
		return nil
	}
	events := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			events = append(events, m)
		}
	}
	return events
}

// Serialize renders the response-relevant fields as a raw option map,
// including only fields that were actually populated during handling. The
// caller converts the keys to header or query-parameter form.
func (o *Options) Serialize(adapter Adapter) map[string]string {
	serialized := map[string]string{}

	if len(o.Events) > 0 {
		serialized["events"] = adapter.SerializeData(o.Events)
	}
	if o.Title != "" {
		serialized["title"] = adapter.SerializeData(o.Title)
	}
	if v, ok := o.AcceptLayer.Get(); ok {
		serialized["accept_layer"] = adapter.SerializeData(v)
	}
	if v, ok := o.DismissLayer.Get(); ok {
		serialized["dismiss_layer"] = adapter.SerializeData(v)
	}
	if o.ExpireCache != "" {
		serialized["expire_cache"] = o.ExpireCache
	}
	if o.serverTarget != "" && o.serverTarget != o.Target {
		serialized["target"] = o.serverTarget
	}
	if diff := o.ContextDiff(); len(diff) > 0 {
		serialized["context"] = adapter.SerializeData(diff)
	}
	return serialized
}

// ContextDiff returns the minimal key changes that transform the context
// as it arrived into its current value: deleted keys map to nil, added or
// changed keys map to their current value. Comparison is structural.
func (o *Options) ContextDiff() map[string]any {
	diff := map[string]any{}
	for k := range o.initialContext {
		if _, ok := o.Context[k]; !ok {
			diff[k] = nil
		}
	}
	for k, v := range o.Context {
		old, ok := o.initialContext[k]
		if !ok || !reflect.DeepEqual(old, v) {
			diff[k] = v
		}
	}
	return diff
}

// deepCopyMap copies a decoded JSON value tree. Only the types produced by
// the codec (maps, slices and scalars) need handling; anything else is
// shared, which is safe because scalars are immutable.
func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
