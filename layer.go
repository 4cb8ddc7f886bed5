package upwire

// Layer is a view over one client-side layer (the root page or an overlay
// stacked on top of it). Its context map is shared with the Options record
// by reference, so mutations through either side are visible on both.
//
// Two layers exist per cycle: Unpoly.Layer for the primary render pass and
// Unpoly.FailLayer for the failure pass of a rejected form submission.
type Layer struct {
	up      *Unpoly
	mode    string
	context map[string]any
}

// Mode returns the layer mode (X-Up[-Fail]-Mode), "root" for the page.
func (l *Layer) Mode() string { return l.mode }

// Context returns the layer's mutable context map (X-Up[-Fail]-Context).
func (l *Layer) Context() map[string]any { return l.context }

// IsRoot reports whether this is the root layer.
func (l *Layer) IsRoot() bool { return l.mode == "root" }

// IsOverlay reports whether this is an overlay layer.
func (l *Layer) IsOverlay() bool { return !l.IsRoot() }

// Emit emits an event on this layer (X-Up-Events). It behaves like
// Unpoly.Emit with the event's layer option forced to "current".
func (l *Layer) Emit(eventType string, options map[string]any) {
	merged := make(map[string]any, len(options)+1)
	for k, v := range options {
		merged[k] = v
	}
	merged["layer"] = "current"
	l.up.Emit(eventType, merged)
}

// Accept accepts the current layer (X-Up-Accept-Layer). The value, which
// may be nil, is passed back to the client. The client ignores this
// directive on the root layer.
func (l *Layer) Accept(value any) {
	l.up.Options().AcceptLayer.Set(value)
}

// Dismiss dismisses the current layer (X-Up-Dismiss-Layer). The value,
// which may be nil, is passed back to the client. The client ignores this
// directive on the root layer.
func (l *Layer) Dismiss(value any) {
	l.up.Options().DismissLayer.Set(value)
}
