package upwire

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf16"
)

// Adapter binds the protocol to one request/response pair of the hosting
// framework. The core never touches the transport itself: everything it
// reads or writes goes through these methods.
//
// Implementations exist in the uphttp and upgin subpackages. SimpleAdapter
// is an in-memory implementation for tests and for frameworks that want to
// drive the protocol manually.
//
// An Adapter is used by a single request cycle and needs no locking.
type Adapter interface {
	// RequestHeaders returns the current request's headers. Multi-valued
	// headers are reduced to their first value; the protocol only ever
	// sends scalar header values.
	RequestHeaders() map[string]string

	// RequestParams returns the current request's query parameters,
	// reduced to their first value.
	RequestParams() map[string]string

	// RedirectURI returns the outgoing response's redirect target, or ""
	// if the response status is not a redirection (300-399).
	RedirectURI() string

	// SetRedirectURI replaces the outgoing response's redirect target.
	SetRedirectURI(uri string)

	// SetHeaders sets the given headers on the outgoing response.
	SetHeaders(headers map[string]string)

	// SetCookie sets the MethodCookie to the request method when
	// needsCookie is true, and otherwise deletes the cookie if the request
	// carried it. Either way the call is idempotent.
	SetCookie(needsCookie bool)

	// Method returns the request's HTTP method.
	Method() string

	// Location returns the request's path including the query string.
	Location() string

	// DeserializeData parses a structured value sent by the client.
	// Malformed input yields nil, never a panic or error.
	DeserializeData(raw string) any

	// SerializeData is the inverse of DeserializeData. The output must be
	// deterministic, compact and ASCII-only.
	SerializeData(value any) string
}

// JSONCodec provides the default wire encoding for structured option
// values. Embed it into an Adapter implementation to satisfy the
// DeserializeData/SerializeData half of the contract.
//
// Encoding matches what the Unpoly client produces and consumes: compact
// JSON without HTML escaping, with non-ASCII characters escaped to \uXXXX
// sequences so the values are safe inside HTTP header values.
type JSONCodec struct{}

// DeserializeData parses raw as JSON. Malformed input yields nil.
func (JSONCodec) DeserializeData(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return v
}

// SerializeData encodes value as compact ASCII-only JSON.
func (JSONCodec) SerializeData(value any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		// Option values come from handlers as plain maps, slices and
		// scalars; an unencodable value is a programming error.
		panic("upwire: unserializable option value: " + err.Error())
	}
	return escapeNonASCII(strings.TrimSuffix(buf.String(), "\n"))
}

// escapeNonASCII rewrites every rune above 0x7F as a \uXXXX escape
// (surrogate pairs for runes outside the BMP). JSON syntax characters are
// all ASCII, so non-ASCII runes only ever appear inside string literals
// where the escape form is equivalent.
func escapeNonASCII(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}

	const hex = "0123456789abcdef"
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteByte(byte(r))
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			writeEscape(&b, hex, r1)
			writeEscape(&b, hex, r2)
			continue
		}
		writeEscape(&b, hex, r)
	}
	return b.String()
}

func writeEscape(b *strings.Builder, hex string, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(hex[r>>12&0xF])
	b.WriteByte(hex[r>>8&0xF])
	b.WriteByte(hex[r>>4&0xF])
	b.WriteByte(hex[r&0xF])
}

// SimpleAdapter is an in-memory Adapter without a real transport. It
// records everything the protocol writes, which makes it both the
// reference implementation of the Adapter contract and the fixture used by
// the core tests.
type SimpleAdapter struct {
	JSONCodec

	// Request side.
	ReqMethod   string
	ReqLocation string
	Headers     map[string]string
	Params      map[string]string
	HasCookie   bool // request carried MethodCookie

	// Redirect is the outgoing response's redirect target, "" when the
	// response is not a redirection.
	Redirect string

	// Response side, recorded by the Set* methods.
	SentRedirect string
	SentHeaders  map[string]string
	CookieSet    bool // SetCookie was called
	NeedsCookie  bool // ... with this value
}

// NewSimpleAdapter returns an adapter for a plain GET request to "/".
// Callers adjust the exported fields before handing it to New.
func NewSimpleAdapter() *SimpleAdapter {
	return &SimpleAdapter{
		ReqMethod:   "GET",
		ReqLocation: "/",
		Headers:     map[string]string{},
		Params:      map[string]string{},
	}
}

func (a *SimpleAdapter) RequestHeaders() map[string]string { return a.Headers }

func (a *SimpleAdapter) RequestParams() map[string]string { return a.Params }

func (a *SimpleAdapter) RedirectURI() string { return a.Redirect }

func (a *SimpleAdapter) SetRedirectURI(uri string) { a.SentRedirect = uri }

func (a *SimpleAdapter) SetHeaders(headers map[string]string) { a.SentHeaders = headers }

func (a *SimpleAdapter) SetCookie(needsCookie bool) {
	a.CookieSet = true
	a.NeedsCookie = needsCookie
}

func (a *SimpleAdapter) Method() string { return a.ReqMethod }

func (a *SimpleAdapter) Location() string { return a.ReqLocation }
