package upwire

import "strings"

const (
	// HeaderPrefix marks a request or response header as belonging to the
	// Unpoly protocol, e.g. "X-Up-Target".
	HeaderPrefix = "X-Up-"

	// ParamPrefix marks a query parameter as belonging to the Unpoly
	// protocol, e.g. "_up_target". Parameters are used instead of headers
	// when protocol state has to survive a redirect.
	ParamPrefix = "_up_"

	// MethodCookie is the cookie that remembers the method of a non-GET
	// request made without Unpoly, so a later Unpoly navigation can detect
	// that the current page is the result of a form submission.
	MethodCookie = "_up_method"
)

// headerToOption converts a protocol header name to its option name:
// "X-Up-Fail-Target" becomes "fail_target". The caller has already checked
// the HeaderPrefix.
func headerToOption(header string) string {
	return strings.ReplaceAll(strings.ToLower(header[len(HeaderPrefix):]), "-", "_")
}

// optionToHeader is the inverse of headerToOption: "fail_target" becomes
// "X-Up-Fail-Target".
func optionToHeader(option string) string {
	parts := strings.Split(option, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return HeaderPrefix + strings.Join(parts, "-")
}

// paramToOption converts a protocol query parameter name to its option
// name: "_up_target" becomes "target".
func paramToOption(param string) string {
	return param[len(ParamPrefix):]
}

// optionToParam is the inverse of paramToOption.
func optionToParam(option string) string {
	return ParamPrefix + option
}
