//go:build js && wasm

package wasm

// QueryTokenLocator returns a session.TokenLocator that reads paramName
// from the page's current URL query string via
// window.location.search (spec §4.6.1's token-location configuration).
func QueryTokenLocator(paramName string) func() (string, bool) {
	return func() (string, bool) {
		search := jsGlobal().Get("location").Get("search").String()
		params := jsGlobal().Get("URLSearchParams").New(search)
		value := params.Call("get", paramName)
		if value.IsNull() {
			return "", false
		}
		return value.String(), true
	}
}
