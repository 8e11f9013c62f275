//go:build js && wasm

package wasm

// Redirect navigates the current tab to targetURL via
// window.location.assign, the browser primitive behind session.RedirectFunc
// (spec §4.6.3's end-of-session and extension-failure redirects).
func Redirect(targetURL string) {
	jsGlobal().Get("location").Call("assign", targetURL)
}
