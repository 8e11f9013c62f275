//go:build js && wasm

package wasm

import "syscall/js"

// Visibility implements session.Visibility over
// document.visibilitychange, the browser signal on which the Controller
// pauses and resumes its countdown when PauseOnHidden is set (the heartbeat
// does not react to it).
type Visibility struct{}

// NewVisibility constructs a Visibility bound to the current document.
func NewVisibility() *Visibility { return &Visibility{} }

// OnChange implements session.Visibility.
func (v *Visibility) OnChange(handler func(hidden bool)) func() {
	document := jsGlobal().Get("document")

	var cb js.Func
	cb = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		hidden := document.Get("hidden").Bool()
		handler(hidden)
		return nil
	})
	document.Call("addEventListener", "visibilitychange", cb)

	return func() {
		document.Call("removeEventListener", "visibilitychange", cb)
		cb.Release()
	}
}
