//go:build js && wasm

package jsdoc

import (
	"errors"
	"io"
	"syscall/js"

	"github.com/vango-dev/vango-web/pkg/host"
)

// Event wraps a native DOM event.
type Event struct {
	doc *Document
	v   js.Value
}

func (e *Event) Type() string { return e.v.Get("type").String() }

func (e *Event) Target() host.Node {
	t := e.doc.wrap(e.v.Get("target"))
	if t == nil {
		return nil
	}
	return t
}

func (e *Event) Bubbles() bool { return e.v.Get("bubbles").Bool() }

func (e *Event) PreventDefault() { e.v.Call("preventDefault") }

func (e *Event) StopPropagation() { e.v.Call("stopPropagation") }

// field reads name from the event, falling back to the target element for
// form state such as value and checked.
func (e *Event) field(name string) js.Value {
	v := e.v.Get(name)
	if v.IsUndefined() {
		if t := e.v.Get("target"); !t.IsNull() && !t.IsUndefined() {
			v = t.Get(name)
		}
	}
	return v
}

func (e *Event) StringField(name string) string {
	v := e.field(name)
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func (e *Event) FloatField(name string) float64 {
	v := e.field(name)
	if v.Type() != js.TypeNumber {
		return 0
	}
	return v.Float()
}

func (e *Event) BoolField(name string) bool {
	v := e.field(name)
	if v.Type() != js.TypeBoolean {
		return false
	}
	return v.Bool()
}

func (e *Event) Files() []host.File {
	var list js.Value
	if dt := e.v.Get("dataTransfer"); !dt.IsUndefined() && !dt.IsNull() {
		list = dt.Get("files")
	} else if t := e.v.Get("target"); !t.IsNull() && !t.IsUndefined() {
		list = t.Get("files")
	}
	if list.IsUndefined() || list.IsNull() {
		return nil
	}
	out := make([]host.File, 0, list.Length())
	for i := 0; i < list.Length(); i++ {
		out = append(out, &File{v: list.Index(i)})
	}
	return out
}

// File wraps a browser File object.
type File struct {
	v js.Value
}

func (f *File) Name() string { return f.v.Get("name").String() }

func (f *File) ContentType() string { return f.v.Get("type").String() }

func (f *File) Size() int64 { return int64(f.v.Get("size").Float()) }

// Open reads the file through its arrayBuffer promise. The returned reader
// blocks until the promise settles, so it must not be read from inside a JS
// callback.
func (f *File) Open() (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	done := make(chan struct{})

	var then, catch js.Func
	then = js.FuncOf(func(this js.Value, args []js.Value) any {
		buf := js.Global().Get("Uint8Array").New(args[0])
		data := make([]byte, buf.Get("length").Int())
		js.CopyBytesToGo(data, buf)
		go func() {
			_, err := pw.Write(data)
			pw.CloseWithError(err)
			close(done)
		}()
		return nil
	})
	catch = js.FuncOf(func(this js.Value, args []js.Value) any {
		msg := "arrayBuffer rejected"
		if len(args) > 0 {
			msg = args[0].Call("toString").String()
		}
		go func() {
			pw.CloseWithError(errors.New("jsdoc: " + msg))
			close(done)
		}()
		return nil
	})
	go func() {
		<-done
		then.Release()
		catch.Release()
	}()

	f.v.Call("arrayBuffer").Call("then", then).Call("catch", catch)
	return pr, nil
}
