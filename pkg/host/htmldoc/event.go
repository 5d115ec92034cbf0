package htmldoc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vango-dev/vango-web/pkg/host"
)

// nonBubbling lists native event types that do not bubble.
var nonBubbling = map[string]bool{
	"mouseenter":     true,
	"mouseleave":     true,
	"pointerenter":   true,
	"pointerleave":   true,
	"focus":          true,
	"blur":           true,
	"load":           true,
	"unload":         true,
	"error":          true,
	"scroll":         true,
	"resize":         true,
	"play":           true,
	"pause":          true,
	"ended":          true,
	"invalid":        true,
	"abort":          true,
	"toggle":         true,
	"playing":        true,
	"canplay":        true,
	"loadeddata":     true,
	"loadedmetadata": true,
	"timeupdate":     true,
	"volumechange":   true,
	"seeking":        true,
	"seeked":         true,
}

// Event is a simulated native event.
type Event struct {
	Kind     string
	Fields   map[string]any
	FileList []host.File

	bubbles   bool
	target    host.Node
	prevented bool
	stopped   bool
}

// NewEvent creates an event of the given type. Bubbling follows the browser
// default for the type.
func NewEvent(kind string, fields map[string]any) *Event {
	return &Event{
		Kind:    kind,
		Fields:  fields,
		bubbles: !nonBubbling[kind],
	}
}

// WithBubbles overrides whether the event bubbles, as the bubbles flag of a
// constructed CustomEvent does.
func (e *Event) WithBubbles(bubbles bool) *Event {
	e.bubbles = bubbles
	return e
}

// WithFiles attaches file handles to the event.
func (e *Event) WithFiles(files ...host.File) *Event {
	e.FileList = append(e.FileList, files...)
	return e
}

func (e *Event) Type() string { return e.Kind }

func (e *Event) Target() host.Node { return e.target }

func (e *Event) Bubbles() bool { return e.bubbles }

func (e *Event) PreventDefault() { e.prevented = true }

func (e *Event) StopPropagation() { e.stopped = true }

func (e *Event) Files() []host.File { return e.FileList }

// DefaultPrevented reports whether a listener called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// PropagationStopped reports whether a listener called StopPropagation.
func (e *Event) PropagationStopped() bool { return e.stopped }

// StringField reads a string field.
func (e *Event) StringField(name string) string {
	switch v := e.Fields[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// FloatField reads a numeric field.
func (e *Event) FloatField(name string) float64 {
	switch v := e.Fields[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// BoolField reads a boolean field.
func (e *Event) BoolField(name string) bool {
	v, _ := e.Fields[name].(bool)
	return v
}

// File is an in-memory file handle.
type File struct {
	FileName string
	Type     string
	Data     []byte
}

func (f *File) Name() string        { return f.FileName }
func (f *File) ContentType() string { return f.Type }
func (f *File) Size() int64         { return int64(len(f.Data)) }

// Open returns a reader over the file contents.
func (f *File) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}
