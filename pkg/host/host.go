// Package host defines the native document environment the renderer drives.
//
// The renderer never touches a concrete DOM directly. Everything it needs from
// the environment (node creation, child manipulation, attributes, text, and
// root-level event listeners) goes through the Document interface, so the
// same interpreter runs against a browser (package jsdoc, js/wasm builds) or
// an in-process HTML tree (package htmldoc).
//
// # Node handles
//
// A Node is an opaque handle owned by the Document implementation. Handles
// must be comparable with == for as long as the native node lives; the
// registry relies on that for identity checks. Documents also carry a per-node
// marker (Mark/Marker/Unmark) holding the renderer's numeric node id, which is
// how the event bridge resolves a physical event target back to an id.
package host

import (
	"errors"
	"io"
)

// NodeType identifies the native kind of a node.
type NodeType uint8

const (
	ElementNode NodeType = iota + 1
	TextNode
	// PlaceholderNode is an empty positional marker (a comment in HTML).
	PlaceholderNode
)

// String returns the string representation of the node type.
func (t NodeType) String() string {
	switch t {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case PlaceholderNode:
		return "placeholder"
	default:
		return "unknown"
	}
}

// Node is an opaque native node handle.
type Node any

// Common document errors.
var (
	ErrForeignNode = errors.New("host: node does not belong to this document")
	ErrNotChild    = errors.New("host: node is not a child of the given parent")
	ErrHasParent   = errors.New("host: node is already attached")
	ErrNotElement  = errors.New("host: node is not an element")
	ErrNotText     = errors.New("host: node is not a text node")
	ErrInvalidTag  = errors.New("host: invalid tag name")
)

// Listener receives native events delivered to the mount root.
type Listener func(ev Event)

// Event is a native event as seen by a root listener.
type Event interface {
	// Type is the native event type (e.g. "click").
	Type() string

	// Target is the physical node the event was dispatched at.
	Target() Node

	// Bubbles reports whether the native event bubbles.
	Bubbles() bool

	PreventDefault()
	StopPropagation()

	// StringField, FloatField and BoolField read category-specific native
	// fields (e.g. "key", "clientX", "checked"). Missing fields read as zero.
	StringField(name string) string
	FloatField(name string) float64
	BoolField(name string) bool

	// Files returns file handles carried by the event (file inputs, drops).
	Files() []File
}

// File is a native file handle attached to an event.
type File interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Document is the native environment the interpreter mutates.
//
// Implementations are not required to be safe for concurrent use; the
// renderer drives a Document from a single goroutine at a time.
type Document interface {
	// Root returns the mount container. It is never created or destroyed by
	// the renderer.
	Root() Node

	CreateElement(tag, namespace string) (Node, error)
	CreateText(text string) (Node, error)
	CreatePlaceholder() (Node, error)

	// Clone returns a deep copy of n. Markers are not copied.
	Clone(n Node) (Node, error)

	Type(n Node) NodeType
	Tag(n Node) string
	Text(n Node) string
	Attribute(n Node, namespace, name string) (string, bool)

	// Parent returns the parent of n, or nil when detached.
	Parent(n Node) Node
	Children(n Node) []Node

	// AppendChild and InsertBefore require child to be detached.
	AppendChild(parent, child Node) error
	InsertBefore(parent, child, ref Node) error
	RemoveChild(parent, child Node) error

	SetText(n Node, text string) error
	SetAttribute(n Node, namespace, name, value string) error
	RemoveAttribute(n Node, namespace, name string) error

	Mark(n Node, id uint32)
	Marker(n Node) (uint32, bool)
	Unmark(n Node)

	// Release tells the document that the renderer dropped n and its
	// subtree. Released nodes are not used again.
	Release(n Node)

	// AddListener attaches a listener for category at the mount root. When
	// capture is true the listener runs in the capture phase, which is how
	// non-bubbling categories are observed from the root.
	AddListener(category string, capture bool, fn Listener) error

	// Render writes the serialized markup of n.
	Render(w io.Writer, n Node) error
}

// Walk calls fn for n and every descendant in depth-first document order.
// Returning false from fn skips the node's children.
func Walk(doc Document, n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range doc.Children(n) {
		Walk(doc, c, fn)
	}
}

// Contains reports whether descendant is ancestor or lies below it.
func Contains(doc Document, ancestor, descendant Node) bool {
	for n := descendant; n != nil; n = doc.Parent(n) {
		if n == ancestor {
			return true
		}
	}
	return false
}
