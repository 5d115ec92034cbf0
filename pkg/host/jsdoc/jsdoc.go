//go:build js && wasm

// Package jsdoc implements host.Document against the browser DOM through
// syscall/js.
//
// Native nodes are wrapped in *Node values so handles compare with ==. A
// wrapper is found again from its JS object through a numeric property, and
// dropped when the renderer releases the node (Unmark).
package jsdoc

import (
	"fmt"
	"io"
	"syscall/js"

	"github.com/vango-dev/vango-web/pkg/host"
)

const (
	handleProp = "__vwHandle"
	markerProp = "__vwID"
)

// Node wraps a native DOM node.
type Node struct {
	v js.Value
}

// Value returns the underlying JS object.
func (n *Node) Value() js.Value { return n.v }

// Document drives the browser document.
type Document struct {
	doc   js.Value
	root  *Node
	nodes map[int]*Node
	next  int

	funcs []js.Func
}

// New mounts on the element with the given id.
func New(rootID string) (*Document, error) {
	doc := js.Global().Get("document")
	if doc.IsUndefined() || doc.IsNull() {
		return nil, fmt.Errorf("jsdoc: no global document")
	}
	el := doc.Call("getElementById", rootID)
	if el.IsNull() {
		return nil, fmt.Errorf("jsdoc: mount element %q not found", rootID)
	}
	d := &Document{doc: doc, nodes: make(map[int]*Node)}
	d.root = d.wrap(el)
	return d, nil
}

func (d *Document) wrap(v js.Value) *Node {
	if v.IsNull() || v.IsUndefined() {
		return nil
	}
	if h := v.Get(handleProp); h.Type() == js.TypeNumber {
		if n, ok := d.nodes[h.Int()]; ok {
			return n
		}
	}
	d.next++
	n := &Node{v: v}
	d.nodes[d.next] = n
	v.Set(handleProp, d.next)
	return n
}

func (d *Document) forget(n *Node) {
	if h := n.v.Get(handleProp); h.Type() == js.TypeNumber {
		delete(d.nodes, h.Int())
		n.v.Delete(handleProp)
	}
}

func (d *Document) node(n host.Node) (*Node, error) {
	jn, ok := n.(*Node)
	if !ok || jn == nil {
		return nil, host.ErrForeignNode
	}
	return jn, nil
}

func (d *Document) Root() host.Node { return d.root }

func (d *Document) CreateElement(tag, namespace string) (host.Node, error) {
	if tag == "" {
		return nil, host.ErrInvalidTag
	}
	var v js.Value
	if namespace != "" {
		v = d.doc.Call("createElementNS", namespace, tag)
	} else {
		v = d.doc.Call("createElement", tag)
	}
	return d.wrap(v), nil
}

func (d *Document) CreateText(text string) (host.Node, error) {
	return d.wrap(d.doc.Call("createTextNode", text)), nil
}

func (d *Document) CreatePlaceholder() (host.Node, error) {
	return d.wrap(d.doc.Call("createComment", "placeholder")), nil
}

func (d *Document) Clone(n host.Node) (host.Node, error) {
	jn, err := d.node(n)
	if err != nil {
		return nil, err
	}
	c := jn.v.Call("cloneNode", true)
	// cloneNode copies expando properties in some engines.
	c.Delete(handleProp)
	c.Delete(markerProp)
	return d.wrap(c), nil
}

func (d *Document) Type(n host.Node) host.NodeType {
	jn, err := d.node(n)
	if err != nil {
		return 0
	}
	switch jn.v.Get("nodeType").Int() {
	case 1:
		return host.ElementNode
	case 3:
		return host.TextNode
	case 8:
		return host.PlaceholderNode
	default:
		return 0
	}
}

func (d *Document) Tag(n host.Node) string {
	if d.Type(n) != host.ElementNode {
		return ""
	}
	return n.(*Node).v.Get("localName").String()
}

func (d *Document) Text(n host.Node) string {
	if d.Type(n) != host.TextNode {
		return ""
	}
	return n.(*Node).v.Get("data").String()
}

func (d *Document) Attribute(n host.Node, namespace, name string) (string, bool) {
	if d.Type(n) != host.ElementNode {
		return "", false
	}
	v := n.(*Node).v
	var a js.Value
	if namespace != "" {
		a = v.Call("getAttributeNS", namespace, name)
	} else {
		a = v.Call("getAttribute", name)
	}
	if a.IsNull() {
		return "", false
	}
	return a.String(), true
}

func (d *Document) Parent(n host.Node) host.Node {
	jn, err := d.node(n)
	if err != nil {
		return nil
	}
	p := d.wrap(jn.v.Get("parentNode"))
	if p == nil {
		return nil
	}
	return p
}

func (d *Document) Children(n host.Node) []host.Node {
	jn, err := d.node(n)
	if err != nil {
		return nil
	}
	list := jn.v.Get("childNodes")
	out := make([]host.Node, 0, list.Length())
	for i := 0; i < list.Length(); i++ {
		out = append(out, d.wrap(list.Index(i)))
	}
	return out
}

func (d *Document) AppendChild(parent, child host.Node) error {
	p, err := d.node(parent)
	if err != nil {
		return err
	}
	c, err := d.node(child)
	if err != nil {
		return err
	}
	if !c.v.Get("parentNode").IsNull() {
		return host.ErrHasParent
	}
	p.v.Call("appendChild", c.v)
	return nil
}

func (d *Document) InsertBefore(parent, child, ref host.Node) error {
	p, err := d.node(parent)
	if err != nil {
		return err
	}
	c, err := d.node(child)
	if err != nil {
		return err
	}
	r, err := d.node(ref)
	if err != nil {
		return err
	}
	if !c.v.Get("parentNode").IsNull() {
		return host.ErrHasParent
	}
	if !r.v.Get("parentNode").Equal(p.v) {
		return host.ErrNotChild
	}
	p.v.Call("insertBefore", c.v, r.v)
	return nil
}

func (d *Document) RemoveChild(parent, child host.Node) error {
	p, err := d.node(parent)
	if err != nil {
		return err
	}
	c, err := d.node(child)
	if err != nil {
		return err
	}
	if !c.v.Get("parentNode").Equal(p.v) {
		return host.ErrNotChild
	}
	p.v.Call("removeChild", c.v)
	return nil
}

func (d *Document) SetText(n host.Node, text string) error {
	if d.Type(n) != host.TextNode {
		return host.ErrNotText
	}
	n.(*Node).v.Set("data", text)
	return nil
}

// volatile attributes are mirrored to the DOM property so live form state
// follows the abstract tree.
var volatile = map[string]bool{"value": true, "checked": true, "selected": true}

func (d *Document) SetAttribute(n host.Node, namespace, name, value string) error {
	if d.Type(n) != host.ElementNode {
		return host.ErrNotElement
	}
	v := n.(*Node).v
	if namespace != "" {
		v.Call("setAttributeNS", namespace, name, value)
		return nil
	}
	v.Call("setAttribute", name, value)
	if volatile[name] {
		if name == "value" {
			v.Set(name, value)
		} else {
			v.Set(name, value != "false")
		}
	}
	return nil
}

func (d *Document) RemoveAttribute(n host.Node, namespace, name string) error {
	if d.Type(n) != host.ElementNode {
		return host.ErrNotElement
	}
	v := n.(*Node).v
	if namespace != "" {
		v.Call("removeAttributeNS", namespace, name)
		return nil
	}
	v.Call("removeAttribute", name)
	return nil
}

func (d *Document) Mark(n host.Node, id uint32) {
	if jn, err := d.node(n); err == nil {
		jn.v.Set(markerProp, id)
	}
}

func (d *Document) Marker(n host.Node) (uint32, bool) {
	jn, err := d.node(n)
	if err != nil {
		return 0, false
	}
	m := jn.v.Get(markerProp)
	if m.Type() != js.TypeNumber {
		return 0, false
	}
	return uint32(m.Int()), true
}

func (d *Document) Unmark(n host.Node) {
	if jn, err := d.node(n); err == nil {
		jn.v.Delete(markerProp)
		d.forget(jn)
	}
}

// Release is a no-op: the browser collects detached nodes once nothing
// references them, and Unmark already dropped the wrappers.
func (d *Document) Release(n host.Node) {}

func (d *Document) AddListener(category string, capture bool, fn host.Listener) error {
	f := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			fn(&Event{doc: d, v: args[0]})
		}
		return nil
	})
	d.funcs = append(d.funcs, f)
	d.root.v.Call("addEventListener", category, f, map[string]any{"capture": capture})
	return nil
}

func (d *Document) Render(w io.Writer, n host.Node) error {
	jn, err := d.node(n)
	if err != nil {
		return err
	}
	var s string
	switch d.Type(n) {
	case host.ElementNode:
		s = jn.v.Get("outerHTML").String()
	case host.TextNode:
		s = jn.v.Get("data").String()
	case host.PlaceholderNode:
		s = "<!--" + jn.v.Get("data").String() + "-->"
	}
	_, err = io.WriteString(w, s)
	return err
}

// Release frees the JS callbacks held by root listeners.
func (d *Document) Release() {
	for _, f := range d.funcs {
		f.Release()
	}
	d.funcs = nil
}
