// Package htmldoc implements host.Document on top of golang.org/x/net/html
// node trees.
//
// It is the renderer's native environment outside the browser: server-side
// rendering, the replay CLI, and tests. Native event dispatch is simulated
// with the same phase rules a browser applies to listeners attached at the
// mount root (capture listeners always run; bubble listeners run only for
// bubbling events or events targeted at the root itself).
package htmldoc

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/vango-dev/vango-web/pkg/host"
)

// ErrExhausted is returned when the configured node limit is reached.
var ErrExhausted = errors.New("htmldoc: node limit reached")

// DefaultRootID is the id attribute of the mount container.
const DefaultRootID = "main"

type listener struct {
	capture bool
	fn      host.Listener
}

// Document is an in-memory host.Document.
type Document struct {
	root      *html.Node
	markers   map[*html.Node]uint32
	listeners map[string][]listener

	live      map[*html.Node]struct{}
	nodeLimit int
}

// Option configures a Document.
type Option func(*Document)

// WithNodeLimit caps the number of live nodes: created and not yet released.
// Creation beyond the limit fails with ErrExhausted.
func WithNodeLimit(n int) Option {
	return func(d *Document) {
		d.nodeLimit = n
	}
}

// WithRootID sets the id attribute of the mount container.
func WithRootID(id string) Option {
	return func(d *Document) {
		d.root.Attr = []html.Attribute{{Key: "id", Val: id}}
	}
}

// New creates an empty document with a <div id="main"> mount container.
func New(opts ...Option) *Document {
	d := &Document{
		root: &html.Node{
			Type: html.ElementNode,
			Data: "div",
			Attr: []html.Attribute{{Key: "id", Val: DefaultRootID}},
		},
		markers:   make(map[*html.Node]uint32),
		listeners: make(map[string][]listener),
		live:      make(map[*html.Node]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Document) node(n host.Node) (*html.Node, error) {
	hn, ok := n.(*html.Node)
	if !ok || hn == nil {
		return nil, host.ErrForeignNode
	}
	return hn, nil
}

// mustNode is used by the read-only accessors, which have no error return.
func (d *Document) mustNode(n host.Node) *html.Node {
	hn, _ := n.(*html.Node)
	return hn
}

func (d *Document) alloc(n *html.Node) error {
	if d.nodeLimit > 0 && len(d.live) >= d.nodeLimit {
		return ErrExhausted
	}
	d.live[n] = struct{}{}
	return nil
}

// Release drops n and its subtree from the live node count. Released nodes
// must not be used again.
func (d *Document) Release(n host.Node) {
	hn := d.mustNode(n)
	if hn == nil {
		return
	}
	d.release(hn)
}

func (d *Document) release(n *html.Node) {
	// A released node's subtree was released with it.
	if _, ok := d.live[n]; !ok {
		return
	}
	delete(d.live, n)
	delete(d.markers, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.release(c)
	}
}

// Live returns the number of nodes created and not yet released.
func (d *Document) Live() int { return len(d.live) }

// Root returns the mount container.
func (d *Document) Root() host.Node { return d.root }

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag, namespace string) (host.Node, error) {
	if tag == "" || strings.ContainsAny(tag, " \t\n<>/=\"'") {
		return nil, fmt.Errorf("%w: %q", host.ErrInvalidTag, tag)
	}
	n := &html.Node{Type: html.ElementNode, Data: tag, Namespace: namespace}
	if err := d.alloc(n); err != nil {
		return nil, err
	}
	return n, nil
}

// CreateText creates a detached text node.
func (d *Document) CreateText(text string) (host.Node, error) {
	n := &html.Node{Type: html.TextNode, Data: text}
	if err := d.alloc(n); err != nil {
		return nil, err
	}
	return n, nil
}

// CreatePlaceholder creates a detached comment node.
func (d *Document) CreatePlaceholder() (host.Node, error) {
	n := &html.Node{Type: html.CommentNode, Data: "placeholder"}
	if err := d.alloc(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Clone deep-copies n.
func (d *Document) Clone(n host.Node) (host.Node, error) {
	src, err := d.node(n)
	if err != nil {
		return nil, err
	}
	c, err := d.clone(src)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Document) clone(src *html.Node) (*html.Node, error) {
	dst := &html.Node{
		Type:      src.Type,
		DataAtom:  src.DataAtom,
		Data:      src.Data,
		Namespace: src.Namespace,
	}
	if err := d.alloc(dst); err != nil {
		return nil, err
	}
	if len(src.Attr) > 0 {
		dst.Attr = make([]html.Attribute, len(src.Attr))
		copy(dst.Attr, src.Attr)
	}
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		cc, err := d.clone(c)
		if err != nil {
			d.release(dst)
			return nil, err
		}
		dst.AppendChild(cc)
	}
	return dst, nil
}

// Type returns the native kind of n.
func (d *Document) Type(n host.Node) host.NodeType {
	hn := d.mustNode(n)
	if hn == nil {
		return 0
	}
	switch hn.Type {
	case html.ElementNode:
		return host.ElementNode
	case html.TextNode:
		return host.TextNode
	case html.CommentNode:
		return host.PlaceholderNode
	default:
		return 0
	}
}

// Tag returns the element tag, or "" for non-elements.
func (d *Document) Tag(n host.Node) string {
	hn := d.mustNode(n)
	if hn == nil || hn.Type != html.ElementNode {
		return ""
	}
	return hn.Data
}

// Text returns the content of a text node, or "" otherwise.
func (d *Document) Text(n host.Node) string {
	hn := d.mustNode(n)
	if hn == nil || hn.Type != html.TextNode {
		return ""
	}
	return hn.Data
}

// Attribute returns an attribute value.
func (d *Document) Attribute(n host.Node, namespace, name string) (string, bool) {
	hn := d.mustNode(n)
	if hn == nil {
		return "", false
	}
	for _, a := range hn.Attr {
		if a.Key == name && a.Namespace == namespace {
			return a.Val, true
		}
	}
	return "", false
}

// Parent returns the parent of n, or nil.
func (d *Document) Parent(n host.Node) host.Node {
	hn := d.mustNode(n)
	if hn == nil || hn.Parent == nil {
		return nil
	}
	return hn.Parent
}

// Children returns the children of n in order.
func (d *Document) Children(n host.Node) []host.Node {
	hn := d.mustNode(n)
	if hn == nil {
		return nil
	}
	var out []host.Node
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func (d *Document) container(n host.Node) (*html.Node, error) {
	hn, err := d.node(n)
	if err != nil {
		return nil, err
	}
	if hn.Type != html.ElementNode {
		return nil, host.ErrNotElement
	}
	return hn, nil
}

func (d *Document) detached(n host.Node) (*html.Node, error) {
	hn, err := d.node(n)
	if err != nil {
		return nil, err
	}
	if hn.Parent != nil || hn.PrevSibling != nil || hn.NextSibling != nil {
		return nil, host.ErrHasParent
	}
	return hn, nil
}

// AppendChild appends a detached child to parent.
func (d *Document) AppendChild(parent, child host.Node) error {
	p, err := d.container(parent)
	if err != nil {
		return err
	}
	c, err := d.detached(child)
	if err != nil {
		return err
	}
	p.AppendChild(c)
	return nil
}

// InsertBefore inserts a detached child before ref, which must be a child of
// parent.
func (d *Document) InsertBefore(parent, child, ref host.Node) error {
	p, err := d.container(parent)
	if err != nil {
		return err
	}
	c, err := d.detached(child)
	if err != nil {
		return err
	}
	r, err := d.node(ref)
	if err != nil {
		return err
	}
	if r.Parent != p {
		return host.ErrNotChild
	}
	p.InsertBefore(c, r)
	return nil
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child host.Node) error {
	p, err := d.node(parent)
	if err != nil {
		return err
	}
	c, err := d.node(child)
	if err != nil {
		return err
	}
	if c.Parent != p {
		return host.ErrNotChild
	}
	p.RemoveChild(c)
	return nil
}

// SetText replaces the content of a text node.
func (d *Document) SetText(n host.Node, text string) error {
	hn, err := d.node(n)
	if err != nil {
		return err
	}
	if hn.Type != html.TextNode {
		return host.ErrNotText
	}
	hn.Data = text
	return nil
}

// SetAttribute upserts an attribute on an element.
func (d *Document) SetAttribute(n host.Node, namespace, name, value string) error {
	hn, err := d.container(n)
	if err != nil {
		return err
	}
	for i := range hn.Attr {
		if hn.Attr[i].Key == name && hn.Attr[i].Namespace == namespace {
			hn.Attr[i].Val = value
			return nil
		}
	}
	hn.Attr = append(hn.Attr, html.Attribute{Namespace: namespace, Key: name, Val: value})
	return nil
}

// RemoveAttribute deletes an attribute if present.
func (d *Document) RemoveAttribute(n host.Node, namespace, name string) error {
	hn, err := d.container(n)
	if err != nil {
		return err
	}
	for i := range hn.Attr {
		if hn.Attr[i].Key == name && hn.Attr[i].Namespace == namespace {
			hn.Attr = append(hn.Attr[:i], hn.Attr[i+1:]...)
			return nil
		}
	}
	return nil
}

// Mark tags n with a renderer node id.
func (d *Document) Mark(n host.Node, id uint32) {
	if hn := d.mustNode(n); hn != nil {
		d.markers[hn] = id
	}
}

// Marker returns the node id n was tagged with.
func (d *Document) Marker(n host.Node) (uint32, bool) {
	hn := d.mustNode(n)
	if hn == nil {
		return 0, false
	}
	id, ok := d.markers[hn]
	return id, ok
}

// Unmark removes the node id tag from n.
func (d *Document) Unmark(n host.Node) {
	if hn := d.mustNode(n); hn != nil {
		delete(d.markers, hn)
	}
}

// AddListener attaches a root listener.
func (d *Document) AddListener(category string, capture bool, fn host.Listener) error {
	if fn == nil {
		return errors.New("htmldoc: nil listener")
	}
	d.listeners[category] = append(d.listeners[category], listener{capture: capture, fn: fn})
	return nil
}

// ListenerCount returns the number of root listeners attached for category.
func (d *Document) ListenerCount(category string) int {
	return len(d.listeners[category])
}

// Render writes the markup of n.
func (d *Document) Render(w io.Writer, n host.Node) error {
	hn, err := d.node(n)
	if err != nil {
		return err
	}
	return html.Render(w, hn)
}

// HTML returns the markup of the mount container.
func (d *Document) HTML() string {
	var b strings.Builder
	_ = html.Render(&b, d.root)
	return b.String()
}

// Dispatch delivers ev at target the way a browser would deliver it to
// listeners attached at the mount root. It reports whether the default action
// is still allowed (i.e. no listener called PreventDefault).
func (d *Document) Dispatch(target host.Node, ev *Event) bool {
	t, err := d.node(target)
	if err != nil {
		return true
	}
	if !host.Contains(d, d.root, t) {
		return true
	}
	ev.target = t

	ls := d.listeners[ev.Kind]
	for _, l := range ls {
		if l.capture {
			l.fn(ev)
			if ev.stopped {
				return !ev.prevented
			}
		}
	}
	if ev.Bubbles() || t == d.root {
		for _, l := range ls {
			if !l.capture {
				l.fn(ev)
				if ev.stopped {
					break
				}
			}
		}
	}
	return !ev.prevented
}
