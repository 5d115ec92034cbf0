// Package template holds static template definitions addressable by id.
//
// A template is the static skeleton of a piece of markup: elements, their
// fixed attributes, and text. Positions filled in at runtime are marked as
// dynamic and materialize as placeholders when the template is loaded. The
// upstream producer registers templates once and then instantiates them by id,
// and the hot-reload channel swaps definitions in place while the tree runs.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	jsonpatch "github.com/evanphx/json-patch"
)

// NodeKind identifies a template node.
type NodeKind string

const (
	KindElement NodeKind = "element"
	KindText    NodeKind = "text"
	KindDynamic NodeKind = "dynamic"
)

// Template errors.
var (
	ErrNotFound  = errors.New("template: not found")
	ErrInvalid   = errors.New("template: invalid definition")
	ErrRootIndex = errors.New("template: root index out of range")
)

// Attr is a static attribute.
type Attr struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Namespace string `json:"ns,omitempty"`
}

// Node is one node of a template.
type Node struct {
	Kind      NodeKind `json:"kind"`
	Tag       string   `json:"tag,omitempty"`
	Namespace string   `json:"ns,omitempty"`
	Attrs     []Attr   `json:"attrs,omitempty"`
	Children  []Node   `json:"children,omitempty"`
	Text      string   `json:"text,omitempty"`

	// Slot numbers a dynamic position within the template.
	Slot int `json:"slot,omitempty"`
}

// Template is a named static skeleton with one or more roots.
type Template struct {
	ID    string `json:"id"`
	Roots []Node `json:"roots"`
}

// Validate checks the definition is well-formed.
func (t *Template) Validate() error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if len(t.Roots) == 0 {
		return fmt.Errorf("%w: %s has no roots", ErrInvalid, t.ID)
	}
	for i := range t.Roots {
		if err := validateNode(&t.Roots[i], 0); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, t.ID, err)
		}
	}
	return nil
}

const maxDepth = 256

func validateNode(n *Node, depth int) error {
	if depth > maxDepth {
		return errors.New("nesting too deep")
	}
	switch n.Kind {
	case KindElement:
		if n.Tag == "" {
			return errors.New("element without tag")
		}
		for i := range n.Children {
			if err := validateNode(&n.Children[i], depth+1); err != nil {
				return err
			}
		}
	case KindText, KindDynamic:
		if len(n.Children) > 0 {
			return fmt.Errorf("%s node with children", n.Kind)
		}
	default:
		return fmt.Errorf("unknown node kind %q", n.Kind)
	}
	return nil
}

// Root returns the root at index.
func (t *Template) Root(index int) (*Node, error) {
	if index < 0 || index >= len(t.Roots) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrRootIndex, t.ID, index)
	}
	return &t.Roots[index], nil
}

// Cache stores templates by id. It is safe for concurrent use: the
// hot-reload client writes while the interpreter reads.
type Cache struct {
	mu        sync.RWMutex
	templates map[string]*entry
}

type entry struct {
	tmpl    *Template
	version uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{templates: make(map[string]*entry)}
}

// Put validates t and stores it, replacing any previous definition. It
// returns the new version number for the id.
func (c *Cache) Put(t *Template) (uint64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.templates[t.ID]
	if !ok {
		e = &entry{}
		c.templates[t.ID] = e
	}
	e.tmpl = t
	e.version++
	return e.version, nil
}

// Get returns the current definition for id.
func (c *Cache) Get(id string) (*Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.tmpl, nil
}

// Version returns how many times id has been stored (0 if never).
func (c *Cache) Version(id string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.templates[id]; ok {
		return e.version
	}
	return 0
}

// Patch applies an RFC 6902 JSON patch to the stored definition of id and
// stores the result. The patched template keeps its id.
func (c *Cache) Patch(id string, patch []byte) (*Template, error) {
	cur, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	ops, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: decode patch: %v", ErrInvalid, err)
	}
	doc, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	patched, err := ops.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: apply patch: %v", ErrInvalid, err)
	}
	var next Template
	if err := json.Unmarshal(patched, &next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	next.ID = id
	if _, err := c.Put(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

// IDs returns the stored template ids in sorted order.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored templates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}
