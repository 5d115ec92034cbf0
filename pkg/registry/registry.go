// Package registry maps renderer node ids to native node handles.
//
// The Registry is an arena of slots indexed by NodeID. Each slot owns exactly
// one native handle; every other component holds only ids and re-resolves
// through the Registry on use. There is no implicit reclamation: a slot lives
// until Release is called for it or for one of its native ancestors.
//
// The Registry is not safe for concurrent use.
package registry

import (
	"errors"
	"fmt"

	"github.com/vango-dev/vango-web/pkg/host"
)

// NodeID identifies a node for its whole lifetime.
type NodeID uint32

// RootID names the mount container.
const RootID NodeID = 0

// MaxNodeID bounds the arena so a corrupt id cannot force a huge allocation.
const MaxNodeID NodeID = 1 << 24

// Kind is the abstract node kind stored in a slot.
type Kind uint8

const (
	KindRoot Kind = iota
	KindElement
	KindText
	KindPlaceholder
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// KindOf maps a native node type to a slot kind.
func KindOf(t host.NodeType) (Kind, bool) {
	switch t {
	case host.ElementNode:
		return KindElement, true
	case host.TextNode:
		return KindText, true
	case host.PlaceholderNode:
		return KindPlaceholder, true
	default:
		return 0, false
	}
}

// Registry errors. ErrUnknownNodeID and ErrKindMismatch are protocol
// violations; ErrAllocation means the native environment could not create a
// node.
var (
	ErrUnknownNodeID = errors.New("registry: unknown node id")
	ErrIDInUse       = errors.New("registry: node id already in use")
	ErrIDOutOfRange  = errors.New("registry: node id out of range")
	ErrRootID        = errors.New("registry: root id is reserved")
	ErrKindMismatch  = errors.New("registry: node kind mismatch")
	ErrAllocation    = errors.New("registry: native allocation failed")
)

// NodeError carries the id an error refers to.
type NodeError struct {
	ID  NodeID
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%v (id %d)", e.Err, e.ID)
}

func (e *NodeError) Unwrap() error { return e.Err }

func nodeErr(id NodeID, err error) error {
	return &NodeError{ID: id, Err: err}
}

// Slot owns one native handle.
type Slot struct {
	ID     NodeID
	Kind   Kind
	Handle host.Node
}

// Spec describes a node to create.
type Spec struct {
	Kind      Kind
	Tag       string
	Namespace string
	Text      string
}

// Registry is the node identity arena.
type Registry struct {
	doc   host.Document
	slots []*Slot
	live  int
}

// New creates a registry whose id 0 is the document's mount root.
func New(doc host.Document) *Registry {
	r := &Registry{doc: doc, slots: make([]*Slot, 1, 64)}
	root := doc.Root()
	r.slots[RootID] = &Slot{ID: RootID, Kind: KindRoot, Handle: root}
	doc.Mark(root, uint32(RootID))
	return r
}

// Document returns the native document the registry resolves into.
func (r *Registry) Document() host.Document { return r.doc }

// Root returns the mount root id.
func (r *Registry) Root() NodeID { return RootID }

// Len returns the number of live slots, excluding the root.
func (r *Registry) Len() int { return r.live }

func (r *Registry) checkFree(id NodeID) error {
	if id == RootID {
		return nodeErr(id, ErrRootID)
	}
	if id >= MaxNodeID {
		return nodeErr(id, ErrIDOutOfRange)
	}
	if int(id) < len(r.slots) && r.slots[id] != nil {
		return nodeErr(id, ErrIDInUse)
	}
	return nil
}

// Allocate creates the native node described by spec and stores it at id.
func (r *Registry) Allocate(id NodeID, spec Spec) (*Slot, error) {
	if err := r.checkFree(id); err != nil {
		return nil, err
	}

	var (
		n   host.Node
		err error
	)
	switch spec.Kind {
	case KindElement:
		n, err = r.doc.CreateElement(spec.Tag, spec.Namespace)
	case KindText:
		n, err = r.doc.CreateText(spec.Text)
	case KindPlaceholder:
		n, err = r.doc.CreatePlaceholder()
	default:
		return nil, nodeErr(id, ErrKindMismatch)
	}
	if err != nil {
		return nil, nodeErr(id, fmt.Errorf("%w: %w", ErrAllocation, err))
	}
	return r.store(id, spec.Kind, n), nil
}

// Bind stores an existing native node at id. The node's kind is taken from
// the document; it must not already carry an id.
func (r *Registry) Bind(id NodeID, n host.Node) (*Slot, error) {
	if err := r.checkFree(id); err != nil {
		return nil, err
	}
	kind, ok := KindOf(r.doc.Type(n))
	if !ok {
		return nil, nodeErr(id, ErrKindMismatch)
	}
	if other, marked := r.doc.Marker(n); marked {
		return nil, nodeErr(NodeID(other), ErrIDInUse)
	}
	return r.store(id, kind, n), nil
}

func (r *Registry) store(id NodeID, kind Kind, n host.Node) *Slot {
	if int(id) >= len(r.slots) {
		grown := make([]*Slot, int(id)+1, max(int(id)+1, 2*len(r.slots)))
		copy(grown, r.slots)
		r.slots = grown
	}
	s := &Slot{ID: id, Kind: kind, Handle: n}
	r.slots[id] = s
	r.doc.Mark(n, uint32(id))
	r.live++
	return s
}

// Get returns the slot for id.
func (r *Registry) Get(id NodeID) (*Slot, error) {
	if int(id) >= len(r.slots) || r.slots[id] == nil {
		return nil, nodeErr(id, ErrUnknownNodeID)
	}
	return r.slots[id], nil
}

// Handle returns the native handle for id.
func (r *Registry) Handle(id NodeID) (host.Node, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Handle, nil
}

// Expect returns the slot for id if it has one of the given kinds.
func (r *Registry) Expect(id NodeID, kinds ...Kind) (*Slot, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if s.Kind == k {
			return s, nil
		}
	}
	return nil, nodeErr(id, fmt.Errorf("%w: is %s", ErrKindMismatch, s.Kind))
}

// Has reports whether id is live.
func (r *Registry) Has(id NodeID) bool {
	return int(id) < len(r.slots) && r.slots[id] != nil
}

// Lookup resolves a native handle back to its id. The handle's marker is
// trusted only if the slot it names still owns that exact handle.
func (r *Registry) Lookup(n host.Node) (NodeID, bool) {
	if n == nil {
		return 0, false
	}
	raw, ok := r.doc.Marker(n)
	if !ok {
		return 0, false
	}
	id := NodeID(raw)
	if !r.Has(id) || r.slots[id].Handle != n {
		return 0, false
	}
	return id, true
}

// Release removes id and every registered native descendant. It returns the
// released ids in document order, id first. The root cannot be released.
func (r *Registry) Release(id NodeID) ([]NodeID, error) {
	if id == RootID {
		return nil, nodeErr(id, ErrRootID)
	}
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	var released []NodeID
	host.Walk(r.doc, s.Handle, func(n host.Node) bool {
		if cid, ok := r.Lookup(n); ok {
			r.slots[cid] = nil
			r.live--
			released = append(released, cid)
		}
		r.doc.Unmark(n)
		return true
	})
	r.doc.Release(s.Handle)
	return released, nil
}

// Clear releases every slot except the root.
func (r *Registry) Clear() []NodeID {
	var released []NodeID
	for id := 1; id < len(r.slots); id++ {
		s := r.slots[id]
		if s == nil {
			continue
		}
		r.doc.Unmark(s.Handle)
		r.doc.Release(s.Handle)
		r.slots[id] = nil
		released = append(released, NodeID(id))
	}
	r.live = 0
	r.slots = r.slots[:1]
	return released
}

// IDs returns the live ids in ascending order, excluding the root.
func (r *Registry) IDs() []NodeID {
	ids := make([]NodeID, 0, r.live)
	for id := 1; id < len(r.slots); id++ {
		if r.slots[id] != nil {
			ids = append(ids, NodeID(id))
		}
	}
	return ids
}
