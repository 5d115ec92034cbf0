package interp

import (
	"fmt"

	"github.com/vango-dev/vango-web/pkg/host"
	"github.com/vango-dev/vango-web/pkg/registry"
	"github.com/vango-dev/vango-web/pkg/template"
)

func nodeErr(id registry.NodeID, err error) error {
	return &registry.NodeError{ID: id, Err: err}
}

// movable resolves ids that are about to be placed under parent. All ids are
// checked before anything is touched, so a bad id never leaves half an edit
// applied.
func (in *Interpreter) movable(parent host.Node, anchor registry.NodeID, ids []registry.NodeID) ([]host.Node, error) {
	handles := make([]host.Node, len(ids))
	for i, id := range ids {
		if id == registry.RootID {
			return nil, nodeErr(id, registry.ErrRootID)
		}
		if id == anchor {
			return nil, nodeErr(id, ErrCycle)
		}
		h, err := in.reg.Handle(id)
		if err != nil {
			return nil, err
		}
		if host.Contains(in.doc, h, parent) {
			return nil, nodeErr(id, ErrCycle)
		}
		handles[i] = h
	}
	return handles, nil
}

// detach removes each handle from its current parent and remembers the ones
// that were not yet under the root.
func (in *Interpreter) detach(ids []registry.NodeID, handles []host.Node) error {
	root := in.doc.Root()
	for i, h := range handles {
		p := in.doc.Parent(h)
		if p == nil {
			in.noteAttach(ids[i])
			continue
		}
		if !host.Contains(in.doc, root, p) {
			in.noteAttach(ids[i])
		}
		if err := in.doc.RemoveChild(p, h); err != nil {
			return nodeErr(ids[i], err)
		}
	}
	return nil
}

func (in *Interpreter) noteAttach(id registry.NodeID) {
	if in.mountReporting && in.sink != nil {
		in.pendingMount = append(in.pendingMount, id)
	}
}

func (in *Interpreter) appendChildren(parentID registry.NodeID, ids []registry.NodeID) error {
	parent, err := in.reg.Expect(parentID, registry.KindElement, registry.KindRoot)
	if err != nil {
		return err
	}
	handles, err := in.movable(parent.Handle, parentID, ids)
	if err != nil {
		return err
	}
	if err := in.detach(ids, handles); err != nil {
		return err
	}
	for i, h := range handles {
		if err := in.doc.AppendChild(parent.Handle, h); err != nil {
			return nodeErr(ids[i], err)
		}
	}
	return nil
}

// insert places ids next to the anchor, before it or after it, keeping their
// given order.
func (in *Interpreter) insert(anchorID registry.NodeID, ids []registry.NodeID, after bool) error {
	anchor, err := in.reg.Handle(anchorID)
	if err != nil {
		return err
	}
	parent := in.doc.Parent(anchor)
	if parent == nil {
		return nodeErr(anchorID, ErrDetached)
	}
	handles, err := in.movable(parent, anchorID, ids)
	if err != nil {
		return err
	}
	if err := in.detach(ids, handles); err != nil {
		return err
	}

	ref := anchor
	if after {
		ref = in.nextSibling(parent, anchor)
	}
	for i, h := range handles {
		if ref == nil {
			err = in.doc.AppendChild(parent, h)
		} else {
			err = in.doc.InsertBefore(parent, h, ref)
		}
		if err != nil {
			return nodeErr(ids[i], err)
		}
	}
	return nil
}

func (in *Interpreter) nextSibling(parent, n host.Node) host.Node {
	children := in.doc.Children(parent)
	for i, c := range children {
		if c == n && i+1 < len(children) {
			return children[i+1]
		}
	}
	return nil
}

func (in *Interpreter) replace(oldID registry.NodeID, ids []registry.NodeID) error {
	if oldID == registry.RootID {
		return nodeErr(oldID, registry.ErrRootID)
	}
	old, err := in.reg.Handle(oldID)
	if err != nil {
		return err
	}
	parent := in.doc.Parent(old)
	if parent == nil {
		return nodeErr(oldID, ErrDetached)
	}
	handles, err := in.movable(parent, oldID, ids)
	if err != nil {
		return err
	}
	for _, h := range handles {
		if host.Contains(in.doc, old, h) {
			return nodeErr(oldID, ErrCycle)
		}
	}
	if err := in.detach(ids, handles); err != nil {
		return err
	}
	for i, h := range handles {
		if err := in.doc.InsertBefore(parent, h, old); err != nil {
			return nodeErr(ids[i], err)
		}
	}
	return in.destroy(oldID, parent, old)
}

func (in *Interpreter) remove(id registry.NodeID) error {
	if id == registry.RootID {
		return nodeErr(id, registry.ErrRootID)
	}
	h, err := in.reg.Handle(id)
	if err != nil {
		return err
	}
	parent := in.doc.Parent(h)
	if parent == nil {
		return nodeErr(id, ErrDetached)
	}
	return in.destroy(id, parent, h)
}

// destroy detaches n and releases id with every registered descendant.
func (in *Interpreter) destroy(id registry.NodeID, parent, n host.Node) error {
	if err := in.doc.RemoveChild(parent, n); err != nil {
		return nodeErr(id, err)
	}
	released, err := in.reg.Release(id)
	if err != nil {
		return err
	}
	if in.sink != nil {
		in.sink.Revoke(released...)
	}
	return nil
}

func (in *Interpreter) loadTemplate(templateID string, index int, id registry.NodeID) error {
	switch {
	case id == registry.RootID:
		return nodeErr(id, registry.ErrRootID)
	case in.reg.Has(id):
		return nodeErr(id, registry.ErrIDInUse)
	}
	t, err := in.templates.Get(templateID)
	if err != nil {
		return err
	}
	key := protoKey{id: templateID, version: in.templates.Version(templateID), index: index}
	proto, ok := in.protos[key]
	if !ok {
		root, err := t.Root(index)
		if err != nil {
			return err
		}
		if proto, err = in.build(root); err != nil {
			return nodeErr(id, fmt.Errorf("%w: %w", registry.ErrAllocation, err))
		}
		in.protos[key] = proto
	}
	n, err := in.doc.Clone(proto)
	if err != nil {
		return nodeErr(id, fmt.Errorf("%w: %w", registry.ErrAllocation, err))
	}
	_, err = in.reg.Bind(id, n)
	return err
}

// build materializes a template node. Dynamic positions become placeholders.
func (in *Interpreter) build(tn *template.Node) (host.Node, error) {
	switch tn.Kind {
	case template.KindText:
		return in.doc.CreateText(tn.Text)
	case template.KindDynamic:
		return in.doc.CreatePlaceholder()
	}

	n, err := in.doc.CreateElement(tn.Tag, tn.Namespace)
	if err != nil {
		return nil, err
	}
	for _, a := range tn.Attrs {
		if err := in.doc.SetAttribute(n, a.Namespace, a.Name, a.Value); err != nil {
			return nil, err
		}
	}
	for i := range tn.Children {
		c, err := in.build(&tn.Children[i])
		if err != nil {
			return nil, err
		}
		if err := in.doc.AppendChild(n, c); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (in *Interpreter) assignPath(ref registry.NodeID, path []uint32, id registry.NodeID) error {
	n, err := in.reg.Handle(ref)
	if err != nil {
		return err
	}
	for depth, idx := range path {
		children := in.doc.Children(n)
		if int(idx) >= len(children) {
			return nodeErr(id, fmt.Errorf("%w: index %d at depth %d", ErrBadPath, idx, depth))
		}
		n = children[idx]
	}
	_, err = in.reg.Bind(id, n)
	return err
}

// flushMounts reports nodes attached under the root during the batch, with
// their registered descendants, in attach order.
func (in *Interpreter) flushMounts() {
	if len(in.pendingMount) == 0 {
		return
	}
	root := in.doc.Root()
	seen := make(map[registry.NodeID]bool)
	for _, id := range in.pendingMount {
		h, err := in.reg.Handle(id)
		if err != nil || !host.Contains(in.doc, root, h) {
			continue
		}
		host.Walk(in.doc, h, func(n host.Node) bool {
			if cid, ok := in.reg.Lookup(n); ok && !seen[cid] {
				seen[cid] = true
				in.sink.Mounted(cid)
			}
			return true
		})
	}
	in.pendingMount = in.pendingMount[:0]
}
