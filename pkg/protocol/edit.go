package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vango-dev/vango-web/pkg/registry"
	"github.com/vango-dev/vango-web/pkg/template"
)

// EditOp is the type of a tree-edit operation.
type EditOp uint8

// Edit operation constants.
const (
	OpCreateElement       EditOp = 0x01
	OpCreateText          EditOp = 0x02
	OpCreatePlaceholder   EditOp = 0x03
	OpSetText             EditOp = 0x04
	OpSetAttribute        EditOp = 0x05
	OpRemoveAttribute     EditOp = 0x06
	OpAppendChildren      EditOp = 0x07
	OpInsertBefore        EditOp = 0x08
	OpInsertAfter         EditOp = 0x09
	OpReplace             EditOp = 0x0A
	OpRemove              EditOp = 0x0B
	OpNewEventListener    EditOp = 0x0C
	OpRemoveEventListener EditOp = 0x0D

	// Template operations
	OpSaveTemplate EditOp = 0x20
	OpLoadTemplate EditOp = 0x21
	OpAssignPath   EditOp = 0x22
)

var opNames = map[EditOp]string{
	OpCreateElement:       "CreateElement",
	OpCreateText:          "CreateText",
	OpCreatePlaceholder:   "CreatePlaceholder",
	OpSetText:             "SetText",
	OpSetAttribute:        "SetAttribute",
	OpRemoveAttribute:     "RemoveAttribute",
	OpAppendChildren:      "AppendChildren",
	OpInsertBefore:        "InsertBefore",
	OpInsertAfter:         "InsertAfter",
	OpReplace:             "Replace",
	OpRemove:              "Remove",
	OpNewEventListener:    "NewEventListener",
	OpRemoveEventListener: "RemoveEventListener",
	OpSaveTemplate:        "SaveTemplate",
	OpLoadTemplate:        "LoadTemplate",
	OpAssignPath:          "AssignPath",
}

var opByName = func() map[string]EditOp {
	m := make(map[string]EditOp, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	return m
}()

// String returns the operation name.
func (op EditOp) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether op is a known operation.
func (op EditOp) Valid() bool {
	_, ok := opNames[op]
	return ok
}

// MarshalText encodes the operation by name.
func (op EditOp) MarshalText() ([]byte, error) {
	name, ok := opNames[op]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown edit op 0x%02x", uint8(op))
	}
	return []byte(name), nil
}

// UnmarshalText decodes an operation name.
func (op *EditOp) UnmarshalText(b []byte) error {
	v, ok := opByName[string(b)]
	if !ok {
		return fmt.Errorf("protocol: unknown edit op %q", b)
	}
	*op = v
	return nil
}

// Edit is a single tree-edit operation. Fields are interpreted per Op:
//
//	CreateElement        ID, Tag, Namespace
//	CreateText           ID, Text
//	CreatePlaceholder    ID
//	SetText              ID, Text
//	SetAttribute         ID, Name, Namespace, Value (nil removes)
//	RemoveAttribute      ID, Name, Namespace
//	AppendChildren       ID (parent), IDs
//	InsertBefore/After   ID (anchor), IDs
//	Replace              ID (old), IDs
//	Remove               ID
//	New/RemoveEventListener  ID, Name (category)
//	SaveTemplate         Template
//	LoadTemplate         ID (new), Name (template id), Index (root)
//	AssignPath           ID (new), Ref (path origin), Path
type Edit struct {
	Op        EditOp             `json:"op"`
	ID        registry.NodeID    `json:"id"`
	IDs       []registry.NodeID  `json:"ids,omitempty"`
	Ref       registry.NodeID    `json:"ref,omitempty"`
	Tag       string             `json:"tag,omitempty"`
	Namespace string             `json:"ns,omitempty"`
	Name      string             `json:"name,omitempty"`
	Text      string             `json:"text,omitempty"`
	Value     *AttrValue         `json:"value,omitempty"`
	Index     int                `json:"index,omitempty"`
	Path      []uint32           `json:"path,omitempty"`
	Template  *template.Template `json:"template,omitempty"`
}

// String returns a short description for logs.
func (e Edit) String() string {
	switch e.Op {
	case OpAppendChildren, OpInsertBefore, OpInsertAfter, OpReplace:
		return fmt.Sprintf("%s(%d, %v)", e.Op, e.ID, e.IDs)
	case OpSetAttribute, OpRemoveAttribute, OpNewEventListener, OpRemoveEventListener:
		return fmt.Sprintf("%s(%d, %q)", e.Op, e.ID, e.Name)
	case OpCreateElement:
		return fmt.Sprintf("%s(%d, %q)", e.Op, e.ID, e.Tag)
	case OpSaveTemplate:
		if e.Template != nil {
			return fmt.Sprintf("%s(%q)", e.Op, e.Template.ID)
		}
		return e.Op.String() + "()"
	case OpLoadTemplate:
		return fmt.Sprintf("%s(%q, %d, %d)", e.Op, e.Name, e.Index, e.ID)
	case OpAssignPath:
		return fmt.Sprintf("%s(%d, %v, %d)", e.Op, e.Ref, e.Path, e.ID)
	default:
		return fmt.Sprintf("%s(%d)", e.Op, e.ID)
	}
}

// Batch is one ordered synchronization pass.
type Batch struct {
	Seq   uint64 `json:"seq"`
	Edits []Edit `json:"edits"`
}

// Constructors.

func CreateElement(id registry.NodeID, tag, namespace string) Edit {
	return Edit{Op: OpCreateElement, ID: id, Tag: tag, Namespace: namespace}
}

func CreateText(id registry.NodeID, text string) Edit {
	return Edit{Op: OpCreateText, ID: id, Text: text}
}

func CreatePlaceholder(id registry.NodeID) Edit {
	return Edit{Op: OpCreatePlaceholder, ID: id}
}

func SetText(id registry.NodeID, text string) Edit {
	return Edit{Op: OpSetText, ID: id, Text: text}
}

func SetAttribute(id registry.NodeID, name string, value AttrValue) Edit {
	return Edit{Op: OpSetAttribute, ID: id, Name: name, Value: &value}
}

func SetAttributeNS(id registry.NodeID, namespace, name string, value AttrValue) Edit {
	return Edit{Op: OpSetAttribute, ID: id, Name: name, Namespace: namespace, Value: &value}
}

func RemoveAttribute(id registry.NodeID, name string) Edit {
	return Edit{Op: OpRemoveAttribute, ID: id, Name: name}
}

func AppendChildren(parent registry.NodeID, children ...registry.NodeID) Edit {
	return Edit{Op: OpAppendChildren, ID: parent, IDs: children}
}

func InsertBefore(anchor registry.NodeID, ids ...registry.NodeID) Edit {
	return Edit{Op: OpInsertBefore, ID: anchor, IDs: ids}
}

func InsertAfter(anchor registry.NodeID, ids ...registry.NodeID) Edit {
	return Edit{Op: OpInsertAfter, ID: anchor, IDs: ids}
}

func Replace(old registry.NodeID, ids ...registry.NodeID) Edit {
	return Edit{Op: OpReplace, ID: old, IDs: ids}
}

func Remove(id registry.NodeID) Edit {
	return Edit{Op: OpRemove, ID: id}
}

func NewEventListener(id registry.NodeID, category string) Edit {
	return Edit{Op: OpNewEventListener, ID: id, Name: category}
}

func RemoveEventListener(id registry.NodeID, category string) Edit {
	return Edit{Op: OpRemoveEventListener, ID: id, Name: category}
}

func SaveTemplate(t *template.Template) Edit {
	return Edit{Op: OpSaveTemplate, Template: t}
}

func LoadTemplate(templateID string, index int, id registry.NodeID) Edit {
	return Edit{Op: OpLoadTemplate, ID: id, Name: templateID, Index: index}
}

func AssignPath(ref registry.NodeID, path []uint32, id registry.NodeID) Edit {
	return Edit{Op: OpAssignPath, ID: id, Ref: ref, Path: path}
}

// EncodeBatch encodes a batch to bytes.
func EncodeBatch(b *Batch) ([]byte, error) {
	e := NewEncoder()
	if err := EncodeBatchTo(e, b); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeBatchTo encodes a batch using the provided encoder.
func EncodeBatchTo(e *Encoder, b *Batch) error {
	e.WriteUvarint(b.Seq)
	e.WriteUvarint(uint64(len(b.Edits)))
	for i := range b.Edits {
		if err := encodeEdit(e, &b.Edits[i]); err != nil {
			return fmt.Errorf("edit %d: %w", i, err)
		}
	}
	return nil
}

func encodeEdit(e *Encoder, ed *Edit) error {
	if !ed.Op.Valid() {
		return fmt.Errorf("protocol: unknown edit op 0x%02x", uint8(ed.Op))
	}
	e.PutByte(byte(ed.Op))
	e.WriteNodeID(ed.ID)

	switch ed.Op {
	case OpCreateElement:
		e.WriteString(ed.Tag)
		e.WriteString(ed.Namespace)

	case OpCreateText, OpSetText:
		e.WriteString(ed.Text)

	case OpCreatePlaceholder, OpRemove:
		// ID is sufficient

	case OpSetAttribute:
		e.WriteString(ed.Name)
		e.WriteString(ed.Namespace)
		v := None()
		if ed.Value != nil {
			v = *ed.Value
		}
		encodeAttrValue(e, v)

	case OpRemoveAttribute:
		e.WriteString(ed.Name)
		e.WriteString(ed.Namespace)

	case OpAppendChildren, OpInsertBefore, OpInsertAfter, OpReplace:
		e.WriteNodeIDs(ed.IDs)

	case OpNewEventListener, OpRemoveEventListener:
		e.WriteString(ed.Name)

	case OpSaveTemplate:
		data, err := json.Marshal(ed.Template)
		if err != nil {
			return err
		}
		e.WriteLenBytes(data)

	case OpLoadTemplate:
		e.WriteString(ed.Name)
		e.WriteUvarint(uint64(ed.Index))

	case OpAssignPath:
		e.WriteNodeID(ed.Ref)
		e.WriteUvarint(uint64(len(ed.Path)))
		for _, p := range ed.Path {
			e.WriteUvarint(uint64(p))
		}
	}
	return nil
}

// DecodeBatch decodes a batch from bytes.
func DecodeBatch(data []byte) (*Batch, error) {
	d := NewDecoder(data)
	b, err := DecodeBatchFrom(d)
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}
	return b, nil
}

// DecodeBatchFrom decodes a batch from a decoder.
func DecodeBatchFrom(d *Decoder) (*Batch, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	edits := make([]Edit, count)
	for i := range edits {
		if err := decodeEdit(d, &edits[i]); err != nil {
			return nil, fmt.Errorf("edit %d: %w", i, err)
		}
	}
	return &Batch{Seq: seq, Edits: edits}, nil
}

func decodeEdit(d *Decoder, ed *Edit) error {
	opByte, err := d.ReadByte()
	if err != nil {
		return err
	}
	ed.Op = EditOp(opByte)
	if !ed.Op.Valid() {
		return fmt.Errorf("protocol: unknown edit op 0x%02x", opByte)
	}
	if ed.ID, err = d.ReadNodeID(); err != nil {
		return err
	}

	switch ed.Op {
	case OpCreateElement:
		if ed.Tag, err = d.ReadString(); err != nil {
			return err
		}
		ed.Namespace, err = d.ReadString()

	case OpCreateText, OpSetText:
		ed.Text, err = d.ReadString()

	case OpCreatePlaceholder, OpRemove:

	case OpSetAttribute:
		if ed.Name, err = d.ReadString(); err != nil {
			return err
		}
		if ed.Namespace, err = d.ReadString(); err != nil {
			return err
		}
		var v AttrValue
		if v, err = decodeAttrValue(d); err != nil {
			return err
		}
		ed.Value = &v

	case OpRemoveAttribute:
		if ed.Name, err = d.ReadString(); err != nil {
			return err
		}
		ed.Namespace, err = d.ReadString()

	case OpAppendChildren, OpInsertBefore, OpInsertAfter, OpReplace:
		ed.IDs, err = d.ReadNodeIDs()

	case OpNewEventListener, OpRemoveEventListener:
		ed.Name, err = d.ReadString()

	case OpSaveTemplate:
		var data []byte
		if data, err = d.ReadLenBytes(); err != nil {
			return err
		}
		ed.Template = &template.Template{}
		err = json.Unmarshal(data, ed.Template)

	case OpLoadTemplate:
		if ed.Name, err = d.ReadString(); err != nil {
			return err
		}
		var idx uint64
		if idx, err = d.ReadUvarint(); err != nil {
			return err
		}
		if idx > MaxCollectionCount {
			return ErrCollectionTooLarge
		}
		ed.Index = int(idx)

	case OpAssignPath:
		if ed.Ref, err = d.ReadNodeID(); err != nil {
			return err
		}
		var n int
		if n, err = d.ReadCollectionCount(); err != nil {
			return err
		}
		ed.Path = make([]uint32, n)
		for i := range ed.Path {
			var p uint64
			if p, err = d.ReadUvarint(); err != nil {
				return err
			}
			ed.Path[i] = uint32(p)
		}
	}
	return err
}

// DecodeBatchJSON decodes a JSON-encoded batch and checks every op is known.
func DecodeBatchJSON(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	for i := range b.Edits {
		if !b.Edits[i].Op.Valid() {
			return nil, fmt.Errorf("edit %d: protocol: missing or unknown op", i)
		}
	}
	return &b, nil
}
