package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vango-dev/vango-web/pkg/registry"
)

// Modifiers represents keyboard/mouse modifier keys.
type Modifiers uint8

const (
	ModCtrl  Modifiers = 0x01
	ModShift Modifiers = 0x02
	ModAlt   Modifiers = 0x04
	ModMeta  Modifiers = 0x08
)

// Has returns true if the specified modifier is set.
func (m Modifiers) Has(mod Modifiers) bool {
	return m&mod != 0
}

// EventData is the category-specific part of an event.
type EventData interface {
	Family() Family
}

// MouseData contains mouse and pointer event data.
type MouseData struct {
	ClientX   float64   `json:"clientX"`
	ClientY   float64   `json:"clientY"`
	PageX     float64   `json:"pageX"`
	PageY     float64   `json:"pageY"`
	Button    int       `json:"button"`
	Buttons   int       `json:"buttons"`
	Modifiers Modifiers `json:"modifiers"`
}

// KeyboardData contains keyboard event data.
type KeyboardData struct {
	Key       string    `json:"key"`
	Code      string    `json:"code"`
	Location  int       `json:"location"`
	Repeat    bool      `json:"repeat"`
	Modifiers Modifiers `json:"modifiers"`
}

// FileInfo describes a file handle carried by an event. IngestID is set when
// the file was handed to the ingest store.
type FileInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	IngestID    string `json:"ingestId,omitempty"`
}

// FormData contains input/change/submit data.
type FormData struct {
	Value   string     `json:"value"`
	Checked bool       `json:"checked"`
	Files   []FileInfo `json:"files,omitempty"`
}

// FocusData is empty; focus events carry no payload.
type FocusData struct{}

// WheelData contains wheel event data.
type WheelData struct {
	DeltaX    float64 `json:"deltaX"`
	DeltaY    float64 `json:"deltaY"`
	DeltaZ    float64 `json:"deltaZ"`
	DeltaMode int     `json:"deltaMode"`
}

// ScrollData contains the target's scroll offsets.
type ScrollData struct {
	ScrollTop  float64 `json:"scrollTop"`
	ScrollLeft float64 `json:"scrollLeft"`
}

// DragData contains drag/drop data.
type DragData struct {
	Mouse MouseData  `json:"mouse"`
	Files []FileInfo `json:"files,omitempty"`
}

// MountedData is reported when a node is attached to the live tree.
type MountedData struct{}

func (MouseData) Family() Family    { return FamilyMouse }
func (KeyboardData) Family() Family { return FamilyKeyboard }
func (FormData) Family() Family     { return FamilyForm }
func (FocusData) Family() Family    { return FamilyFocus }
func (WheelData) Family() Family    { return FamilyWheel }
func (ScrollData) Family() Family   { return FamilyScroll }
func (DragData) Family() Family     { return FamilyDrag }
func (MountedData) Family() Family  { return FamilyMounted }

// Event is a normalized event forwarded to the abstract event pipeline.
type Event struct {
	Category string
	NodeID   registry.NodeID
	Bubbles  bool
	Data     EventData
}

// Directive is the pipeline's answer to an event.
type Directive struct {
	StopPropagation bool `json:"stopPropagation"`
	PreventDefault  bool `json:"preventDefault"`
}

// MarshalJSON encodes the event with its payload family.
func (ev Event) MarshalJSON() ([]byte, error) {
	family := FamilyNone
	if ev.Data != nil {
		family = ev.Data.Family()
	}
	return json.Marshal(struct {
		Category string          `json:"category"`
		NodeID   registry.NodeID `json:"nodeId"`
		Bubbles  bool            `json:"bubbles"`
		Family   string          `json:"family"`
		Data     EventData       `json:"data,omitempty"`
	}{ev.Category, ev.NodeID, ev.Bubbles, family.String(), ev.Data})
}

// EncodeEvent encodes an event to bytes.
func EncodeEvent(ev *Event) []byte {
	e := NewEncoder()
	EncodeEventTo(e, ev)
	return e.Bytes()
}

// EncodeEventTo encodes an event using the provided encoder.
func EncodeEventTo(e *Encoder, ev *Event) {
	e.WriteString(ev.Category)
	e.WriteNodeID(ev.NodeID)
	e.WriteBool(ev.Bubbles)

	if ev.Data == nil {
		e.PutByte(byte(FamilyNone))
		return
	}
	e.PutByte(byte(ev.Data.Family()))

	switch d := ev.Data.(type) {
	case MouseData:
		encodeMouse(e, &d)
	case KeyboardData:
		e.WriteString(d.Key)
		e.WriteString(d.Code)
		e.WriteUvarint(uint64(d.Location))
		e.WriteBool(d.Repeat)
		e.PutByte(byte(d.Modifiers))
	case FormData:
		e.WriteString(d.Value)
		e.WriteBool(d.Checked)
		encodeFiles(e, d.Files)
	case WheelData:
		e.WriteFloat64(d.DeltaX)
		e.WriteFloat64(d.DeltaY)
		e.WriteFloat64(d.DeltaZ)
		e.WriteUvarint(uint64(d.DeltaMode))
	case ScrollData:
		e.WriteFloat64(d.ScrollTop)
		e.WriteFloat64(d.ScrollLeft)
	case DragData:
		encodeMouse(e, &d.Mouse)
		encodeFiles(e, d.Files)
	case FocusData, MountedData:
		// No payload
	}
}

func encodeMouse(e *Encoder, m *MouseData) {
	e.WriteFloat64(m.ClientX)
	e.WriteFloat64(m.ClientY)
	e.WriteFloat64(m.PageX)
	e.WriteFloat64(m.PageY)
	e.WriteSvarint(int64(m.Button))
	e.WriteUvarint(uint64(m.Buttons))
	e.PutByte(byte(m.Modifiers))
}

func encodeFiles(e *Encoder, files []FileInfo) {
	e.WriteUvarint(uint64(len(files)))
	for _, f := range files {
		e.WriteString(f.Name)
		e.WriteString(f.ContentType)
		e.WriteSvarint(f.Size)
		e.WriteString(f.IngestID)
	}
}

// DecodeEvent decodes an event from bytes.
func DecodeEvent(data []byte) (*Event, error) {
	d := NewDecoder(data)
	ev, err := DecodeEventFrom(d)
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}
	return ev, nil
}

// DecodeEventFrom decodes an event from a decoder.
func DecodeEventFrom(d *Decoder) (*Event, error) {
	var (
		ev  Event
		err error
	)
	if ev.Category, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ev.NodeID, err = d.ReadNodeID(); err != nil {
		return nil, err
	}
	if ev.Bubbles, err = d.ReadBool(); err != nil {
		return nil, err
	}
	fb, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	switch Family(fb) {
	case FamilyNone:
	case FamilyMouse:
		var m MouseData
		err = decodeMouse(d, &m)
		ev.Data = m
	case FamilyKeyboard:
		var k KeyboardData
		err = decodeKeyboard(d, &k)
		ev.Data = k
	case FamilyForm:
		var f FormData
		if f.Value, err = d.ReadString(); err != nil {
			return nil, err
		}
		if f.Checked, err = d.ReadBool(); err != nil {
			return nil, err
		}
		f.Files, err = decodeFiles(d)
		ev.Data = f
	case FamilyFocus:
		ev.Data = FocusData{}
	case FamilyWheel:
		var w WheelData
		err = decodeWheel(d, &w)
		ev.Data = w
	case FamilyScroll:
		var s ScrollData
		if s.ScrollTop, err = d.ReadFloat64(); err != nil {
			return nil, err
		}
		s.ScrollLeft, err = d.ReadFloat64()
		ev.Data = s
	case FamilyDrag:
		var dd DragData
		if err = decodeMouse(d, &dd.Mouse); err != nil {
			return nil, err
		}
		dd.Files, err = decodeFiles(d)
		ev.Data = dd
	case FamilyMounted:
		ev.Data = MountedData{}
	default:
		return nil, fmt.Errorf("protocol: unknown event family 0x%02x", fb)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func decodeMouse(d *Decoder, m *MouseData) error {
	var err error
	for _, f := range []*float64{&m.ClientX, &m.ClientY, &m.PageX, &m.PageY} {
		if *f, err = d.ReadFloat64(); err != nil {
			return err
		}
	}
	button, err := d.ReadSvarint()
	if err != nil {
		return err
	}
	m.Button = int(button)
	buttons, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	m.Buttons = int(buttons)
	mods, err := d.ReadByte()
	m.Modifiers = Modifiers(mods)
	return err
}

func decodeKeyboard(d *Decoder, k *KeyboardData) error {
	var err error
	if k.Key, err = d.ReadString(); err != nil {
		return err
	}
	if k.Code, err = d.ReadString(); err != nil {
		return err
	}
	loc, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	k.Location = int(loc)
	if k.Repeat, err = d.ReadBool(); err != nil {
		return err
	}
	mods, err := d.ReadByte()
	k.Modifiers = Modifiers(mods)
	return err
}

func decodeWheel(d *Decoder, w *WheelData) error {
	var err error
	for _, f := range []*float64{&w.DeltaX, &w.DeltaY, &w.DeltaZ} {
		if *f, err = d.ReadFloat64(); err != nil {
			return err
		}
	}
	mode, err := d.ReadUvarint()
	w.DeltaMode = int(mode)
	return err
}

func decodeFiles(d *Decoder) ([]FileInfo, error) {
	n, err := d.ReadCollectionCount()
	if err != nil || n == 0 {
		return nil, err
	}
	files := make([]FileInfo, n)
	for i := range files {
		f := &files[i]
		if f.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
		if f.ContentType, err = d.ReadString(); err != nil {
			return nil, err
		}
		if f.Size, err = d.ReadSvarint(); err != nil {
			return nil, err
		}
		if f.IngestID, err = d.ReadString(); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// EncodeDirective encodes a directive as a single flags byte.
func EncodeDirective(dir *Directive) []byte {
	var b byte
	if dir != nil {
		if dir.StopPropagation {
			b |= 0x01
		}
		if dir.PreventDefault {
			b |= 0x02
		}
	}
	return []byte{b}
}

// DecodeDirective decodes a directive flags byte.
func DecodeDirective(data []byte) (*Directive, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("protocol: directive must be 1 byte, got %d", len(data))
	}
	return &Directive{
		StopPropagation: data[0]&0x01 != 0,
		PreventDefault:  data[0]&0x02 != 0,
	}, nil
}
