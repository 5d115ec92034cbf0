package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// AttrKind is the type of an attribute value.
type AttrKind uint8

const (
	// AttrNone removes the attribute when set.
	AttrNone AttrKind = iota
	AttrText
	AttrInt
	AttrFloat
	AttrBool
)

// AttrValue is a typed attribute value.
type AttrValue struct {
	Kind  AttrKind
	Text  string
	Int   int64
	Float float64
	Bool  bool
}

// Text returns a text attribute value.
func Text(s string) AttrValue { return AttrValue{Kind: AttrText, Text: s} }

// Int returns an integer attribute value.
func Int(v int64) AttrValue { return AttrValue{Kind: AttrInt, Int: v} }

// Float returns a float attribute value.
func Float(v float64) AttrValue { return AttrValue{Kind: AttrFloat, Float: v} }

// Bool returns a boolean attribute value.
func Bool(v bool) AttrValue { return AttrValue{Kind: AttrBool, Bool: v} }

// None returns the value that removes an attribute.
func None() AttrValue { return AttrValue{} }

// IsNone reports whether the value removes the attribute.
func (v AttrValue) IsNone() bool { return v.Kind == AttrNone }

// String renders the value the way it is written into the document.
func (v AttrValue) String() string {
	switch v.Kind {
	case AttrText:
		return v.Text
	case AttrInt:
		return strconv.FormatInt(v.Int, 10)
	case AttrFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case AttrBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as a plain JSON scalar (null for None).
func (v AttrValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AttrText:
		return json.Marshal(v.Text)
	case AttrInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case AttrFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return nil, fmt.Errorf("protocol: unsupported float attribute %v", v.Float)
		}
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		if !bytes.ContainsAny([]byte(s), ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case AttrBool:
		return []byte(strconv.FormatBool(v.Bool)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Numbers without a fraction or exponent
// decode as AttrInt.
func (v *AttrValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = None()
	case bytes.Equal(data, []byte("true")):
		*v = Bool(true)
	case bytes.Equal(data, []byte("false")):
		*v = Bool(false)
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	default:
		s := string(data)
		if !bytes.ContainsAny(data, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				*v = Int(i)
				return nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("protocol: invalid attribute value %s", s)
		}
		*v = Float(f)
	}
	return nil
}

func encodeAttrValue(e *Encoder, v AttrValue) {
	e.PutByte(byte(v.Kind))
	switch v.Kind {
	case AttrText:
		e.WriteString(v.Text)
	case AttrInt:
		e.WriteSvarint(v.Int)
	case AttrFloat:
		e.WriteFloat64(v.Float)
	case AttrBool:
		e.WriteBool(v.Bool)
	}
}

func decodeAttrValue(d *Decoder) (AttrValue, error) {
	k, err := d.ReadByte()
	if err != nil {
		return AttrValue{}, err
	}
	v := AttrValue{Kind: AttrKind(k)}
	switch v.Kind {
	case AttrNone:
	case AttrText:
		v.Text, err = d.ReadString()
	case AttrInt:
		v.Int, err = d.ReadSvarint()
	case AttrFloat:
		v.Float, err = d.ReadFloat64()
	case AttrBool:
		v.Bool, err = d.ReadBool()
	default:
		return AttrValue{}, fmt.Errorf("protocol: unknown attribute kind 0x%02x", k)
	}
	return v, err
}
