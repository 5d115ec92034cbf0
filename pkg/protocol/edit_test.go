package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/vango-dev/vango-web/pkg/registry"
	"github.com/vango-dev/vango-web/pkg/template"
)

func sampleBatch() *Batch {
	return &Batch{
		Seq: 7,
		Edits: []Edit{
			SaveTemplate(&template.Template{
				ID: "card",
				Roots: []template.Node{{
					Kind: template.KindElement,
					Tag:  "div",
					Attrs: []template.Attr{
						{Name: "class", Value: "card"},
					},
					Children: []template.Node{
						{Kind: template.KindText, Text: "Title"},
						{Kind: template.KindDynamic, Slot: 1},
					},
				}},
			}),
			CreateElement(1, "div", ""),
			CreateElement(2, "svg", "http://www.w3.org/2000/svg"),
			CreateText(3, "hello"),
			CreatePlaceholder(4),
			SetText(3, "world"),
			SetAttribute(1, "class", Text("box")),
			SetAttribute(1, "tabindex", Int(-1)),
			SetAttribute(1, "data-ratio", Float(0.5)),
			SetAttribute(1, "hidden", Bool(true)),
			SetAttributeNS(2, "http://www.w3.org/1999/xlink", "href", Text("#a")),
			RemoveAttribute(1, "title"),
			AppendChildren(1, 2, 3),
			InsertBefore(3, 4),
			InsertAfter(3, 5),
			Replace(4, 6, 7),
			Remove(7),
			NewEventListener(1, "click"),
			RemoveEventListener(1, "click"),
			LoadTemplate("card", 0, 10),
			AssignPath(10, []uint32{1}, 11),
			AppendChildren(registry.RootID, 1),
		},
	}
}

func TestBatchBinaryRoundTrip(t *testing.T) {
	b := sampleBatch()

	data, err := EncodeBatch(b)
	if err != nil {
		t.Fatalf("EncodeBatch() error = %v", err)
	}

	got, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}

	if diff := cmp.Diff(b, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchJSONRoundTrip(t *testing.T) {
	input := `{"seq": 3, "edits": [
		{"op": "CreateElement", "id": 1, "tag": "p"},
		{"op": "CreateText", "id": 2, "text": "hi"},
		{"op": "SetAttribute", "id": 1, "name": "count", "value": 3},
		{"op": "SetAttribute", "id": 1, "name": "ratio", "value": 1.5},
		{"op": "SetAttribute", "id": 1, "name": "open", "value": false},
		{"op": "SetAttribute", "id": 1, "name": "gone", "value": null},
		{"op": "AppendChildren", "id": 1, "ids": [2]},
		{"op": "AppendChildren", "id": 0, "ids": [1]}
	]}`

	b, err := DecodeBatchJSON([]byte(input))
	if err != nil {
		t.Fatalf("DecodeBatchJSON() error = %v", err)
	}
	if b.Seq != 3 || len(b.Edits) != 8 {
		t.Fatalf("got seq=%d edits=%d, want 3 and 8", b.Seq, len(b.Edits))
	}

	tests := []struct {
		index int
		want  *AttrValue
	}{
		{2, ptr(Int(3))},
		{3, ptr(Float(1.5))},
		{4, ptr(Bool(false))},
		{5, nil},
	}
	for _, tc := range tests {
		got := b.Edits[tc.index].Value
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("edit %d value mismatch (-want +got):\n%s", tc.index, diff)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func TestDecodeBatchJSONUnknownOp(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown_name", `{"seq": 1, "edits": [{"op": "Explode", "id": 1}]}`},
		{"missing_op", `{"seq": 1, "edits": [{"id": 1}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeBatchJSON([]byte(tc.input)); err == nil {
				t.Error("DecodeBatchJSON() expected error")
			}
		})
	}
}

func TestEncodeBatchRejectsUnknownOp(t *testing.T) {
	b := &Batch{Edits: []Edit{{Op: 0x7F, ID: 1}}}
	if _, err := EncodeBatch(b); err == nil {
		t.Error("EncodeBatch() expected error for unknown op")
	}
}

func TestDecodeBatchErrors(t *testing.T) {
	valid, err := EncodeBatch(&Batch{Seq: 1, Edits: []Edit{CreateText(1, "abc")}})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"truncated", valid[:len(valid)-1], io.ErrUnexpectedEOF},
		{"trailing", append(append([]byte{}, valid...), 0x00), ErrTrailingBytes},
		{"huge_count", []byte{0x01, 0xFF, 0xFF, 0xFF, 0x7F}, ErrCollectionTooLarge},
		{"id_out_of_range", []byte{0x01, 0x01, byte(OpRemove), 0x80, 0x80, 0x80, 0x08}, ErrNodeIDRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeBatch(tc.data)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("DecodeBatch() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDecodeBatchUnknownOpByte(t *testing.T) {
	_, err := DecodeBatch([]byte{0x01, 0x01, 0x7F, 0x01})
	if err == nil || !strings.Contains(err.Error(), "unknown edit op") {
		t.Errorf("DecodeBatch() error = %v, want unknown edit op", err)
	}
}

func TestEditString(t *testing.T) {
	tests := []struct {
		edit Edit
		want string
	}{
		{CreateElement(1, "div", ""), `CreateElement(1, "div")`},
		{AppendChildren(0, 1, 2), "AppendChildren(0, [1 2])"},
		{SetAttribute(3, "class", Text("x")), `SetAttribute(3, "class")`},
		{LoadTemplate("card", 1, 9), `LoadTemplate("card", 1, 9)`},
		{AssignPath(9, []uint32{0, 2}, 10), "AssignPath(9, [0 2], 10)"},
		{Remove(4), "Remove(4)"},
	}
	for _, tc := range tests {
		if got := tc.edit.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestAttrValueString(t *testing.T) {
	tests := []struct {
		value AttrValue
		want  string
	}{
		{Text("a b"), "a b"},
		{Int(-12), "-12"},
		{Float(2.5), "2.5"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{None(), ""},
	}
	for _, tc := range tests {
		if got := tc.value.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestAttrValueFloatJSONKeepsKind(t *testing.T) {
	data, err := Float(2).MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "2.0" {
		t.Fatalf("MarshalJSON() = %s, want 2.0", data)
	}
	var v AttrValue
	if err := v.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if v.Kind != AttrFloat {
		t.Errorf("Kind = %v, want AttrFloat", v.Kind)
	}
}

func TestFrameHeaderLayout(t *testing.T) {
	payload := make([]byte, 0x0102)
	f := &Frame{Type: FrameEdits, Flags: FlagJSON, Payload: payload}

	data := f.Encode()
	want := []byte{byte(FrameEdits), byte(FlagJSON), 0x00, 0x00, 0x01, 0x02}
	if diff := cmp.Diff(want, data[:FrameHeaderSize]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	got, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if got.Type != FrameEdits || !got.Flags.Has(FlagJSON) || len(got.Payload) != len(payload) {
		t.Errorf("DecodeFrame() = type %v flags %v len %d", got.Type, got.Flags, len(got.Payload))
	}
}

func TestDecoderReadUint32(t *testing.T) {
	d := NewDecoder([]byte{0xde, 0xad, 0xbe, 0xef, 0x01})
	v, err := d.ReadUint32()
	if err != nil || v != 0xdeadbeef {
		t.Fatalf("ReadUint32() = %#x, %v", v, err)
	}
	if _, err := d.ReadUint32(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short ReadUint32() error = %v, want ErrUnexpectedEOF", err)
	}
}
