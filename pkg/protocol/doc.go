// Package protocol implements the edit-stream wire format.
//
// A producer describes document changes as batches of edits addressed by
// numeric node ids. The renderer applies them in order and answers native
// events with normalized Event values.
//
// # Wire Format
//
// Messages on a byte stream are framed with a 6-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameEdits (0x01): a Batch
//   - FrameEvent (0x02): an Event
//   - FrameDirective (0x03): a Directive flags byte
//   - FrameEvalRequest (0x04): an EvalRequest (JSON)
//   - FrameEvalResponse (0x05): an EvalResponse (JSON)
//
// # Encoding
//
//   - Varint: compact encoding for small integers and node ids
//   - ZigZag: signed integers encoded as unsigned varints
//   - Length-prefixed: strings and byte arrays prefixed with varint length
//   - Big-endian: fixed-width integers and float64
//
// A batch is encoded as [Seq: varint][Count: varint] followed by each edit,
// which starts with its op byte. Templates inside SaveTemplate are carried
// as length-prefixed JSON.
//
// Batches may also be written as JSON:
//
//	{"seq": 1, "edits": [
//	    {"op": "CreateElement", "id": 1, "tag": "p"},
//	    {"op": "CreateText", "id": 2, "text": "hi"},
//	    {"op": "AppendChildren", "id": 1, "ids": [2]},
//	    {"op": "AppendChildren", "id": 0, "ids": [1]}
//	]}
//
// # Usage Example
//
//	b := &Batch{Seq: 1, Edits: []Edit{
//	    CreateElement(1, "p", ""),
//	    SetAttribute(1, "class", Text("note")),
//	    AppendChildren(registry.RootID, 1),
//	}}
//	data, err := EncodeBatch(b)
//
//	decoded, err := DecodeBatch(data)
package protocol
