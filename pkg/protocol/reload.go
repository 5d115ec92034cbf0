package protocol

import (
	"encoding/json"
	"fmt"
)

// Hot-reload message kinds.
const (
	// ReloadTemplateUpdate replaces a template definition. Payload is a
	// template.Template.
	ReloadTemplateUpdate = "template-update"

	// ReloadTemplatePatch applies an RFC 6902 patch to a cached template.
	// Payload is a TemplatePatch.
	ReloadTemplatePatch = "template-patch"

	// ReloadFull asks listeners to reload everything. Renderers ignore it.
	ReloadFull = "reload"
)

// ReloadMessage is a single message on the hot-reload channel.
type ReloadMessage struct {
	Kind    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TemplatePatch is the payload of a template-patch message.
type TemplatePatch struct {
	ID    string          `json:"id"`
	Patch json.RawMessage `json:"patch"`
}

// DecodeReloadMessage decodes a hot-reload message and checks it has a kind.
func DecodeReloadMessage(data []byte) (*ReloadMessage, error) {
	var msg ReloadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: invalid reload message: %w", err)
	}
	if msg.Kind == "" {
		return nil, fmt.Errorf("protocol: reload message without type")
	}
	return &msg, nil
}
