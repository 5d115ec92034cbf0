package bridge

import (
	"github.com/vango-dev/vango-web/pkg/host"
	"github.com/vango-dev/vango-web/pkg/protocol"
)

// normalize extracts the category-specific fields of a native event.
func (b *Bridge) normalize(category string, ev host.Event) protocol.EventData {
	switch protocol.FamilyOf(category) {
	case protocol.FamilyMouse:
		return mouseData(ev)
	case protocol.FamilyKeyboard:
		return protocol.KeyboardData{
			Key:       ev.StringField("key"),
			Code:      ev.StringField("code"),
			Location:  int(ev.FloatField("location")),
			Repeat:    ev.BoolField("repeat"),
			Modifiers: modifiers(ev),
		}
	case protocol.FamilyForm:
		return protocol.FormData{
			Value:   ev.StringField("value"),
			Checked: ev.BoolField("checked"),
			Files:   b.ingestFiles(ev.Files()),
		}
	case protocol.FamilyFocus:
		return protocol.FocusData{}
	case protocol.FamilyWheel:
		return protocol.WheelData{
			DeltaX:    ev.FloatField("deltaX"),
			DeltaY:    ev.FloatField("deltaY"),
			DeltaZ:    ev.FloatField("deltaZ"),
			DeltaMode: int(ev.FloatField("deltaMode")),
		}
	case protocol.FamilyScroll:
		return protocol.ScrollData{
			ScrollTop:  ev.FloatField("scrollTop"),
			ScrollLeft: ev.FloatField("scrollLeft"),
		}
	case protocol.FamilyDrag:
		return protocol.DragData{
			Mouse: mouseData(ev),
			Files: b.ingestFiles(ev.Files()),
		}
	default:
		return nil
	}
}

func mouseData(ev host.Event) protocol.MouseData {
	return protocol.MouseData{
		ClientX:   ev.FloatField("clientX"),
		ClientY:   ev.FloatField("clientY"),
		PageX:     ev.FloatField("pageX"),
		PageY:     ev.FloatField("pageY"),
		Button:    int(ev.FloatField("button")),
		Buttons:   int(ev.FloatField("buttons")),
		Modifiers: modifiers(ev),
	}
}

func modifiers(ev host.Event) protocol.Modifiers {
	var m protocol.Modifiers
	if ev.BoolField("ctrlKey") {
		m |= protocol.ModCtrl
	}
	if ev.BoolField("shiftKey") {
		m |= protocol.ModShift
	}
	if ev.BoolField("altKey") {
		m |= protocol.ModAlt
	}
	if ev.BoolField("metaKey") {
		m |= protocol.ModMeta
	}
	return m
}
