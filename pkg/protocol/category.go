package protocol

// Family groups event categories that share a payload shape.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyMouse
	FamilyKeyboard
	FamilyForm
	FamilyFocus
	FamilyWheel
	FamilyScroll
	FamilyDrag
	FamilyMounted
)

// String returns the string representation of the family.
func (f Family) String() string {
	switch f {
	case FamilyMouse:
		return "mouse"
	case FamilyKeyboard:
		return "keyboard"
	case FamilyForm:
		return "form"
	case FamilyFocus:
		return "focus"
	case FamilyWheel:
		return "wheel"
	case FamilyScroll:
		return "scroll"
	case FamilyDrag:
		return "drag"
	case FamilyMounted:
		return "mounted"
	default:
		return "none"
	}
}

// CategoryMounted is the synthetic category reported when a node is attached
// to the live tree. It has no native listener.
const CategoryMounted = "mounted"

type categoryInfo struct {
	family  Family
	bubbles bool
}

var categories = map[string]categoryInfo{
	// Mouse
	"click":       {FamilyMouse, true},
	"dblclick":    {FamilyMouse, true},
	"contextmenu": {FamilyMouse, true},
	"mousedown":   {FamilyMouse, true},
	"mouseup":     {FamilyMouse, true},
	"mousemove":   {FamilyMouse, true},
	"mouseover":   {FamilyMouse, true},
	"mouseout":    {FamilyMouse, true},
	"mouseenter":  {FamilyMouse, false},
	"mouseleave":  {FamilyMouse, false},

	// Pointer (mouse-shaped payload)
	"pointerdown":  {FamilyMouse, true},
	"pointerup":    {FamilyMouse, true},
	"pointermove":  {FamilyMouse, true},
	"pointerenter": {FamilyMouse, false},
	"pointerleave": {FamilyMouse, false},

	// Keyboard
	"keydown":  {FamilyKeyboard, true},
	"keyup":    {FamilyKeyboard, true},
	"keypress": {FamilyKeyboard, true},

	// Form
	"input":   {FamilyForm, true},
	"change":  {FamilyForm, true},
	"submit":  {FamilyForm, true},
	"reset":   {FamilyForm, true},
	"invalid": {FamilyForm, false},

	// Focus
	"focus":    {FamilyFocus, false},
	"blur":     {FamilyFocus, false},
	"focusin":  {FamilyFocus, true},
	"focusout": {FamilyFocus, true},

	"wheel":  {FamilyWheel, true},
	"scroll": {FamilyScroll, false},

	// Drag
	"dragstart": {FamilyDrag, true},
	"drag":      {FamilyDrag, true},
	"dragend":   {FamilyDrag, true},
	"dragenter": {FamilyDrag, true},
	"dragover":  {FamilyDrag, true},
	"dragleave": {FamilyDrag, true},
	"drop":      {FamilyDrag, true},

	// Resource, media and window (no payload)
	"load":           {FamilyNone, false},
	"unload":         {FamilyNone, false},
	"error":          {FamilyNone, false},
	"abort":          {FamilyNone, false},
	"resize":         {FamilyNone, false},
	"toggle":         {FamilyNone, false},
	"play":           {FamilyNone, false},
	"pause":          {FamilyNone, false},
	"playing":        {FamilyNone, false},
	"ended":          {FamilyNone, false},
	"canplay":        {FamilyNone, false},
	"loadeddata":     {FamilyNone, false},
	"loadedmetadata": {FamilyNone, false},
	"timeupdate":     {FamilyNone, false},
	"volumechange":   {FamilyNone, false},
	"seeking":        {FamilyNone, false},
	"seeked":         {FamilyNone, false},

	CategoryMounted: {FamilyMounted, false},
}

// FamilyOf returns the payload family for a category. Unknown categories
// carry no payload.
func FamilyOf(category string) Family {
	return categories[category].family
}

// Bubbles reports whether events of category bubble natively. Unknown
// categories are assumed to bubble.
func Bubbles(category string) bool {
	info, ok := categories[category]
	if !ok {
		return true
	}
	return info.bubbles
}

// Capture reports whether the delegated root listener for category must run
// in the capture phase. Non-bubbling and unknown categories use capture, which
// sees events whether or not they bubble.
func Capture(category string) bool {
	info, ok := categories[category]
	return !ok || !info.bubbles
}

// IsSynthetic reports whether category is produced by the renderer rather
// than the native environment.
func IsSynthetic(category string) bool {
	return category == CategoryMounted
}
