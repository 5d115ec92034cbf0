package htmldoc

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/vango-web/pkg/host"
)

func mustElement(t *testing.T, d *Document, tag string) host.Node {
	t.Helper()
	n, err := d.CreateElement(tag, "")
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func mustText(t *testing.T, d *Document, s string) host.Node {
	t.Helper()
	n, err := d.CreateText(s)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestTreeManipulation(t *testing.T) {
	d := New()
	ul := mustElement(t, d, "ul")
	a := mustText(t, d, "a")
	c := mustText(t, d, "c")
	b := mustText(t, d, "b")

	steps := []error{
		d.AppendChild(d.Root(), ul),
		d.AppendChild(ul, a),
		d.AppendChild(ul, c),
		d.InsertBefore(ul, b, c),
		d.SetAttribute(ul, "", "class", "list"),
		d.SetAttribute(ul, "", "class", "menu"),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if got, want := d.HTML(), `<div id="main"><ul class="menu">abc</ul></div>`; got != want {
		t.Errorf("HTML() = %s, want %s", got, want)
	}

	if err := d.RemoveChild(ul, b); err != nil {
		t.Fatal(err)
	}
	if err := d.SetText(c, "z"); err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveAttribute(ul, "", "class"); err != nil {
		t.Fatal(err)
	}
	if got, want := d.HTML(), `<div id="main"><ul>az</ul></div>`; got != want {
		t.Errorf("HTML() = %s, want %s", got, want)
	}
	if d.Parent(b) != nil {
		t.Error("removed node still has a parent")
	}
}

func TestManipulationErrors(t *testing.T) {
	d := New()
	div := mustElement(t, d, "div")
	p := mustElement(t, d, "p")
	txt := mustText(t, d, "x")
	if err := d.AppendChild(div, p); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"append_attached", d.AppendChild(d.Root(), p), host.ErrHasParent},
		{"append_to_text", d.AppendChild(txt, mustText(t, d, "y")), host.ErrNotElement},
		{"insert_bad_ref", d.InsertBefore(d.Root(), mustText(t, d, "y"), p), host.ErrNotChild},
		{"remove_not_child", d.RemoveChild(d.Root(), p), host.ErrNotChild},
		{"set_text_on_element", d.SetText(div, "x"), host.ErrNotText},
		{"attr_on_text", d.SetAttribute(txt, "", "a", "b"), host.ErrNotElement},
		{"foreign_node", d.AppendChild(div, "not a node"), host.ErrForeignNode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.wantErr) {
				t.Errorf("error = %v, want %v", tc.err, tc.wantErr)
			}
		})
	}

	if _, err := d.CreateElement("bad tag", ""); !errors.Is(err, host.ErrInvalidTag) {
		t.Errorf("CreateElement() error = %v, want ErrInvalidTag", err)
	}
}

func TestNodeLimit(t *testing.T) {
	d := New(WithNodeLimit(3))
	div := mustElement(t, d, "div")
	if err := d.AppendChild(div, mustText(t, d, "x")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Clone(div); !errors.Is(err, ErrExhausted) {
		t.Errorf("Clone() error = %v, want ErrExhausted", err)
	}
	if got := d.Live(); got != 2 {
		t.Errorf("Live() after failed clone = %d, want 2", got)
	}
}

func TestReleaseFreesCapacity(t *testing.T) {
	d := New(WithNodeLimit(2))
	for i := 0; i < 5; i++ {
		div := mustElement(t, d, "div")
		if err := d.AppendChild(div, mustText(t, d, "x")); err != nil {
			t.Fatal(err)
		}
		d.Release(div)
		if got := d.Live(); got != 0 {
			t.Fatalf("round %d: Live() = %d, want 0", i, got)
		}
	}

	div := mustElement(t, d, "div")
	d.Release(div)
	d.Release(div)
	if got := d.Live(); got != 0 {
		t.Errorf("Live() after double release = %d, want 0", got)
	}
}

func TestCloneDropsMarkers(t *testing.T) {
	d := New()
	div := mustElement(t, d, "div")
	if err := d.SetAttribute(div, "", "class", "card"); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendChild(div, mustText(t, d, "body")); err != nil {
		t.Fatal(err)
	}
	d.Mark(div, 7)

	cp, err := d.Clone(div)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Marker(cp); ok {
		t.Error("clone carries a marker")
	}
	if err := d.SetAttribute(cp, "", "class", "copy"); err != nil {
		t.Fatal(err)
	}
	if v, _ := d.Attribute(div, "", "class"); v != "card" {
		t.Errorf("original attribute changed to %q", v)
	}

	var b strings.Builder
	if err := d.Render(&b, cp); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), `<div class="copy">body</div>`; got != want {
		t.Errorf("Render() = %s, want %s", got, want)
	}
}

func TestAccessors(t *testing.T) {
	d := New(WithRootID("app"))
	svg, err := d.CreateElement("svg", "svg")
	if err != nil {
		t.Fatal(err)
	}
	ph, err := d.CreatePlaceholder()
	if err != nil {
		t.Fatal(err)
	}
	txt := mustText(t, d, "t")

	if d.Type(svg) != host.ElementNode || d.Type(ph) != host.PlaceholderNode || d.Type(txt) != host.TextNode {
		t.Error("Type() mismatch")
	}
	if d.Tag(svg) != "svg" || d.Tag(txt) != "" {
		t.Error("Tag() mismatch")
	}
	if d.Text(txt) != "t" || d.Text(svg) != "" {
		t.Error("Text() mismatch")
	}
	if v, ok := d.Attribute(d.Root(), "", "id"); !ok || v != "app" {
		t.Errorf("root id = %q, %v", v, ok)
	}
	if d.Type("foreign") != 0 {
		t.Error("foreign handle has a type")
	}
}

type rec struct {
	calls []string
}

func (r *rec) listener(name string, stop, prevent bool) host.Listener {
	return func(ev host.Event) {
		r.calls = append(r.calls, name)
		if stop {
			ev.StopPropagation()
		}
		if prevent {
			ev.PreventDefault()
		}
	}
}

func TestDispatchPhases(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		atRoot      bool
		stopCapture bool
		want        []string
	}{
		{"bubbling", "click", false, false, []string{"capture", "bubble"}},
		{"non_bubbling", "focus", false, false, []string{"capture"}},
		{"non_bubbling_at_root", "focus", true, false, []string{"capture", "bubble"}},
		{"capture_stops", "click", false, true, []string{"capture"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := New()
			btn := mustElement(t, d, "button")
			if err := d.AppendChild(d.Root(), btn); err != nil {
				t.Fatal(err)
			}
			r := &rec{}
			_ = d.AddListener(tc.kind, false, r.listener("bubble", false, false))
			_ = d.AddListener(tc.kind, true, r.listener("capture", tc.stopCapture, false))

			target := btn
			if tc.atRoot {
				target = d.Root()
			}
			d.Dispatch(target, NewEvent(tc.kind, nil))
			if diff := cmp.Diff(tc.want, r.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDispatchDetachedTargetIsIgnored(t *testing.T) {
	d := New()
	r := &rec{}
	_ = d.AddListener("click", false, r.listener("bubble", false, false))
	if !d.Dispatch(mustElement(t, d, "p"), NewEvent("click", nil)) {
		t.Error("Dispatch() reported prevented")
	}
	if len(r.calls) != 0 {
		t.Errorf("listener ran for detached target: %v", r.calls)
	}
}

func TestDispatchPreventDefault(t *testing.T) {
	d := New()
	a := mustElement(t, d, "a")
	if err := d.AppendChild(d.Root(), a); err != nil {
		t.Fatal(err)
	}
	r := &rec{}
	_ = d.AddListener("click", false, r.listener("bubble", false, true))
	ev := NewEvent("click", nil)
	if d.Dispatch(a, ev) {
		t.Error("Dispatch() = true, want false")
	}
	if !ev.DefaultPrevented() || ev.PropagationStopped() {
		t.Errorf("event state prevented=%v stopped=%v", ev.DefaultPrevented(), ev.PropagationStopped())
	}
	if ev.Target() != a || ev.Type() != "click" {
		t.Error("target or type not set")
	}
}

func TestEventFields(t *testing.T) {
	ev := NewEvent("keydown", map[string]any{
		"key":      "Enter",
		"location": 2,
		"deltaY":   float32(1.5),
		"count":    int64(3),
		"repeat":   true,
		"other":    42,
	}).WithFiles(&File{FileName: "a.txt", Type: "text/plain", Data: []byte("abc")})

	if ev.StringField("key") != "Enter" || ev.StringField("missing") != "" || ev.StringField("other") != "42" {
		t.Error("StringField mismatch")
	}
	if ev.FloatField("location") != 2 || ev.FloatField("deltaY") != 1.5 || ev.FloatField("count") != 3 || ev.FloatField("key") != 0 {
		t.Error("FloatField mismatch")
	}
	if !ev.BoolField("repeat") || ev.BoolField("key") {
		t.Error("BoolField mismatch")
	}

	files := ev.Files()
	if len(files) != 1 || files[0].Name() != "a.txt" || files[0].Size() != 3 {
		t.Fatalf("Files() = %v", files)
	}
	rc, err := files[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "abc" {
		t.Errorf("contents = %q", data)
	}
}
