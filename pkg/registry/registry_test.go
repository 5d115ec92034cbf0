package registry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/vango-web/pkg/host"
	"github.com/vango-dev/vango-web/pkg/host/htmldoc"
)

func TestNewMarksRoot(t *testing.T) {
	doc := htmldoc.New()
	r := New(doc)

	s, err := r.Get(RootID)
	if err != nil {
		t.Fatalf("Get(root) error = %v", err)
	}
	if s.Kind != KindRoot || s.Handle != doc.Root() {
		t.Errorf("root slot = %+v", s)
	}
	if id, ok := r.Lookup(doc.Root()); !ok || id != RootID {
		t.Errorf("Lookup(root) = %d, %v", id, ok)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name     string
		id       NodeID
		spec     Spec
		wantType host.NodeType
		wantErr  error
	}{
		{"element", 1, Spec{Kind: KindElement, Tag: "div"}, host.ElementNode, nil},
		{"text", 2, Spec{Kind: KindText, Text: "hi"}, host.TextNode, nil},
		{"placeholder", 3, Spec{Kind: KindPlaceholder}, host.PlaceholderNode, nil},
		{"sparse", 5000, Spec{Kind: KindText}, host.TextNode, nil},
		{"root", RootID, Spec{Kind: KindText}, 0, ErrRootID},
		{"out_of_range", MaxNodeID, Spec{Kind: KindText}, 0, ErrIDOutOfRange},
		{"root_kind", 4, Spec{Kind: KindRoot}, 0, ErrKindMismatch},
		{"bad_tag", 6, Spec{Kind: KindElement, Tag: "a b"}, 0, ErrAllocation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := htmldoc.New()
			r := New(doc)
			s, err := r.Allocate(tc.id, tc.spec)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Allocate() error = %v, want %v", err, tc.wantErr)
			}
			if err != nil {
				var ne *NodeError
				if !errors.As(err, &ne) || ne.ID != tc.id {
					t.Errorf("error %v does not carry id %d", err, tc.id)
				}
				return
			}
			if got := doc.Type(s.Handle); got != tc.wantType {
				t.Errorf("native type = %s, want %s", got, tc.wantType)
			}
			if id, ok := r.Lookup(s.Handle); !ok || id != tc.id {
				t.Errorf("Lookup() = %d, %v", id, ok)
			}
		})
	}
}

func TestAllocateIDInUse(t *testing.T) {
	r := New(htmldoc.New())
	if _, err := r.Allocate(1, Spec{Kind: KindElement, Tag: "p"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Allocate(1, Spec{Kind: KindText}); !errors.Is(err, ErrIDInUse) {
		t.Errorf("second Allocate() error = %v, want ErrIDInUse", err)
	}
	if s, _ := r.Get(1); s.Kind != KindElement {
		t.Errorf("slot overwritten: %+v", s)
	}
}

func TestAllocateExhausted(t *testing.T) {
	r := New(htmldoc.New(htmldoc.WithNodeLimit(1)))
	if _, err := r.Allocate(1, Spec{Kind: KindText}); err != nil {
		t.Fatal(err)
	}
	_, err := r.Allocate(2, Spec{Kind: KindText})
	if !errors.Is(err, ErrAllocation) || !errors.Is(err, htmldoc.ErrExhausted) {
		t.Errorf("Allocate() error = %v, want ErrAllocation wrapping ErrExhausted", err)
	}
	if r.Has(2) {
		t.Error("failed allocation left a slot")
	}
}

func TestExpect(t *testing.T) {
	r := New(htmldoc.New())
	if _, err := r.Allocate(1, Spec{Kind: KindText, Text: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Expect(1, KindText); err != nil {
		t.Errorf("Expect(text) error = %v", err)
	}
	if _, err := r.Expect(1, KindElement, KindRoot); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Expect(element) error = %v, want ErrKindMismatch", err)
	}
	if _, err := r.Expect(9, KindText); !errors.Is(err, ErrUnknownNodeID) {
		t.Errorf("Expect(unknown) error = %v, want ErrUnknownNodeID", err)
	}
	if _, err := r.Expect(RootID, KindElement, KindRoot); err != nil {
		t.Errorf("Expect(root) error = %v", err)
	}
}

func TestBind(t *testing.T) {
	doc := htmldoc.New()
	r := New(doc)
	n, err := doc.CreateElement("span", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Bind(7, n); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if s, _ := r.Get(7); s.Kind != KindElement {
		t.Errorf("kind = %s, want element", s.Kind)
	}
	if _, err := r.Bind(8, n); !errors.Is(err, ErrIDInUse) {
		t.Errorf("Bind() of marked node error = %v, want ErrIDInUse", err)
	}
}

func buildTree(t *testing.T, r *Registry) {
	t.Helper()
	doc := r.Document()
	mk := func(id NodeID, spec Spec) host.Node {
		s, err := r.Allocate(id, spec)
		if err != nil {
			t.Fatal(err)
		}
		return s.Handle
	}
	// 1:div > (2:p > 3:"a", unregistered em > 4:"b"), 5:"c"
	div := mk(1, Spec{Kind: KindElement, Tag: "div"})
	p := mk(2, Spec{Kind: KindElement, Tag: "p"})
	a := mk(3, Spec{Kind: KindText, Text: "a"})
	em, err := doc.CreateElement("em", "")
	if err != nil {
		t.Fatal(err)
	}
	b := mk(4, Spec{Kind: KindText, Text: "b"})
	c := mk(5, Spec{Kind: KindText, Text: "c"})

	for _, e := range []struct{ parent, child host.Node }{
		{p, a}, {em, b}, {div, p}, {div, em}, {doc.Root(), div}, {doc.Root(), c},
	} {
		if err := doc.AppendChild(e.parent, e.child); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRelease(t *testing.T) {
	doc := htmldoc.New()
	r := New(doc)
	buildTree(t, r)

	released, err := r.Release(1)
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if diff := cmp.Diff([]NodeID{1, 2, 3, 4}, released); diff != "" {
		t.Errorf("released mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]NodeID{5}, r.IDs()); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if _, err := r.Release(1); !errors.Is(err, ErrUnknownNodeID) {
		t.Errorf("second Release() error = %v, want ErrUnknownNodeID", err)
	}
	if _, err := r.Release(RootID); !errors.Is(err, ErrRootID) {
		t.Errorf("Release(root) error = %v, want ErrRootID", err)
	}
}

func TestReleasedIDIsReusable(t *testing.T) {
	r := New(htmldoc.New())
	first, err := r.Allocate(1, Spec{Kind: KindText, Text: "old"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Release(1); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup(first.Handle); ok {
		t.Error("released handle still resolves")
	}
	second, err := r.Allocate(1, Spec{Kind: KindText, Text: "new"})
	if err != nil {
		t.Fatalf("re-Allocate() error = %v", err)
	}
	if second.Handle == first.Handle {
		t.Error("reused id kept the old handle")
	}
}

func TestClear(t *testing.T) {
	doc := htmldoc.New()
	r := New(doc)
	buildTree(t, r)

	if got := len(r.Clear()); got != 5 {
		t.Errorf("Clear() released %d ids, want 5", got)
	}
	if got := doc.Live(); got != 0 {
		t.Errorf("document holds %d live nodes after Clear, want 0", got)
	}
	if r.Len() != 0 || len(r.IDs()) != 0 {
		t.Errorf("registry not empty: %v", r.IDs())
	}
	if !r.Has(RootID) {
		t.Error("root released by Clear")
	}
	if _, err := r.Allocate(1, Spec{Kind: KindText}); err != nil {
		t.Errorf("Allocate() after Clear error = %v", err)
	}
}

func TestLookupIgnoresForeignHandles(t *testing.T) {
	doc := htmldoc.New()
	r := New(doc)
	n, err := doc.CreateText("stray")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup(n); ok {
		t.Error("unregistered handle resolved")
	}
	// A marker naming a slot that owns another handle is not trusted.
	if _, err := r.Allocate(1, Spec{Kind: KindText}); err != nil {
		t.Fatal(err)
	}
	doc.Mark(n, 1)
	if _, ok := r.Lookup(n); ok {
		t.Error("stale marker resolved")
	}
	if _, ok := r.Lookup(nil); ok {
		t.Error("nil resolved")
	}
}
