package vctree

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func mustSet(t *testing.T, n *Node, name string, value any) {
	t.Helper()
	if _, err := n.SetAttr(name, value); err != nil {
		t.Fatalf("SetAttr(%q) failed: %v", name, err)
	}
}

func mustAppend(t *testing.T, parent, child *Node) {
	t.Helper()
	if err := parent.AppendChild(child); err != nil {
		t.Fatalf("AppendChild failed: %v", err)
	}
}

func types(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Type()
	}
	return out
}

func TestAttributes(t *testing.T) {
	n := NewNode("e")
	mustSet(t, n, "b", "1")
	mustSet(t, n, "a", "2")
	mustSet(t, n, "b", "3")
	assert.Equal(t, n.AttrNames(), []string{"b", "a"})

	v, ok := n.Attr("b")
	assert.Equal(t, ok, true)
	assert.Equal(t, v, "3")

	_, err := n.SetAttr("c", nil)
	assert.Equal(t, err, ErrNilValue)

	old, err := n.RemoveAttr("missing")
	assert.Equal(t, err, nil)
	assert.Equal(t, old, nil)

	old, err = n.RemoveAttr("b")
	assert.Equal(t, err, nil)
	assert.Equal(t, old, "3")
	assert.Equal(t, n.AttrNames(), []string{"a"})

	_, err = n.SetValue(42.0)
	assert.Equal(t, err, nil)
	assert.Equal(t, n.Value(), 42.0)
	assert.Equal(t, n.Text(), "42")
}

func TestStructure(t *testing.T) {
	s := NewStore(DefaultOptions())
	r, a, b, c := s.NewNode("r"), s.NewNode("a"), s.NewNode("b"), s.NewNode("c")
	mustAppend(t, r, a)
	mustAppend(t, r, c)
	assert.Equal(t, r.AddChild(b, 1), nil)
	assert.Equal(t, types(r.Children()), []string{"a", "b", "c"})
	assert.Equal(t, b.Parent(), r)
	assert.Equal(t, r.IndexOf(c), 2)
	assert.Equal(t, r.Child(3) == nil, true)

	assert.Equal(t, r.AddChild(s.NewNode("x"), 7), ErrIndexOutOfRange)
	assert.Equal(t, r.AppendChild(r), ErrSelfParent)
	mustAppend(t, a, s.NewNode("a1"))
	assert.Equal(t, a.Child(0).AppendChild(r), ErrCycle)
	assert.Equal(t, a.RemoveChild(b), ErrNotChild)

	// Appending a node that has a parent moves it.
	mustAppend(t, a, c)
	assert.Equal(t, types(r.Children()), []string{"a", "b"})
	assert.Equal(t, types(a.Children()), []string{"a1", "c"})
	assert.Equal(t, r.IsAncestorOf(c), true)

	assert.Equal(t, c.Detach(), nil)
	assert.Equal(t, c.Parent() == nil, true)
	assert.Equal(t, c.Detach(), nil)
}

func TestAdoptsForeignNodes(t *testing.T) {
	r := NewNode("r")
	other := NewNode("o")
	mustAppend(t, other, NewNode("o1"))
	mustAppend(t, r, other)
	assert.Equal(t, other.Store(), r.Store())
	assert.Equal(t, other.Child(0).Store(), r.Store())
}

func TestWalkAndClone(t *testing.T) {
	s := NewStore(DefaultOptions())
	r, a, a1, b := s.NewNode("r"), s.NewNode("a"), s.NewNode("a1"), s.NewNode("b")
	mustAppend(t, r, a)
	mustAppend(t, r, b)
	mustAppend(t, a, a1)
	mustSet(t, a1, "k", "v")

	var seen []string
	var depths []int
	r.Walk(func(n *Node, depth int) bool {
		seen = append(seen, n.Type())
		depths = append(depths, depth)
		return n != a
	})
	assert.Equal(t, seen, []string{"r", "a", "b"})
	assert.Equal(t, depths, []int{0, 1, 1})

	other := NewStore(DefaultOptions())
	c := r.Clone(other)
	assert.Equal(t, c.Store(), other)
	assert.Equal(t, c.Parent() == nil, true)
	assert.Equal(t, c.Child(0).Child(0).Parent(), c.Child(0))

	// The copy is independent.
	mustSet(t, c.Child(0).Child(0), "k", "w")
	v, _ := a1.Attr("k")
	assert.Equal(t, v, "v")
}

func TestAccessHook(t *testing.T) {
	s := NewStore(DefaultOptions())
	ref := s.NewNode("ref")

	var calls []AccessKind
	ref.SetAccessHook(func(n *Node, kind AccessKind, _ string, _ bool) {
		calls = append(calls, kind)
		// Populating under the sync lock does not re-enter the hook.
		mustAppend(t, n, s.NewNode("loaded"))
		n.SetAccessHook(nil)
	})

	assert.Equal(t, s.SyncLocked(), false)
	assert.Equal(t, types(ref.Children()), []string{"loaded"})
	assert.Equal(t, calls, []AccessKind{AccessChildren})
	assert.Equal(t, s.SyncLocked(), false)

	// Without a hook reads go straight through.
	assert.Equal(t, ref.ChildCount(), 1)
	assert.Equal(t, len(calls), 1)
}

func TestListenerRegistration(t *testing.T) {
	n := NewNode("n")
	l := &ListenerFuncs{}
	assert.Equal(t, n.HasListeners(), false)
	n.AddListener(l)
	n.AddListener(l)
	assert.Equal(t, len(n.listeners), 1)
	n.RemoveListener(l)
	assert.Equal(t, n.HasListeners(), false)
}
