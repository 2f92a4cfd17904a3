package vctree

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestUndoRecorderRemovesNewAttribute(t *testing.T) {
	n := NewNode("n")
	u := NewUndoRecorder(n)
	defer u.Close()

	mustSet(t, n, "a", "1")
	assert.Equal(t, u.ChangeSet().Len(), 1)

	assert.Equal(t, u.Undo(), nil)
	_, ok := n.Attr("a")
	assert.Equal(t, ok, false)
	assert.Equal(t, u.ChangeSet().Len(), 0)
}

func TestUndoRecorderRestoresTree(t *testing.T) {
	s := NewStore(DefaultOptions())
	r := s.NewNode("r")
	mustSet(t, r, "a", "0")
	mustAppend(t, r, s.NewNode("keep"))
	before, _ := EncodeNode(r)

	u := NewUndoRecorder(r)
	mustSet(t, r, "a", "1")
	mustSet(t, r, "b", "new")
	mustAppend(t, r, s.NewNode("c"))
	assert.Equal(t, r.RemoveChild(r.Child(0)), nil)
	_, err := r.RemoveAttr("a")
	assert.Equal(t, err, nil)
	assert.Equal(t, u.ChangeSet().Len(), 5)

	assert.Equal(t, u.Undo(), nil)
	after, _ := EncodeNode(r)
	assert.Equal(t, after, before)

	// Undo itself is not recorded.
	assert.Equal(t, u.ChangeSet().Len(), 0)

	u.Close()
	mustSet(t, r, "z", "1")
	assert.Equal(t, u.ChangeSet().Len(), 0)
}

func TestHistory(t *testing.T) {
	s := NewStore(DefaultOptions())
	p := s.NewNode("p")
	a, b := s.NewNode("a"), s.NewNode("b")
	mustAppend(t, p, a)
	mustAppend(t, p, b)

	h := NewHistory(s)
	defer h.Close()
	assert.Equal(t, h.CanUndo(), false)

	mustSet(t, a, "v", "1")
	assert.Equal(t, p.MoveChild(a, 1), nil)
	assert.Equal(t, len(h.Entries()), 2)

	assert.Equal(t, h.Undo(), nil)
	assert.Equal(t, types(p.Children()), []string{"a", "b"})
	assert.Equal(t, h.CanRedo(), true)

	assert.Equal(t, h.Undo(), nil)
	_, ok := a.Attr("v")
	assert.Equal(t, ok, false)
	assert.Equal(t, h.Undo(), ErrNothingToUndo)

	assert.Equal(t, h.Redo(), nil)
	v, _ := a.Attr("v")
	assert.Equal(t, v, "1")

	// A fresh mutation drops the redo stack.
	mustSet(t, b, "w", "x")
	assert.Equal(t, h.CanRedo(), false)
	assert.Equal(t, h.Redo(), ErrNothingToUndo)
}

func TestHistoryLimit(t *testing.T) {
	s := NewStore(Options{HistoryLimit: 2})
	n := s.NewNode("n")
	h := NewHistory(s)
	defer h.Close()

	for _, v := range []string{"1", "2", "3"} {
		mustSet(t, n, "v", v)
	}
	entries := h.Entries()
	assert.Equal(t, len(entries), 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	assert.Equal(t, h.Undo(), nil)
	assert.Equal(t, h.Undo(), nil)
	v, _ := n.Attr("v")
	assert.Equal(t, v, "1")
	assert.Equal(t, h.CanUndo(), false)
}
