package vctree

import (
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// UndoRecorder is a structural listener that mirrors every change it
// observes into its own change set with the sense of each record inverted.
// Applying that change set undoes what was recorded.
type UndoRecorder struct {
	cs       *ChangeSet
	nodes    []*Node
	applying bool
}

// NewUndoRecorder creates a recorder that watches nodes.
func NewUndoRecorder(nodes ...*Node) *UndoRecorder {
	u := &UndoRecorder{cs: NewChangeSet()}
	for _, n := range nodes {
		u.Watch(n)
	}
	return u
}

// Watch starts recording changes made to n.
func (u *UndoRecorder) Watch(n *Node) {
	n.AddListener(u)
	u.nodes = append(u.nodes, n)
}

// Close stops recording on every watched node.
func (u *UndoRecorder) Close() {
	for _, n := range u.nodes {
		n.RemoveListener(u)
	}
	u.nodes = nil
}

// ChangeSet returns the inverted records, newest change first.
func (u *UndoRecorder) ChangeSet() *ChangeSet {
	return u.cs
}

// Undo applies the recorded inverse and starts a fresh recording.
func (u *UndoRecorder) Undo() error {
	cs := u.cs
	u.cs = NewChangeSet()
	u.applying = true
	defer func() { u.applying = false }()
	return cs.Apply()
}

func (u *UndoRecorder) record(m Memento) {
	if u.applying {
		return
	}
	u.cs.Prepend(m)
}

func (u *UndoRecorder) AttributeSet(n *Node, name string, value, old any) {
	if old == nil {
		u.record(&RemoveAttrChange{Node: n, Name: name, Old: value})
		return
	}
	u.record(&SetAttrChange{Node: n, Name: name, Value: old, Old: value})
}

func (u *UndoRecorder) AttributeRemoved(n *Node, name string, old any) {
	u.record(&SetAttrChange{Node: n, Name: name, Value: old})
}

func (u *UndoRecorder) ChildAdded(n *Node, child *Node, index int) {
	u.record(&RemoveChildChange{Parent: n, Child: child, Index: index})
}

func (u *UndoRecorder) ChildRemoved(n *Node, child *Node, index int) {
	u.record(&AddChildChange{Parent: n, Child: child, Index: index})
}

// HistoryEntry is one committed top-level mutation.
type HistoryEntry struct {
	ID      ulid.ULID
	Changes *ChangeSet
}

// History is a user-visible undo/redo stack over a store's committed
// change sets.
type History struct {
	store     *Store
	limit     int
	undo      []HistoryEntry
	redo      []HistoryEntry
	replaying bool
	stop      func()
}

// NewHistory starts recording commits on s. The depth is bounded by
// s.Options().HistoryLimit.
func NewHistory(s *Store) *History {
	h := &History{store: s, limit: s.Options().HistoryLimit}
	h.stop = s.OnCommit(h.committed)
	return h
}

// Close stops recording.
func (h *History) Close() {
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}

func (h *History) committed(cs *ChangeSet) {
	if h.replaying {
		return
	}
	h.undo = append(h.undo, HistoryEntry{ID: cs.ID, Changes: cs})
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
}

// CanUndo reports whether Undo has anything to do.
func (h *History) CanUndo() bool {
	return len(h.undo) > 0
}

// CanRedo reports whether Redo has anything to do.
func (h *History) CanRedo() bool {
	return len(h.redo) > 0
}

// Entries returns the undo stack, oldest first.
func (h *History) Entries() []HistoryEntry {
	return append([]HistoryEntry(nil), h.undo...)
}

// Undo reverses the most recent entry through the ordinary operations, so
// live queries observe it.
func (h *History) Undo() error {
	if len(h.undo) == 0 {
		return ErrNothingToUndo
	}
	e := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	if err := h.replay(e.Changes.Inverse()); err != nil {
		return err
	}
	h.redo = append(h.redo, e)
	return nil
}

// Redo re-applies the most recently undone entry.
func (h *History) Redo() error {
	if len(h.redo) == 0 {
		return ErrNothingToUndo
	}
	e := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	if err := h.replay(e.Changes); err != nil {
		return err
	}
	h.undo = append(h.undo, e)
	return nil
}

func (h *History) replay(cs *ChangeSet) error {
	h.replaying = true
	defer func() { h.replaying = false }()
	glog.V(2).Infof("[history]replay %s (%d changes)\n", cs.ID, cs.Len())
	return cs.Apply()
}
