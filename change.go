package vctree

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/slices"
)

// Memento is the reversible record of one atomic mutation.
type Memento interface {
	// Apply replays the mutation through the ordinary node operations, so
	// listeners are notified and notification locks are honored.
	Apply() error

	// Revert undoes the mutation on the raw structure. No hooks or
	// listeners run.
	Revert()

	// Restore redoes a reverted mutation on the raw structure.
	Restore()

	// Inverse returns a record whose Apply undoes this one.
	Inverse() Memento
}

// SetAttrChange records an attribute assignment. Old is nil when the
// attribute did not exist.
type SetAttrChange struct {
	Node  *Node
	Name  string
	Value any
	Old   any
}

func (c *SetAttrChange) Apply() error {
	_, err := c.Node.SetAttr(c.Name, c.Value)
	return err
}

func (c *SetAttrChange) Restore() {
	c.Node.putAttr(c.Name, c.Value)
}

func (c *SetAttrChange) Revert() {
	if c.Old == nil {
		c.Node.deleteAttr(c.Name)
		return
	}
	c.Node.putAttr(c.Name, c.Old)
}

func (c *SetAttrChange) Inverse() Memento {
	if c.Old == nil {
		return &RemoveAttrChange{Node: c.Node, Name: c.Name, Old: c.Value}
	}
	return &SetAttrChange{Node: c.Node, Name: c.Name, Value: c.Old, Old: c.Value}
}

// RemoveAttrChange records an attribute removal.
type RemoveAttrChange struct {
	Node *Node
	Name string
	Old  any

	index int
}

func (c *RemoveAttrChange) Apply() error {
	_, err := c.Node.RemoveAttr(c.Name)
	return err
}

func (c *RemoveAttrChange) Restore() {
	c.index = c.Node.deleteAttr(c.Name)
}

func (c *RemoveAttrChange) Revert() {
	c.Node.insertAttr(c.index, c.Name, c.Old)
}

func (c *RemoveAttrChange) Inverse() Memento {
	return &SetAttrChange{Node: c.Node, Name: c.Name, Value: c.Old}
}

// AddChildChange records Child being inserted into Parent at Index.
type AddChildChange struct {
	Parent *Node
	Child  *Node
	Index  int
}

func (c *AddChildChange) Apply() error {
	return c.Parent.AddChild(c.Child, c.Index)
}

func (c *AddChildChange) Restore() {
	c.Parent.insertChild(c.Child, c.Index)
}

func (c *AddChildChange) Revert() {
	c.Parent.removeChildNode(c.Child)
}

func (c *AddChildChange) Inverse() Memento {
	return &RemoveChildChange{Parent: c.Parent, Child: c.Child, Index: c.Index}
}

// RemoveChildChange records Child being removed from Parent at Index.
type RemoveChildChange struct {
	Parent *Node
	Child  *Node
	Index  int
}

func (c *RemoveChildChange) Apply() error {
	return c.Parent.RemoveChild(c.Child)
}

func (c *RemoveChildChange) Restore() {
	c.Parent.removeChildNode(c.Child)
}

func (c *RemoveChildChange) Revert() {
	c.Parent.insertChild(c.Child, c.Index)
}

func (c *RemoveChildChange) Inverse() Memento {
	return &AddChildChange{Parent: c.Parent, Child: c.Child, Index: c.Index}
}

// MoveChildChange records Child moving from From at OldIndex to To at
// NewIndex. From and To are the same node for a reorder.
type MoveChildChange struct {
	Child    *Node
	From     *Node
	To       *Node
	OldIndex int
	NewIndex int
}

func (c *MoveChildChange) Apply() error {
	return c.To.MoveChild(c.Child, c.NewIndex)
}

func (c *MoveChildChange) Restore() {
	c.From.removeChildNode(c.Child)
	c.To.insertChild(c.Child, c.NewIndex)
}

func (c *MoveChildChange) Revert() {
	c.To.removeChildNode(c.Child)
	c.From.insertChild(c.Child, c.OldIndex)
}

func (c *MoveChildChange) Inverse() Memento {
	return &MoveChildChange{Child: c.Child, From: c.To, To: c.From, OldIndex: c.NewIndex, NewIndex: c.OldIndex}
}

// ChangeSet is an ordered list of mementos.
type ChangeSet struct {
	ID ulid.ULID

	serial  uint64
	changes []Memento
}

// NewChangeSet creates an empty change set with a fresh ID.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{ID: ulid.Make()}
}

// Add appends m.
func (cs *ChangeSet) Add(m Memento) {
	cs.changes = append(cs.changes, m)
}

// Prepend inserts m before every other record.
func (cs *ChangeSet) Prepend(m Memento) {
	cs.changes = slices.Insert(cs.changes, 0, m)
}

// Len returns the number of records.
func (cs *ChangeSet) Len() int {
	return len(cs.changes)
}

// Changes returns a copy of the records in order.
func (cs *ChangeSet) Changes() []Memento {
	return slices.Clone(cs.changes)
}

// Apply replays every record forward through the ordinary operations and
// stops at the first failure.
func (cs *ChangeSet) Apply() error {
	for i, m := range cs.changes {
		if err := m.Apply(); err != nil {
			return fmt.Errorf("failed to apply change %d (%T): %w", i, m, err)
		}
	}
	return nil
}

// Revert undoes every record, newest first, on the raw structure.
func (cs *ChangeSet) Revert() {
	for i := len(cs.changes) - 1; i >= 0; i-- {
		cs.changes[i].Revert()
	}
}

// Restore redoes every record, oldest first, on the raw structure.
func (cs *ChangeSet) Restore() {
	for _, m := range cs.changes {
		m.Restore()
	}
}

// Inverse returns a change set whose Apply undoes cs.
func (cs *ChangeSet) Inverse() *ChangeSet {
	inv := NewChangeSet()
	for i := len(cs.changes) - 1; i >= 0; i-- {
		inv.Add(cs.changes[i].Inverse())
	}
	return inv
}
