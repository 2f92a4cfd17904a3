package vctree

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Attribute is one entry of a node's ordered attribute map.
// The attribute named "" holds the node's text value.
type Attribute struct {
	Name  string
	Value any
}

// Node is a mutable tree element: a type tag, an ordered attribute map, an
// ordered child list and a back-reference to its parent.
//
// All mutation goes through the node's Store, which keeps parent pointers and
// child lists consistent and dispatches listener notifications. A node is
// identified by reference; it has at most one parent at a time.
type Node struct {
	typ      string
	attrs    []Attribute
	children []*Node

	// parent is a back-reference maintained by the store only. Ownership runs
	// parent -> child.
	parent *Node

	listeners []Listener
	hook      AccessHook
	store     *Store
}

// NewNode creates a detached node of the given type in a fresh store.
func NewNode(typ string) *Node {
	return NewStore(DefaultOptions()).NewNode(typ)
}

// Type returns the node's type tag.
func (n *Node) Type() string {
	return n.typ
}

// Store returns the store that mediates mutations of this node.
func (n *Node) Store() *Store {
	return n.store
}

// Parent returns the node's parent, or nil if it is detached.
func (n *Node) Parent() *Node {
	return n.parent
}

// Root walks parent pointers up to the top of the tree.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Ancestor returns the nearest proper ancestor with the given type.
func (n *Node) Ancestor(typ string) *Node {
	for p := n.parent; p != nil; p = p.parent {
		if p.typ == typ {
			return p
		}
	}
	return nil
}

// IsAncestorOf reports whether n is a proper ancestor of o.
func (n *Node) IsAncestorOf(o *Node) bool {
	for p := o.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (any, bool) {
	n.access(AccessAttr, name, false)
	return n.attr(name)
}

// Value returns the node's text value (the "" attribute), or nil.
func (n *Node) Value() any {
	v, _ := n.Attr("")
	return v
}

// Text returns the node's text value formatted as a string.
func (n *Node) Text() string {
	return FormatValue(n.Value())
}

// AttrNames lists attribute names in insertion order.
func (n *Node) AttrNames() []string {
	n.access(AccessAttrs, "", false)
	names := make([]string, len(n.attrs))
	for i, a := range n.attrs {
		names[i] = a.Name
	}
	return names
}

// Attrs returns a copy of the ordered attribute map.
func (n *Node) Attrs() []Attribute {
	n.access(AccessAttrs, "", false)
	return slices.Clone(n.attrs)
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	n.access(AccessChildren, "", false)
	return slices.Clone(n.children)
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int {
	n.access(AccessChildren, "", false)
	return len(n.children)
}

// Child returns the child at index i, or nil when i is out of range.
func (n *Node) Child(i int) *Node {
	n.access(AccessChildren, "", false)
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// IndexOf returns the index of child in n's child list, or -1.
func (n *Node) IndexOf(child *Node) int {
	n.access(AccessChildren, "", false)
	return n.indexOf(child)
}

// SetAttr assigns an attribute and returns its previous value (nil if it
// was absent). If n is being notified, the assignment is buffered and the
// current value is returned.
func (n *Node) SetAttr(name string, value any) (any, error) {
	return n.store.setAttr(n, name, value)
}

// SetValue assigns the node's text value.
func (n *Node) SetValue(value any) (any, error) {
	return n.store.setAttr(n, "", value)
}

// RemoveAttr deletes an attribute and returns its previous value.
// Removing an absent attribute is a no-op.
func (n *Node) RemoveAttr(name string) (any, error) {
	return n.store.removeAttr(n, name)
}

// AddChild inserts child at index; -1 appends. A child that already has a
// parent is moved.
func (n *Node) AddChild(child *Node, index int) error {
	return n.store.addChild(n, child, index)
}

// AppendChild adds child at the end of the child list.
func (n *Node) AppendChild(child *Node) error {
	return n.store.addChild(n, child, -1)
}

// RemoveChild detaches child from n.
func (n *Node) RemoveChild(child *Node) error {
	return n.store.removeChild(n, child)
}

// MoveChild places child at index in n's child list, detaching it from its
// current parent first. index is the final position; -1 means last.
func (n *Node) MoveChild(child *Node, index int) error {
	return n.store.moveChild(n, child, index)
}

// Detach removes n from its parent, if any.
func (n *Node) Detach() error {
	if n.parent == nil {
		return nil
	}
	return n.parent.RemoveChild(n)
}

// AddListener registers l for structural events on n. Adding a listener
// twice has no effect.
func (n *Node) AddListener(l Listener) {
	if slices.Index(n.listeners, l) >= 0 {
		return
	}
	n.listeners = append(n.listeners, l)
}

// RemoveListener unregisters l.
func (n *Node) RemoveListener(l Listener) {
	if i := slices.Index(n.listeners, l); i >= 0 {
		n.listeners = slices.Delete(n.listeners, i, i+1)
	}
}

// HasListeners reports whether anything observes n.
func (n *Node) HasListeners() bool {
	return len(n.listeners) > 0
}

// SetAccessHook installs the hook called before n's attributes or children
// are touched. nil removes it.
func (n *Node) SetAccessHook(h AccessHook) {
	n.hook = h
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func (n *Node) Walk(fn func(n *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(n *Node, depth int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children() {
		c.walk(fn, depth+1)
	}
}

// Clone deep-copies n into s as a detached subtree. A nil s clones into n's
// own store. Listeners and access hooks are not copied.
func (n *Node) Clone(s *Store) *Node {
	if s == nil {
		s = n.store
	}
	c := s.NewNode(n.typ)
	c.attrs = n.Attrs()
	for _, child := range n.Children() {
		cc := child.Clone(s)
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c
}

func (n *Node) String() string {
	return fmt.Sprintf("<%s>", n.typ)
}

func (n *Node) access(kind AccessKind, attr string, write bool) {
	if n.hook == nil || n.store.SyncLocked() {
		return
	}
	n.store.LockSync()
	defer n.store.UnlockSync()
	n.hook(n, kind, attr, write)
}

func (n *Node) snapshotListeners() []Listener {
	return slices.Clone(n.listeners)
}

// The helpers below mutate the raw structure. They never call hooks or
// listeners; only the store and mementos use them.

func (n *Node) attrIndex(name string) int {
	for i, a := range n.attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func (n *Node) attr(name string) (any, bool) {
	if i := n.attrIndex(name); i >= 0 {
		return n.attrs[i].Value, true
	}
	return nil, false
}

func (n *Node) putAttr(name string, value any) {
	if i := n.attrIndex(name); i >= 0 {
		n.attrs[i].Value = value
		return
	}
	n.attrs = append(n.attrs, Attribute{Name: name, Value: value})
}

func (n *Node) insertAttr(index int, name string, value any) {
	if index < 0 || index > len(n.attrs) {
		index = len(n.attrs)
	}
	n.attrs = slices.Insert(n.attrs, index, Attribute{Name: name, Value: value})
}

func (n *Node) deleteAttr(name string) int {
	i := n.attrIndex(name)
	if i >= 0 {
		n.attrs = slices.Delete(n.attrs, i, i+1)
	}
	return i
}

func (n *Node) indexOf(child *Node) int {
	return slices.Index(n.children, child)
}

func (n *Node) insertChild(child *Node, index int) {
	if index < 0 || index > len(n.children) {
		index = len(n.children)
	}
	n.children = slices.Insert(n.children, index, child)
	child.parent = n
}

func (n *Node) removeChildNode(child *Node) int {
	i := n.indexOf(child)
	if i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
		child.parent = nil
	}
	return i
}

func (n *Node) adopt(s *Store) {
	n.store = s
	for _, c := range n.children {
		c.adopt(s)
	}
}
