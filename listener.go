package vctree

// Listener observes structural changes on a single node.
//
// Callbacks run synchronously after the change is applied and before the
// mutating call returns. Mutations a listener issues against a node that is
// still being notified are buffered and replayed, in issue order, once the
// notification completes, so every listener sees the same state.
//
// Listeners are compared by ==, so implementations must be comparable
// (pointer receivers are the usual choice).
type Listener interface {
	// AttributeSet reports that name now holds value. old is nil when the
	// attribute did not exist before.
	AttributeSet(n *Node, name string, value, old any)

	// AttributeRemoved reports that name was removed; old is its last value.
	AttributeRemoved(n *Node, name string, old any)

	// ChildAdded reports that child now sits at index in n's child list.
	ChildAdded(n *Node, child *Node, index int)

	// ChildRemoved reports that child was removed from index.
	ChildRemoved(n *Node, child *Node, index int)
}

// ParentListener is implemented by listeners that also want to know when the
// observed node itself is attached, detached or reparented.
type ParentListener interface {
	ParentChanged(n *Node, parent, old *Node)
}

// ListenerFuncs adapts plain functions to Listener and ParentListener.
// Nil fields are ignored.
type ListenerFuncs struct {
	OnAttributeSet     func(n *Node, name string, value, old any)
	OnAttributeRemoved func(n *Node, name string, old any)
	OnChildAdded       func(n *Node, child *Node, index int)
	OnChildRemoved     func(n *Node, child *Node, index int)
	OnParentChanged    func(n *Node, parent, old *Node)
}

func (f *ListenerFuncs) AttributeSet(n *Node, name string, value, old any) {
	if f.OnAttributeSet != nil {
		f.OnAttributeSet(n, name, value, old)
	}
}

func (f *ListenerFuncs) AttributeRemoved(n *Node, name string, old any) {
	if f.OnAttributeRemoved != nil {
		f.OnAttributeRemoved(n, name, old)
	}
}

func (f *ListenerFuncs) ChildAdded(n *Node, child *Node, index int) {
	if f.OnChildAdded != nil {
		f.OnChildAdded(n, child, index)
	}
}

func (f *ListenerFuncs) ChildRemoved(n *Node, child *Node, index int) {
	if f.OnChildRemoved != nil {
		f.OnChildRemoved(n, child, index)
	}
}

func (f *ListenerFuncs) ParentChanged(n *Node, parent, old *Node) {
	if f.OnParentChanged != nil {
		f.OnParentChanged(n, parent, old)
	}
}

// AccessKind says which part of a node an access hook is guarding.
type AccessKind int

const (
	// AccessAttr guards a single named attribute.
	AccessAttr AccessKind = iota

	// AccessAttrs guards the attribute map as a whole (listing names).
	AccessAttrs

	// AccessChildren guards the child list.
	AccessChildren
)

// AccessHook runs before a node's attributes or children are read or
// written. Lazy-loading collaborators install one on external-reference
// nodes and populate the node on first touch. attr is only meaningful for
// AccessAttr. Hooks are suppressed while the store's sync lock is held.
type AccessHook func(n *Node, kind AccessKind, attr string, write bool)
