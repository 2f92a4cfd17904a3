package query

import (
	"fmt"

	"github.com/dannyswat/vctree"
)

// Context is the point an expression is evaluated or bound at: a context
// node, an optional ordinal position within a node-set, and the scope chain
// variables resolve through.
//
// Subscriptions are keyed by the context's contents, not its address, so two
// equal contexts share one binding.
type Context struct {
	Node *vctree.Node

	// Position and Size are 1-based and only meaningful when Size > 0.
	Position int
	Size     int

	Scope *ScopeChain
}

type ctxKey struct {
	node     *vctree.Node
	scope    *ScopeChain
	position int
	size     int
}

// NewContext creates a context without ordinal information.
func NewContext(n *vctree.Node, scope *ScopeChain) *Context {
	return &Context{Node: n, Scope: scope}
}

// Sub returns a context for n sharing c's scope chain.
func (c *Context) Sub(n *vctree.Node) *Context {
	return &Context{Node: n, Scope: c.Scope}
}

// At returns an ordinal context for n at position pos of size nodes.
func (c *Context) At(n *vctree.Node, pos, size int) *Context {
	return &Context{Node: n, Position: pos, Size: size, Scope: c.Scope}
}

// HasOrdinal reports whether position and size are populated.
func (c *Context) HasOrdinal() bool {
	return c.Size > 0
}

func (c *Context) String() string {
	if c.HasOrdinal() {
		return fmt.Sprintf("%s[%d/%d]", c.Node, c.Position, c.Size)
	}
	return c.Node.String()
}

func (c *Context) key() ctxKey {
	return ctxKey{node: c.Node, scope: c.Scope, position: c.Position, size: c.Size}
}

// store returns the store whose transaction log backs time travel for
// expressions bound at c.
func (c *Context) store() *vctree.Store {
	if c.Node != nil {
		return c.Node.Store()
	}
	if c.Scope != nil && c.Scope.node != nil {
		return c.Scope.node.Store()
	}
	return nil
}
