package query

import (
	"fmt"

	"github.com/dannyswat/vctree"
	"golang.org/x/exp/slices"
)

// Variable is a named value in a scope: a literal, or computed from an
// expression bound at the scope chain's node.
type Variable struct {
	name  string
	scope *Scope
	value any
	expr  Expr
	ctx   *Context

	subs  []*refState
	bound bool
}

// Name returns the variable name.
func (v *Variable) Name() string {
	return v.name
}

// Computed reports whether the variable is backed by an expression.
func (v *Variable) Computed() bool {
	return v.expr != nil
}

// Value returns the literal value, or evaluates the backing expression.
func (v *Variable) Value() (any, error) {
	if v.expr != nil {
		return v.expr.Eval(v.ctx)
	}
	return v.value, nil
}

func (v *Variable) kind() Kind {
	if v.expr != nil {
		return v.expr.Kind(v.ctx)
	}
	return KindOf(v.value)
}

// subscribe registers a variable reference. The backing expression is bound
// with the first subscriber.
func (v *Variable) subscribe(st *refState) error {
	if slices.Contains(v.subs, st) {
		return nil
	}
	if v.expr != nil && !v.bound {
		if err := v.expr.Bind(v.ctx, v); err != nil {
			return err
		}
		v.bound = true
	}
	v.subs = append(v.subs, st)
	return nil
}

func (v *Variable) unsubscribe(st *refState) {
	if i := slices.Index(v.subs, st); i >= 0 {
		v.subs = slices.Delete(v.subs, i, i+1)
	}
	if len(v.subs) == 0 && v.bound {
		v.expr.Unbind(v.ctx, v)
		v.bound = false
	}
}

// changed delivers a literal reassignment to every subscriber.
func (v *Variable) changed(value, old any) {
	for _, st := range slices.Clone(v.subs) {
		st.deliver(old, value)
	}
}

// A computed variable relays its expression's deltas to its subscribers.

func (v *Variable) NotifyAdd(_ Expr, _ *Context, added []*vctree.Node) {
	for _, st := range slices.Clone(v.subs) {
		st.r.add(st.b, added)
	}
}

func (v *Variable) NotifyRemove(_ Expr, _ *Context, removed []*vctree.Node) {
	for _, st := range slices.Clone(v.subs) {
		st.r.remove(st.b, removed)
	}
}

func (v *Variable) NotifyReorder(Expr, *Context) {
	for _, st := range slices.Clone(v.subs) {
		st.r.notifyReorder(st.b)
	}
}

func (v *Variable) NotifyChange(_ Expr, _ *Context, value, old any) {
	for _, st := range slices.Clone(v.subs) {
		st.deliver(old, value)
	}
}

func (v *Variable) NotifyValue(Expr, []*Context, *vctree.Node, any, any) {}

func (v *Variable) HandleError(_ Expr, _ *Context, err error) {
	for _, st := range slices.Clone(v.subs) {
		st.r.fail(st.b, err)
	}
}

// RequiresValue declines value notifications; references watch the values
// of their own members.
func (v *Variable) RequiresValue(Expr) bool {
	return false
}

// Scope is one precedence level of a scope chain.
type Scope struct {
	chain      *ScopeChain
	precedence int
	vars       map[string]*Variable
}

// Precedence returns the scope's precedence; higher wins.
func (s *Scope) Precedence() int {
	return s.precedence
}

// Has reports whether name is defined in this scope.
func (s *Scope) Has(name string) bool {
	_, ok := s.vars[name]
	return ok
}

// Variable returns the variable named name defined in this scope, or nil.
func (s *Scope) Variable(name string) *Variable {
	return s.vars[name]
}

func (s *Scope) store() *vctree.Store {
	return s.chain.node.Store()
}

// Set assigns a literal value, creating the variable if needed. References
// bound to it receive the delta. Assignments are recorded in the store's
// transaction log.
func (s *Scope) Set(name string, value any) error {
	nv, ok := normalize(value)
	if !ok {
		return fmt.Errorf("%w: cannot assign %T to $%s", ErrTypeMismatch, value, name)
	}
	v, exists := s.vars[name]
	if exists && v.expr != nil {
		return fmt.Errorf("$%s: %w", name, ErrComputedVariable)
	}
	if !exists {
		v = &Variable{name: name, scope: s}
		m := &SetVariableChange{Scope: s, Var: v, Value: nv, created: true}
		return s.store().Record(m, func() { s.chain.rebind(name) })
	}
	old := v.value
	m := &SetVariableChange{Scope: s, Var: v, Value: nv, Old: old}
	return s.store().Record(m, func() { v.changed(nv, old) })
}

// Define binds name to a computed expression. e must be a root expression
// not already backing a variable, and name must not be defined in this
// scope yet.
func (s *Scope) Define(name string, e Expr) error {
	if _, exists := s.vars[name]; exists {
		return fmt.Errorf("$%s: %w", name, ErrAlreadyDefined)
	}
	if !IsRoot(e) {
		return fmt.Errorf("$%s: %w", name, ErrNotRootExpr)
	}
	if e.base().owner != nil {
		return fmt.Errorf("$%s: %w", name, ErrExprOwned)
	}
	v := &Variable{
		name:  name,
		scope: s,
		expr:  e,
		ctx:   s.chain.Context(),
	}
	return s.define(v)
}

func (s *Scope) define(v *Variable) error {
	m := &DefineVariableChange{Scope: s, Var: v}
	return s.store().Record(m, func() { s.chain.rebind(v.name) })
}

// Remove deletes name from this scope. References re-resolve through the
// chain; removing an undefined name does nothing.
func (s *Scope) Remove(name string) error {
	v, ok := s.vars[name]
	if !ok {
		return nil
	}
	m := &RemoveVariableChange{Scope: s, Var: v}
	return s.store().Record(m, func() { s.chain.rebind(name) })
}

// ScopeChain resolves variable names through precedence-ordered scopes, then
// through its parent chain.
type ScopeChain struct {
	node     *vctree.Node
	parent   *ScopeChain
	scopes   []*Scope
	children []*ScopeChain

	// refs lists the bound variable references resolving through this chain,
	// by name.
	refs map[string][]*refState
}

// NewScopeChain creates a chain anchored at node. Computed variables are
// evaluated with node as context node. parent may be nil.
func NewScopeChain(node *vctree.Node, parent *ScopeChain) *ScopeChain {
	c := &ScopeChain{
		node:   node,
		parent: parent,
		refs:   make(map[string][]*refState),
	}
	if parent != nil {
		parent.children = append(parent.children, c)
	}
	return c
}

// Node returns the node the chain is anchored at.
func (c *ScopeChain) Node() *vctree.Node {
	return c.node
}

// Parent returns the enclosing chain, or nil.
func (c *ScopeChain) Parent() *ScopeChain {
	return c.parent
}

// Context returns a context at the chain's node resolving through c.
func (c *ScopeChain) Context() *Context {
	return NewContext(c.node, c)
}

// AddScope returns the scope with the given precedence, creating it if
// needed.
func (c *ScopeChain) AddScope(precedence int) *Scope {
	if s := c.Scope(precedence); s != nil {
		return s
	}
	s := &Scope{chain: c, precedence: precedence, vars: make(map[string]*Variable)}
	c.scopes = append(c.scopes, s)
	slices.SortStableFunc(c.scopes, func(a, b *Scope) int {
		return b.precedence - a.precedence
	})
	return s
}

// Scope returns the scope with the given precedence, or nil.
func (c *ScopeChain) Scope(precedence int) *Scope {
	for _, s := range c.scopes {
		if s.precedence == precedence {
			return s
		}
	}
	return nil
}

// Lookup finds the variable name resolves to: the first scope, from the
// highest precedence down and then along the parent chain, that defines it.
// A defined variable wins even when its value is empty.
func (c *ScopeChain) Lookup(name string) *Variable {
	for ch := c; ch != nil; ch = ch.parent {
		for _, s := range ch.scopes {
			if v, ok := s.vars[name]; ok {
				return v
			}
		}
	}
	return nil
}

// Get returns the current value of name.
func (c *ScopeChain) Get(name string) (any, error) {
	v := c.Lookup(name)
	if v == nil {
		return nil, fmt.Errorf("%w: $%s", ErrUndefinedVariable, name)
	}
	return v.Value()
}

// IsBound reports whether any bound reference subscribes to the variable
// name resolves to.
func (c *ScopeChain) IsBound(name string) bool {
	v := c.Lookup(name)
	return v != nil && len(v.subs) > 0
}

// rebind re-resolves the references to name bound through c and every chain
// below it.
func (c *ScopeChain) rebind(name string) {
	for _, st := range slices.Clone(c.refs[name]) {
		st.resolve()
	}
	for _, child := range slices.Clone(c.children) {
		child.rebind(name)
	}
}

func (c *ScopeChain) register(name string, st *refState) {
	c.refs[name] = append(c.refs[name], st)
}

func (c *ScopeChain) unregister(name string, st *refState) {
	refs := c.refs[name]
	if i := slices.Index(refs, st); i >= 0 {
		refs = slices.Delete(refs, i, i+1)
	}
	if len(refs) == 0 {
		delete(c.refs, name)
		return
	}
	c.refs[name] = refs
}

// SetVariableChange records a literal assignment. Reverting it restores the
// previous value, or removes a variable the assignment created.
type SetVariableChange struct {
	Scope   *Scope
	Var     *Variable
	Value   any
	Old     any
	created bool
}

func (c *SetVariableChange) Apply() error {
	return c.Scope.Set(c.Var.name, c.Value)
}

func (c *SetVariableChange) Revert() {
	if c.created {
		delete(c.Scope.vars, c.Var.name)
		return
	}
	c.Var.value = c.Old
}

func (c *SetVariableChange) Restore() {
	c.Var.value = c.Value
	if c.created {
		c.Scope.vars[c.Var.name] = c.Var
	}
}

func (c *SetVariableChange) Inverse() vctree.Memento {
	if c.created {
		return &RemoveVariableChange{Scope: c.Scope, Var: c.Var}
	}
	return &SetVariableChange{Scope: c.Scope, Var: c.Var, Value: c.Old, Old: c.Value}
}

// DefineVariableChange records the definition of a computed variable.
type DefineVariableChange struct {
	Scope *Scope
	Var   *Variable
}

func (c *DefineVariableChange) Apply() error {
	if _, exists := c.Scope.vars[c.Var.name]; exists {
		return fmt.Errorf("$%s: %w", c.Var.name, ErrAlreadyDefined)
	}
	return c.Scope.define(c.Var)
}

func (c *DefineVariableChange) Revert() {
	delete(c.Scope.vars, c.Var.name)
	c.Var.expr.base().owner = nil
}

func (c *DefineVariableChange) Restore() {
	c.Scope.vars[c.Var.name] = c.Var
	c.Var.expr.base().owner = c.Var
}

func (c *DefineVariableChange) Inverse() vctree.Memento {
	return &RemoveVariableChange{Scope: c.Scope, Var: c.Var}
}

// RemoveVariableChange records the removal of a variable from a scope.
type RemoveVariableChange struct {
	Scope *Scope
	Var   *Variable
}

func (c *RemoveVariableChange) Apply() error {
	return c.Scope.Remove(c.Var.name)
}

func (c *RemoveVariableChange) Revert() {
	c.Scope.vars[c.Var.name] = c.Var
	if c.Var.expr != nil {
		c.Var.expr.base().owner = c.Var
	}
}

func (c *RemoveVariableChange) Restore() {
	delete(c.Scope.vars, c.Var.name)
	if c.Var.expr != nil {
		c.Var.expr.base().owner = nil
	}
}

func (c *RemoveVariableChange) Inverse() vctree.Memento {
	if c.Var.expr != nil {
		return &DefineVariableChange{Scope: c.Scope, Var: c.Var}
	}
	return &SetVariableChange{Scope: c.Scope, Var: c.Var, Value: c.Var.value, created: true}
}
