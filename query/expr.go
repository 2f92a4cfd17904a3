package query

import (
	"fmt"

	"github.com/dannyswat/vctree"
	"github.com/golang/glog"
)

// Expr is a typed, composable query node. Once bound at a context it keeps
// its result current and reports deltas to its listeners instead of being
// re-evaluated by them.
type Expr interface {
	// Kind reports the result kind at ctx. Only variable references have a
	// context-dependent kind.
	Kind(ctx *Context) Kind

	// Eval computes the result at ctx: []*vctree.Node, string, float64 or bool.
	Eval(ctx *Context) (any, error)

	// Bind subscribes l to the expression's result at ctx. Binding the same
	// listener at an equal context twice has no effect.
	Bind(ctx *Context, l Listener) error

	// Unbind removes l's subscription at ctx. The last unbind at a context
	// releases every subscription the expression holds for it.
	Unbind(ctx *Context, l Listener)

	// Ordinal reports whether the expression reads the context position or
	// size.
	Ordinal() bool

	String() string

	base() *exprBase
}

type exprBase struct {
	parent Expr
	owner  *Variable
}

func (b *exprBase) base() *exprBase {
	return b
}

func adopt(parent Expr, args ...Expr) {
	for _, a := range args {
		a.base().parent = parent
	}
}

// IsRoot reports whether e is not an argument of another expression.
func IsRoot(e Expr) bool {
	return e.base().parent == nil
}

// Listener receives the deltas of a bound expression.
type Listener interface {
	// NotifyAdd reports nodes that joined a node-set result, in document
	// order.
	NotifyAdd(e Expr, ctx *Context, added []*vctree.Node)

	// NotifyRemove reports nodes that left a node-set result.
	NotifyRemove(e Expr, ctx *Context, removed []*vctree.Node)

	// NotifyChange reports a new scalar result. old is the result the
	// expression had before the mutation.
	NotifyChange(e Expr, ctx *Context, value, old any)

	// NotifyValue reports that the text value of member n changed. ctxs
	// lists every context the listener is bound at whose result holds n.
	NotifyValue(e Expr, ctxs []*Context, n *vctree.Node, value, old any)

	// HandleError receives evaluation failures raised while a delta was
	// computed. The mutation that triggered it is unaffected.
	HandleError(e Expr, ctx *Context, err error)
}

// ValueRequirer is implemented by listeners that can tell whether they need
// NotifyValue from a given expression. Listeners that do not implement it
// receive value notifications.
type ValueRequirer interface {
	RequiresValue(e Expr) bool
}

func requiresValue(l Listener, e Expr) bool {
	if vr, ok := l.(ValueRequirer); ok {
		return vr.RequiresValue(e)
	}
	return true
}

// OrderListener is implemented by listeners whose result depends on the
// document order of a node-set. NotifyReorder reports that members of e's
// result changed relative order while the membership stayed the same.
// Listeners that do not implement it are not told about reorders.
type OrderListener interface {
	NotifyReorder(e Expr, ctx *Context)
}

func notifyReorder(l Listener, e Expr, ctx *Context) {
	if ol, ok := l.(OrderListener); ok {
		ol.NotifyReorder(e, ctx)
	}
}

// ListenerFuncs adapts plain functions to Listener. Nil fields ignore the
// event; a nil OnError logs it.
type ListenerFuncs struct {
	OnAdd     func(e Expr, ctx *Context, added []*vctree.Node)
	OnRemove  func(e Expr, ctx *Context, removed []*vctree.Node)
	OnChange  func(e Expr, ctx *Context, value, old any)
	OnValue   func(e Expr, ctxs []*Context, n *vctree.Node, value, old any)
	OnReorder func(e Expr, ctx *Context)
	OnError   func(e Expr, ctx *Context, err error)
}

func (f *ListenerFuncs) NotifyAdd(e Expr, ctx *Context, added []*vctree.Node) {
	if f.OnAdd != nil {
		f.OnAdd(e, ctx, added)
	}
}

func (f *ListenerFuncs) NotifyRemove(e Expr, ctx *Context, removed []*vctree.Node) {
	if f.OnRemove != nil {
		f.OnRemove(e, ctx, removed)
	}
}

func (f *ListenerFuncs) NotifyChange(e Expr, ctx *Context, value, old any) {
	if f.OnChange != nil {
		f.OnChange(e, ctx, value, old)
	}
}

func (f *ListenerFuncs) NotifyValue(e Expr, ctxs []*Context, n *vctree.Node, value, old any) {
	if f.OnValue != nil {
		f.OnValue(e, ctxs, n, value, old)
	}
}

func (f *ListenerFuncs) NotifyReorder(e Expr, ctx *Context) {
	if f.OnReorder != nil {
		f.OnReorder(e, ctx)
	}
}

func (f *ListenerFuncs) HandleError(e Expr, ctx *Context, err error) {
	if f.OnError != nil {
		f.OnError(e, ctx, err)
		return
	}
	glog.Warningf("[query]%s at %s: %s\n", e, ctx, err)
}

// RequiresValue asks for value notifications only when OnValue is set.
func (f *ListenerFuncs) RequiresValue(Expr) bool {
	return f.OnValue != nil
}

// EvaluateNodes evaluates e at ctx and requires a node-set result.
func EvaluateNodes(e Expr, ctx *Context) ([]*vctree.Node, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return nil, err
	}
	nodes, ok := v.([]*vctree.Node)
	if !ok {
		return nil, evalErr(e, ctx, fmt.Errorf("%w: %s is not a node-set", ErrTypeMismatch, KindOf(v)))
	}
	return nodes, nil
}

// EvaluateString evaluates e at ctx and converts the result to a string.
func EvaluateString(e Expr, ctx *Context) (string, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return "", err
	}
	return StringValue(v), nil
}

// EvaluateNumber evaluates e at ctx and converts the result to a number.
func EvaluateNumber(e Expr, ctx *Context) (float64, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return 0, err
	}
	return NumberValue(v), nil
}

// EvaluateBoolean evaluates e at ctx and converts the result to a boolean.
func EvaluateBoolean(e Expr, ctx *Context) (bool, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return false, err
	}
	return BooleanValue(v), nil
}
