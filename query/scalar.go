package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/dannyswat/vctree"
	"golang.org/x/exp/slices"
)

type literal struct {
	exprBase
	value any
}

// Literal is a constant. Integers become numbers; nil is the empty string.
func Literal(v any) Expr {
	nv, ok := normalize(v)
	if !ok {
		nv = fmt.Sprint(v)
	}
	return &literal{value: nv}
}

func (l *literal) Kind(*Context) Kind { return KindOf(l.value) }
func (l *literal) Eval(*Context) (any, error) { return l.value, nil }
func (l *literal) Bind(*Context, Listener) error { return nil }
func (l *literal) Unbind(*Context, Listener) {}
func (l *literal) Ordinal() bool { return false }

func (l *literal) String() string {
	switch v := l.value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case float64:
		return FormatNumber(v)
	case bool:
		return fmt.Sprintf("%t()", v)
	}
	return fmt.Sprint(l.value)
}

// call is a scalar expression computed from its arguments. Once bound it
// recomputes on every argument delta and reports a change when the result
// differs. The previous result comes, in order of preference, from a count
// kept incrementally, from the argument's own previous value, or from
// evaluating again with the triggering mutation rolled back.
type call struct {
	exprBase
	name string
	op   string
	kind Kind
	args []Expr
	fn   func(ctx *Context, args []any) (any, error)

	// ordinal marks position() and last().
	ordinal bool

	// unary functions depend on their single argument's value only, so the
	// previous result follows from the previous argument value.
	unary bool

	// count keeps the cardinality of its argument incrementally.
	count bool

	// values is false when member value edits cannot change the result.
	values bool

	// attr is the attribute AttrOf reads; set attributes are watched
	// directly on the argument's members.
	attr      string
	watchAttr bool

	bs map[ctxKey]*callBinding
}

func newCall(name string, kind Kind, fn func(ctx *Context, args []any) (any, error), args ...Expr) *call {
	c := &call{
		name:   name,
		kind:   kind,
		args:   args,
		fn:     fn,
		values: true,
		bs:     make(map[ctxKey]*callBinding),
	}
	adopt(c, args...)
	return c
}

func (c *call) Kind(*Context) Kind {
	return c.kind
}

func (c *call) Ordinal() bool {
	if c.ordinal {
		return true
	}
	for _, a := range c.args {
		if a.Ordinal() {
			return true
		}
	}
	return false
}

func (c *call) String() string {
	if c.op != "" && len(c.args) == 2 {
		return fmt.Sprintf("(%s %s %s)", c.args[0], c.op, c.args[1])
	}
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.String()
	}
	return c.name + "(" + strings.Join(parts, ", ") + ")"
}

func (c *call) Eval(ctx *Context) (any, error) {
	if c.ordinal && !ctx.HasOrdinal() {
		return nil, evalErr(c, ctx, ErrNoOrdinalContext)
	}
	vals := make([]any, len(c.args))
	for i, a := range c.args {
		v, err := a.Eval(ctx)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	v, err := c.fn(ctx, vals)
	if err != nil {
		return nil, evalErr(c, ctx, err)
	}
	return v, nil
}

func (c *call) Bind(ctx *Context, l Listener) error {
	if c.Ordinal() && !ctx.HasOrdinal() {
		return fmt.Errorf("binding %s: %w", c, ErrNoOrdinalContext)
	}
	key := ctx.key()
	if b, ok := c.bs[key]; ok {
		if !slices.Contains(b.listeners, l) {
			b.listeners = append(b.listeners, l)
		}
		return nil
	}

	b := &callBinding{c: c, ctx: ctx, listeners: []Listener{l}}
	for i, a := range c.args {
		if err := a.Bind(ctx, b); err != nil {
			for _, prev := range c.args[:i] {
				prev.Unbind(ctx, b)
			}
			return err
		}
	}
	if err := b.prime(); err != nil {
		b.release()
		return err
	}
	c.bs[key] = b
	return nil
}

func (c *call) Unbind(ctx *Context, l Listener) {
	key := ctx.key()
	b, ok := c.bs[key]
	if !ok {
		return
	}
	i := slices.Index(b.listeners, l)
	if i < 0 {
		return
	}
	b.listeners = slices.Delete(b.listeners, i, i+1)
	if len(b.listeners) > 0 {
		return
	}
	delete(c.bs, key)
	b.release()
}

// callBinding is one bound context of a call. It is the listener the call
// registers with its arguments.
type callBinding struct {
	c         *call
	ctx       *Context
	listeners []Listener
	gen       uint64

	n       int
	watched map[*vctree.Node]bool
}

// prime captures the state incremental updates start from.
func (b *callBinding) prime() error {
	if b.c.count {
		v, err := b.c.Eval(b.ctx)
		if err != nil {
			return err
		}
		b.n = int(v.(float64))
	}
	if b.c.watchAttr {
		nodes, err := EvaluateNodes(b.c.args[0], b.ctx)
		if err != nil {
			return err
		}
		b.watched = make(map[*vctree.Node]bool)
		b.watch(nodes)
	}
	return nil
}

func (b *callBinding) release() {
	for _, a := range b.c.args {
		a.Unbind(b.ctx, b)
	}
	for n := range b.watched {
		n.RemoveListener(b)
	}
	b.watched = nil
}

func (b *callBinding) watch(nodes []*vctree.Node) {
	for _, n := range nodes {
		if !b.watched[n] {
			b.watched[n] = true
			n.AddListener(b)
		}
	}
}

func (b *callBinding) unwatch(nodes []*vctree.Node) {
	for _, n := range nodes {
		if b.watched[n] {
			delete(b.watched, n)
			n.RemoveListener(b)
		}
	}
}

func (b *callBinding) emit(value, old any) {
	if sameResult(value, old) {
		return
	}
	for _, l := range slices.Clone(b.listeners) {
		l.NotifyChange(b.c, b.ctx, value, old)
	}
}

func (b *callBinding) fail(err error) {
	err = evalErr(b.c, b.ctx, err)
	for _, l := range slices.Clone(b.listeners) {
		l.HandleError(b.c, b.ctx, err)
	}
}

// recompute reports the change caused by the mutation in progress. The old
// result is evaluated with that mutation rolled back; the store is restored
// before anything else happens, even when evaluation fails. A binding
// recomputes at most once per mutation.
func (b *callBinding) recompute() {
	s := b.ctx.store()
	gen := s.Generation()
	if b.gen == gen {
		return
	}
	b.gen = gen

	var old any
	err := s.TimeTravel(func() error {
		var err error
		old, err = b.c.Eval(b.ctx)
		return err
	})
	if err != nil {
		b.fail(err)
		return
	}
	value, err := b.c.Eval(b.ctx)
	if err != nil {
		b.fail(err)
		return
	}
	b.emit(value, old)
}

// derive computes old and new results of a unary function from its
// argument's change.
func (b *callBinding) derive(value, old any) {
	b.gen = b.ctx.store().Generation()
	nv, err := b.c.fn(b.ctx, []any{value})
	if err != nil {
		b.fail(err)
		return
	}
	ov, err := b.c.fn(b.ctx, []any{old})
	if err != nil {
		b.fail(err)
		return
	}
	b.emit(nv, ov)
}

func (b *callBinding) NotifyAdd(_ Expr, _ *Context, added []*vctree.Node) {
	if b.c.count {
		old := b.n
		b.n += len(added)
		b.emit(float64(b.n), float64(old))
		return
	}
	if b.c.watchAttr {
		b.watch(added)
	}
	b.recompute()
}

func (b *callBinding) NotifyRemove(_ Expr, _ *Context, removed []*vctree.Node) {
	if b.c.count {
		old := b.n
		b.n -= len(removed)
		b.emit(float64(b.n), float64(old))
		return
	}
	if b.c.watchAttr {
		b.unwatch(removed)
	}
	b.recompute()
}

// NotifyReorder recomputes results that read the first member or the
// members in order. A count cannot change.
func (b *callBinding) NotifyReorder(Expr, *Context) {
	if b.c.count {
		return
	}
	b.recompute()
}

func (b *callBinding) NotifyChange(_ Expr, _ *Context, value, old any) {
	if b.c.unary {
		b.derive(value, old)
		return
	}
	if b.c.count {
		b.fail(fmt.Errorf("%w: count() of %s", ErrTypeMismatch, KindOf(value)))
		return
	}
	b.recompute()
}

func (b *callBinding) NotifyValue(Expr, []*Context, *vctree.Node, any, any) {
	b.recompute()
}

func (b *callBinding) HandleError(_ Expr, _ *Context, err error) {
	b.fail(err)
}

func (b *callBinding) RequiresValue(Expr) bool {
	return b.c.values
}

func (b *callBinding) AttributeSet(_ *vctree.Node, name string, _, _ any) {
	if name == b.c.attr {
		b.recompute()
	}
}

func (b *callBinding) AttributeRemoved(_ *vctree.Node, name string, _ any) {
	if name == b.c.attr {
		b.recompute()
	}
}

func (b *callBinding) ChildAdded(*vctree.Node, *vctree.Node, int)   {}
func (b *callBinding) ChildRemoved(*vctree.Node, *vctree.Node, int) {}

func unary(name string, kind Kind, arg Expr, fn func(v any) (any, error)) *call {
	c := newCall(name, kind, func(_ *Context, args []any) (any, error) {
		return fn(args[0])
	}, arg)
	c.unary = true
	return c
}

// StringOf converts its argument to a string.
func StringOf(e Expr) Expr {
	return unary("string", KindString, e, func(v any) (any, error) {
		return StringValue(v), nil
	})
}

// NumberOf converts its argument to a number.
func NumberOf(e Expr) Expr {
	return unary("number", KindNumber, e, func(v any) (any, error) {
		return NumberValue(v), nil
	})
}

// BooleanOf converts its argument to a boolean.
func BooleanOf(e Expr) Expr {
	return unary("boolean", KindBoolean, e, func(v any) (any, error) {
		return BooleanValue(v), nil
	})
}

// Not negates the boolean value of its argument.
func Not(e Expr) Expr {
	return unary("not", KindBoolean, e, func(v any) (any, error) {
		return !BooleanValue(v), nil
	})
}

// AttrOf reads the named attribute of the first node of ns, in document
// order, as a string. A missing node or attribute yields "".
func AttrOf(ns Expr, name string) Expr {
	c := newCall("attr", KindString, func(_ *Context, args []any) (any, error) {
		nodes, ok := args[0].([]*vctree.Node)
		if !ok {
			return nil, fmt.Errorf("%w: attribute of %s", ErrTypeMismatch, KindOf(args[0]))
		}
		if len(nodes) == 0 {
			return "", nil
		}
		v, ok := nodes[0].Attr(name)
		if !ok {
			return "", nil
		}
		if f, isNum := v.(float64); isNum {
			return FormatNumber(f), nil
		}
		return vctree.FormatValue(v), nil
	}, ns)
	c.attr = name
	c.watchAttr = true
	c.values = false
	return c
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Compare applies op to a and b. A node-set operand compares true if any of
// its members does.
func Compare(op CompareOp, a, b Expr) Expr {
	c := newCall(string(op), KindBoolean, func(_ *Context, args []any) (any, error) {
		return compareValues(op, args[0], args[1]), nil
	}, a, b)
	c.op = string(op)
	return c
}

func compareValues(op CompareOp, a, b any) bool {
	an, aNS := a.([]*vctree.Node)
	bn, bNS := b.([]*vctree.Node)
	switch {
	case aNS && bNS:
		for _, x := range an {
			for _, y := range bn {
				if compareAtoms(op, nodeString(x), nodeString(y)) {
					return true
				}
			}
		}
		return false
	case aNS:
		if bb, ok := b.(bool); ok {
			return compareAtoms(op, len(an) > 0, bb)
		}
		for _, x := range an {
			if compareAtoms(op, nodeString(x), b) {
				return true
			}
		}
		return false
	case bNS:
		if ab, ok := a.(bool); ok {
			return compareAtoms(op, ab, len(bn) > 0)
		}
		for _, y := range bn {
			if compareAtoms(op, a, nodeString(y)) {
				return true
			}
		}
		return false
	}
	return compareAtoms(op, a, b)
}

func compareAtoms(op CompareOp, a, b any) bool {
	if op == OpEq || op == OpNe {
		var eq bool
		_, aBool := a.(bool)
		_, bBool := b.(bool)
		_, aNum := a.(float64)
		_, bNum := b.(float64)
		switch {
		case aBool || bBool:
			eq = BooleanValue(a) == BooleanValue(b)
		case aNum || bNum:
			eq = NumberValue(a) == NumberValue(b)
		default:
			eq = StringValue(a) == StringValue(b)
		}
		if op == OpEq {
			return eq
		}
		return !eq
	}
	x, y := NumberValue(a), NumberValue(b)
	switch op {
	case OpLt:
		return x < y
	case OpLe:
		return x <= y
	case OpGt:
		return x > y
	case OpGe:
		return x >= y
	}
	return false
}

// ArithOp is an arithmetic operator.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "div"
	OpMod ArithOp = "mod"
)

// Arith applies op to the numeric values of a and b.
func Arith(op ArithOp, a, b Expr) Expr {
	c := newCall(string(op), KindNumber, func(_ *Context, args []any) (any, error) {
		x, y := NumberValue(args[0]), NumberValue(args[1])
		switch op {
		case OpAdd:
			return x + y, nil
		case OpSub:
			return x - y, nil
		case OpMul:
			return x * y, nil
		case OpDiv:
			return x / y, nil
		case OpMod:
			return math.Mod(x, y), nil
		}
		return nil, fmt.Errorf("unknown operator %q", op)
	}, a, b)
	c.op = string(op)
	return c
}

// And is the boolean conjunction of a and b. Both sides are always
// evaluated.
func And(a, b Expr) Expr {
	c := newCall("and", KindBoolean, func(_ *Context, args []any) (any, error) {
		x, y := BooleanValue(args[0]), BooleanValue(args[1])
		return x && y, nil
	}, a, b)
	c.op = "and"
	return c
}

// Or is the boolean disjunction of a and b. Both sides are always
// evaluated.
func Or(a, b Expr) Expr {
	c := newCall("or", KindBoolean, func(_ *Context, args []any) (any, error) {
		x, y := BooleanValue(args[0]), BooleanValue(args[1])
		return x || y, nil
	}, a, b)
	c.op = "or"
	return c
}
