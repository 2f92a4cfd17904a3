package query

import (
	"fmt"

	"github.com/dannyswat/vctree"
)

type filter struct {
	nodeSet
	from Expr
	pred Expr
}

// Filter keeps the nodes of from for which pred holds. pred is evaluated
// with each node as context node. A numeric predicate selects by position,
// so does one that reads position() or last(); both are evaluated with an
// ordinal context and re-evaluated whenever the input set changes.
func Filter(from, pred Expr) Expr {
	f := &filter{from: from, pred: pred}
	f.init(f)
	adopt(f, from, pred)
	return f
}

func (f *filter) ordinal(ctx *Context) bool {
	return f.pred.Ordinal() || f.pred.Kind(ctx) == KindNumber
}

func (f *filter) test(ctx *Context) (bool, error) {
	v, err := f.pred.Eval(ctx)
	if err != nil {
		return false, err
	}
	if n, ok := v.(float64); ok {
		return n == float64(ctx.Position), nil
	}
	return BooleanValue(v), nil
}

func (f *filter) Eval(ctx *Context) (any, error) {
	nodes, err := EvaluateNodes(f.from, ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*vctree.Node, 0, len(nodes))
	for i, n := range nodes {
		ok, err := f.test(ctx.At(n, i+1, len(nodes)))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *filter) Bind(ctx *Context, l Listener) error {
	return f.attach(ctx, l, func(b *nsBinding) error {
		st := &filterState{
			f:       f,
			b:       b,
			ordinal: f.ordinal(ctx),
			cands:   make(map[*vctree.Node]*candidate),
		}
		b.state = st
		if err := f.from.Bind(ctx, st); err != nil {
			return err
		}
		nodes, err := EvaluateNodes(f.from, ctx)
		if err == nil {
			for _, n := range nodes {
				st.cands[n] = &candidate{}
			}
			var passed []*vctree.Node
			passed, _, err = st.refresh(nodes)
			f.seed(b, passed)
		}
		if err != nil {
			st.release()
			return err
		}
		return nil
	})
}

func (f *filter) Unbind(ctx *Context, l Listener) {
	f.detach(ctx, l, func(b *nsBinding) {
		b.state.(*filterState).release()
	})
}

func (f *filter) String() string {
	return fmt.Sprintf("%s[%s]", f.from, f.pred)
}

type filterState struct {
	f       *filter
	b       *nsBinding
	ordinal bool
	cands   map[*vctree.Node]*candidate
}

// candidate is one node of the input set with the context its predicate is
// bound at.
type candidate struct {
	ctx  *Context
	pass bool
}

func (st *filterState) release() {
	st.f.from.Unbind(st.b.ctx, st)
	for _, c := range st.cands {
		if c.ctx != nil {
			st.f.pred.Unbind(c.ctx, st)
		}
	}
	st.cands = make(map[*vctree.Node]*candidate)
}

// refresh rebinds the predicate of the given candidates where their context
// moved and re-tests them. It returns the nodes that now pass and did not,
// and those that stopped passing. In ordinal mode nodes must be every
// candidate in document order.
func (st *filterState) refresh(nodes []*vctree.Node) (passed, failed []*vctree.Node, err error) {
	for i, n := range nodes {
		c := st.cands[n]
		want := st.b.ctx.Sub(n)
		if st.ordinal {
			want = st.b.ctx.At(n, i+1, len(nodes))
		}
		if c.ctx == nil || c.ctx.key() != want.key() {
			if c.ctx != nil {
				st.f.pred.Unbind(c.ctx, st)
			}
			c.ctx = want
			if err := st.f.pred.Bind(want, st); err != nil {
				return passed, failed, err
			}
		}
		ok, err := st.f.test(c.ctx)
		if err != nil {
			return passed, failed, err
		}
		if ok != c.pass {
			c.pass = ok
			if ok {
				passed = append(passed, n)
			} else {
				failed = append(failed, n)
			}
		}
	}
	return passed, failed, nil
}

// all returns every candidate node in document order.
func (st *filterState) all() []*vctree.Node {
	out := make([]*vctree.Node, 0, len(st.cands))
	for n := range st.cands {
		out = append(out, n)
	}
	return sortNodes(out)
}

func (st *filterState) apply(passed, failed []*vctree.Node, err error) {
	st.f.remove(st.b, failed)
	st.f.add(st.b, passed)
	if err != nil {
		st.f.fail(st.b, err)
	}
}

func (st *filterState) NotifyAdd(e Expr, ctx *Context, added []*vctree.Node) {
	if e != st.f.from {
		st.recheck(ctx)
		return
	}
	for _, n := range added {
		if _, ok := st.cands[n]; !ok {
			st.cands[n] = &candidate{}
		}
	}
	if st.ordinal {
		st.apply(st.refresh(st.all()))
		return
	}
	st.apply(st.refresh(added))
}

func (st *filterState) NotifyRemove(e Expr, ctx *Context, removed []*vctree.Node) {
	if e != st.f.from {
		st.recheck(ctx)
		return
	}
	var gone []*vctree.Node
	for _, n := range removed {
		c, ok := st.cands[n]
		if !ok {
			continue
		}
		delete(st.cands, n)
		if c.ctx != nil {
			st.f.pred.Unbind(c.ctx, st)
		}
		if c.pass {
			gone = append(gone, n)
		}
	}
	if !st.ordinal {
		st.f.remove(st.b, gone)
		return
	}
	passed, failed, err := st.refresh(st.all())
	st.apply(passed, append(gone, failed...), err)
}

// NotifyReorder re-tests positional predicates, whose candidates' positions
// follow document order, and passes the reorder on.
func (st *filterState) NotifyReorder(e Expr, _ *Context) {
	if e != st.f.from {
		return
	}
	if st.ordinal {
		st.apply(st.refresh(st.all()))
	}
	st.f.notifyReorder(st.b)
}

func (st *filterState) NotifyChange(e Expr, ctx *Context, value, _ any) {
	if e == st.f.from {
		st.f.fail(st.b, fmt.Errorf("%w: %s yields %s", ErrTypeMismatch, e, KindOf(value)))
		return
	}
	st.recheck(ctx)
}

func (st *filterState) NotifyValue(e Expr, ctxs []*Context, _ *vctree.Node, _, _ any) {
	if e == st.f.from {
		return
	}
	for _, ctx := range ctxs {
		st.recheck(ctx)
	}
}

func (st *filterState) HandleError(_ Expr, _ *Context, err error) {
	st.f.fail(st.b, err)
}

// RequiresValue declines value notifications. Member values of the input do
// not decide membership, and a node-set predicate only counts as non-empty.
func (st *filterState) RequiresValue(Expr) bool {
	return false
}

// recheck re-tests the candidate whose predicate reported a change at ctx.
func (st *filterState) recheck(ctx *Context) {
	if st.ordinal {
		st.apply(st.refresh(st.all()))
		return
	}
	c, ok := st.cands[ctx.Node]
	if !ok || c.ctx == nil || c.ctx.key() != ctx.key() {
		return
	}
	st.apply(st.refresh([]*vctree.Node{ctx.Node}))
}
