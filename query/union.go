package query

import (
	"strings"

	"github.com/dannyswat/vctree"
)

type union struct {
	nodeSet
	args []Expr
}

// Union selects the nodes found in any of args.
func Union(args ...Expr) Expr {
	u := &union{args: args}
	u.init(u)
	adopt(u, args...)
	return u
}

func (u *union) Eval(ctx *Context) (any, error) {
	var out []*vctree.Node
	for _, a := range u.args {
		nodes, err := EvaluateNodes(a, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return sortNodes(dedupe(out)), nil
}

// counts evaluates every argument and counts how many contain each node.
func (u *union) counts(ctx *Context) (map[*vctree.Node]int, error) {
	counts := make(map[*vctree.Node]int)
	for _, a := range u.args {
		nodes, err := EvaluateNodes(a, ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			counts[n]++
		}
	}
	return counts, nil
}

func (u *union) Bind(ctx *Context, l Listener) error {
	return u.attach(ctx, l, func(b *nsBinding) error {
		st := &unionState{u: u, b: b}
		b.state = st
		for i, a := range u.args {
			if err := a.Bind(ctx, st); err != nil {
				for _, prev := range u.args[:i] {
					prev.Unbind(ctx, st)
				}
				return err
			}
		}
		counts, err := u.counts(ctx)
		if err != nil {
			st.release()
			return err
		}
		u.replace(b, counts, false)
		return nil
	})
}

func (u *union) Unbind(ctx *Context, l Listener) {
	u.detach(ctx, l, func(b *nsBinding) {
		b.state.(*unionState).release()
	})
}

func (u *union) String() string {
	parts := make([]string, len(u.args))
	for i, a := range u.args {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

type unionState struct {
	u *union
	b *nsBinding
}

func (st *unionState) release() {
	for _, a := range st.u.args {
		a.Unbind(st.b.ctx, st)
	}
}

func (st *unionState) NotifyAdd(_ Expr, _ *Context, added []*vctree.Node) {
	st.u.add(st.b, added)
}

func (st *unionState) NotifyRemove(_ Expr, _ *Context, removed []*vctree.Node) {
	st.u.remove(st.b, removed)
}

func (st *unionState) NotifyReorder(Expr, *Context) {
	st.u.notifyReorder(st.b)
}

// NotifyChange arrives when a variable argument switches kind. The
// membership is rebuilt from scratch.
func (st *unionState) NotifyChange(Expr, *Context, any, any) {
	counts, err := st.u.counts(st.b.ctx)
	if err != nil {
		st.u.replace(st.b, map[*vctree.Node]int{}, true)
		st.u.fail(st.b, err)
		return
	}
	st.u.replace(st.b, counts, true)
}

func (st *unionState) NotifyValue(Expr, []*Context, *vctree.Node, any, any) {}

func (st *unionState) HandleError(_ Expr, _ *Context, err error) {
	st.u.fail(st.b, err)
}

func (st *unionState) RequiresValue(Expr) bool {
	return false
}
