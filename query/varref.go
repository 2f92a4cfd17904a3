package query

import (
	"fmt"

	"github.com/dannyswat/vctree"
)

type varRef struct {
	nodeSet
	name string
}

// VarRef reads the variable name through the context's scope chain. Its
// kind is that of whatever the name currently resolves to. A bound
// reference follows reassignments, deltas of computed variables, and
// shadowing changes along the chain. The name does not need to be defined
// at bind time.
func VarRef(name string) Expr {
	r := &varRef{name: name}
	r.init(r)
	return r
}

func (r *varRef) Kind(ctx *Context) Kind {
	if ctx.Scope == nil {
		return KindString
	}
	v := ctx.Scope.Lookup(r.name)
	if v == nil {
		return KindString
	}
	return v.kind()
}

func (r *varRef) Eval(ctx *Context) (any, error) {
	if ctx.Scope == nil {
		return nil, evalErr(r, ctx, ErrNoScope)
	}
	v := ctx.Scope.Lookup(r.name)
	if v == nil {
		return nil, evalErr(r, ctx, fmt.Errorf("%w: $%s", ErrUndefinedVariable, r.name))
	}
	return v.Value()
}

func (r *varRef) Bind(ctx *Context, l Listener) error {
	if ctx.Scope == nil {
		return fmt.Errorf("binding %s: %w", r, ErrNoScope)
	}
	return r.attach(ctx, l, func(b *nsBinding) error {
		st := &refState{r: r, b: b, chain: ctx.Scope}
		b.state = st
		ctx.Scope.register(r.name, st)
		st.v = ctx.Scope.Lookup(r.name)
		if st.v == nil {
			return nil
		}
		if err := st.v.subscribe(st); err != nil {
			ctx.Scope.unregister(r.name, st)
			return err
		}
		if nodes, ok := st.current().([]*vctree.Node); ok {
			r.seed(b, nodes)
		}
		return nil
	})
}

func (r *varRef) Unbind(ctx *Context, l Listener) {
	r.detach(ctx, l, func(b *nsBinding) {
		st := b.state.(*refState)
		st.chain.unregister(r.name, st)
		if st.v != nil {
			st.v.unsubscribe(st)
			st.v = nil
		}
	})
}

func (r *varRef) String() string {
	return "$" + r.name
}

// refState is one bound reference: the chain it resolves through and the
// variable it currently resolves to.
type refState struct {
	r     *varRef
	b     *nsBinding
	chain *ScopeChain
	v     *Variable
}

// current evaluates the resolved variable; nil when it is undefined or
// fails.
func (st *refState) current() any {
	if st.v == nil {
		return nil
	}
	val, err := st.v.Value()
	if err != nil {
		st.r.fail(st.b, err)
		return nil
	}
	return val
}

// resolve follows a definition change along the chain and delivers the
// difference between the old and new variable's values.
func (st *refState) resolve() {
	next := st.chain.Lookup(st.r.name)
	if next == st.v {
		return
	}
	old := st.current()
	if st.v != nil {
		st.v.unsubscribe(st)
	}
	st.v = next
	if next != nil {
		if err := next.subscribe(st); err != nil {
			st.r.fail(st.b, err)
		}
	}
	st.deliver(old, st.current())
}

// deliver reports a change of the referenced value. Node-set to node-set
// changes arrive as membership deltas; anything else, including a change of
// kind, as NotifyChange. nil stands for an undefined variable.
func (st *refState) deliver(old, value any) {
	_, oldNS := old.([]*vctree.Node)
	newNodes, newNS := value.([]*vctree.Node)
	if (oldNS || old == nil) && (newNS || value == nil) {
		st.r.sync(st.b, newNodes, true)
		return
	}
	st.r.sync(st.b, newNodes, false)
	if !sameResult(value, old) {
		st.r.notifyChange(st.b, value, old)
	}
}
