package query

import (
	"github.com/dannyswat/vctree"
	"golang.org/x/exp/slices"
)

// nodeSet is the bookkeeping shared by node-set expressions: one binding per
// context, reference-counted membership, and text value watches on members
// for listeners that want them.
type nodeSet struct {
	exprBase
	self   Expr
	bs     map[ctxKey]*nsBinding
	values map[*vctree.Node]*valueWatch
}

type nsBinding struct {
	ctx       *Context
	listeners []Listener

	// members counts how many sources contribute each node.
	members  map[*vctree.Node]int
	watching bool

	// state is the expression-specific part of the binding.
	state any
}

func (ns *nodeSet) init(self Expr) {
	ns.self = self
	ns.bs = make(map[ctxKey]*nsBinding)
	ns.values = make(map[*vctree.Node]*valueWatch)
}

func (ns *nodeSet) Kind(*Context) Kind {
	return KindNodeSet
}

func (ns *nodeSet) Ordinal() bool {
	return false
}

// attach adds l to the binding at ctx, creating it with setup if needed.
func (ns *nodeSet) attach(ctx *Context, l Listener, setup func(b *nsBinding) error) error {
	key := ctx.key()
	if b, ok := ns.bs[key]; ok {
		if !slices.Contains(b.listeners, l) {
			b.listeners = append(b.listeners, l)
			ns.rewatch(b)
		}
		return nil
	}

	b := &nsBinding{
		ctx:       ctx,
		listeners: []Listener{l},
		members:   make(map[*vctree.Node]int),
	}
	ns.bs[key] = b
	if setup != nil {
		if err := setup(b); err != nil {
			delete(ns.bs, key)
			ns.release(b)
			return err
		}
	}
	ns.rewatch(b)
	return nil
}

// detach removes l from the binding at ctx and tears the binding down with
// the last listener.
func (ns *nodeSet) detach(ctx *Context, l Listener, teardown func(b *nsBinding)) {
	key := ctx.key()
	b, ok := ns.bs[key]
	if !ok {
		return
	}
	i := slices.Index(b.listeners, l)
	if i < 0 {
		return
	}
	b.listeners = slices.Delete(b.listeners, i, i+1)
	if len(b.listeners) > 0 {
		ns.rewatch(b)
		return
	}
	delete(ns.bs, key)
	if teardown != nil {
		teardown(b)
	}
	ns.release(b)
}

func (ns *nodeSet) release(b *nsBinding) {
	if b.watching {
		for n := range b.members {
			ns.unwatch(b, n)
		}
		b.watching = false
	}
	b.members = make(map[*vctree.Node]int)
}

// rewatch attaches or drops value watches when the set of listeners that
// want value notifications changes.
func (ns *nodeSet) rewatch(b *nsBinding) {
	want := false
	for _, l := range b.listeners {
		if requiresValue(l, ns.self) {
			want = true
			break
		}
	}
	if want == b.watching {
		return
	}
	b.watching = want
	for n := range b.members {
		if want {
			ns.watch(b, n)
		} else {
			ns.unwatch(b, n)
		}
	}
}

func (ns *nodeSet) watch(b *nsBinding, n *vctree.Node) {
	vw, ok := ns.values[n]
	if !ok {
		vw = &valueWatch{ns: ns}
		ns.values[n] = vw
		n.AddListener(vw)
	}
	vw.bindings = append(vw.bindings, b)
}

func (ns *nodeSet) unwatch(b *nsBinding, n *vctree.Node) {
	vw, ok := ns.values[n]
	if !ok {
		return
	}
	if i := slices.Index(vw.bindings, b); i >= 0 {
		vw.bindings = slices.Delete(vw.bindings, i, i+1)
	}
	if len(vw.bindings) == 0 {
		n.RemoveListener(vw)
		delete(ns.values, n)
	}
}

// seed adds members without notifying.
func (ns *nodeSet) seed(b *nsBinding, nodes []*vctree.Node) {
	for _, n := range nodes {
		b.members[n]++
		if b.members[n] == 1 && b.watching {
			ns.watch(b, n)
		}
	}
}

// add counts one more contribution for each node and reports the nodes that
// joined the result.
func (ns *nodeSet) add(b *nsBinding, nodes []*vctree.Node) {
	var added []*vctree.Node
	for _, n := range nodes {
		b.members[n]++
		if b.members[n] == 1 {
			added = append(added, n)
			if b.watching {
				ns.watch(b, n)
			}
		}
	}
	ns.notifyAdd(b, added)
}

// remove drops one contribution for each node and reports the nodes that
// left the result.
func (ns *nodeSet) remove(b *nsBinding, nodes []*vctree.Node) {
	var removed []*vctree.Node
	for _, n := range nodes {
		c, ok := b.members[n]
		if !ok {
			continue
		}
		if c > 1 {
			b.members[n] = c - 1
			continue
		}
		delete(b.members, n)
		removed = append(removed, n)
		if b.watching {
			ns.unwatch(b, n)
		}
	}
	ns.notifyRemove(b, removed)
}

// replace swaps the membership for counts and reports the difference.
func (ns *nodeSet) replace(b *nsBinding, counts map[*vctree.Node]int, notify bool) {
	var added, removed []*vctree.Node
	for n := range b.members {
		if _, ok := counts[n]; !ok {
			removed = append(removed, n)
			if b.watching {
				ns.unwatch(b, n)
			}
		}
	}
	for n := range counts {
		if _, ok := b.members[n]; !ok {
			added = append(added, n)
			if b.watching {
				ns.watch(b, n)
			}
		}
	}
	b.members = counts
	if notify {
		ns.notifyRemove(b, sortNodes(removed))
		ns.notifyAdd(b, added)
	}
}

// sync replaces the membership with nodes, one contribution each.
func (ns *nodeSet) sync(b *nsBinding, nodes []*vctree.Node, notify bool) {
	counts := make(map[*vctree.Node]int, len(nodes))
	for _, n := range nodes {
		counts[n] = 1
	}
	ns.replace(b, counts, notify)
}

func (ns *nodeSet) notifyAdd(b *nsBinding, added []*vctree.Node) {
	if len(added) == 0 {
		return
	}
	sortNodes(added)
	for _, l := range slices.Clone(b.listeners) {
		l.NotifyAdd(ns.self, b.ctx, added)
	}
}

func (ns *nodeSet) notifyRemove(b *nsBinding, removed []*vctree.Node) {
	if len(removed) == 0 {
		return
	}
	for _, l := range slices.Clone(b.listeners) {
		l.NotifyRemove(ns.self, b.ctx, removed)
	}
}

func (ns *nodeSet) notifyReorder(b *nsBinding) {
	if len(b.members) == 0 {
		return
	}
	for _, l := range slices.Clone(b.listeners) {
		notifyReorder(l, ns.self, b.ctx)
	}
}

// update applies one mutation's worth of contributions. Additions are
// counted before removals, so a node that only moved between contributions
// stays a member without notice. moved reports whether any such node exists.
func (ns *nodeSet) update(b *nsBinding, added, removed []*vctree.Node) (moved bool) {
	var joined, left []*vctree.Node
	for _, n := range added {
		b.members[n]++
		if b.members[n] == 1 {
			joined = append(joined, n)
		}
	}
	for _, n := range removed {
		c, ok := b.members[n]
		if !ok {
			continue
		}
		if slices.Contains(added, n) && !slices.Contains(joined, n) {
			moved = true
		}
		if c > 1 {
			b.members[n] = c - 1
			continue
		}
		delete(b.members, n)
		if i := slices.Index(joined, n); i >= 0 {
			joined = slices.Delete(joined, i, i+1)
			continue
		}
		left = append(left, n)
	}
	if b.watching {
		for _, n := range left {
			ns.unwatch(b, n)
		}
		for _, n := range joined {
			ns.watch(b, n)
		}
	}
	ns.notifyRemove(b, left)
	ns.notifyAdd(b, joined)
	return moved
}

func (ns *nodeSet) notifyChange(b *nsBinding, value, old any) {
	for _, l := range slices.Clone(b.listeners) {
		l.NotifyChange(ns.self, b.ctx, value, old)
	}
}

func (ns *nodeSet) fail(b *nsBinding, err error) {
	err = evalErr(ns.self, b.ctx, err)
	for _, l := range slices.Clone(b.listeners) {
		l.HandleError(ns.self, b.ctx, err)
	}
}

// valueWatch observes one member node on behalf of every binding of an
// expression that holds it.
type valueWatch struct {
	ns       *nodeSet
	bindings []*nsBinding
}

func (vw *valueWatch) AttributeSet(n *vctree.Node, name string, value, old any) {
	if name == "" {
		vw.notify(n, value, old)
	}
}

func (vw *valueWatch) AttributeRemoved(n *vctree.Node, name string, old any) {
	if name == "" {
		vw.notify(n, nil, old)
	}
}

func (vw *valueWatch) ChildAdded(*vctree.Node, *vctree.Node, int)   {}
func (vw *valueWatch) ChildRemoved(*vctree.Node, *vctree.Node, int) {}

// notify groups the bound contexts per listener so each listener hears about
// a node once per change.
func (vw *valueWatch) notify(n *vctree.Node, value, old any) {
	type fan struct {
		l    Listener
		ctxs []*Context
	}
	var fans []*fan
	for _, b := range slices.Clone(vw.bindings) {
		for _, l := range b.listeners {
			if !requiresValue(l, vw.ns.self) {
				continue
			}
			i := slices.IndexFunc(fans, func(f *fan) bool { return f.l == l })
			if i < 0 {
				fans = append(fans, &fan{l: l})
				i = len(fans) - 1
			}
			fans[i].ctxs = append(fans[i].ctxs, b.ctx)
		}
	}
	for _, f := range fans {
		f.l.NotifyValue(vw.ns.self, f.ctxs, n, value, old)
	}
}

type rootExpr struct {
	nodeSet
}

// Root selects the root of the context node's tree. The root is resolved
// when the expression is bound.
func Root() Expr {
	r := &rootExpr{}
	r.init(r)
	return r
}

func (r *rootExpr) Eval(ctx *Context) (any, error) {
	return []*vctree.Node{ctx.Node.Root()}, nil
}

func (r *rootExpr) Bind(ctx *Context, l Listener) error {
	return r.attach(ctx, l, func(b *nsBinding) error {
		r.seed(b, []*vctree.Node{ctx.Node.Root()})
		return nil
	})
}

func (r *rootExpr) Unbind(ctx *Context, l Listener) {
	r.detach(ctx, l, nil)
}

func (r *rootExpr) String() string {
	return "/"
}

type selfExpr struct {
	nodeSet
}

// Self selects the context node.
func Self() Expr {
	s := &selfExpr{}
	s.init(s)
	return s
}

func (s *selfExpr) Eval(ctx *Context) (any, error) {
	return []*vctree.Node{ctx.Node}, nil
}

func (s *selfExpr) Bind(ctx *Context, l Listener) error {
	return s.attach(ctx, l, func(b *nsBinding) error {
		s.seed(b, []*vctree.Node{ctx.Node})
		return nil
	})
}

func (s *selfExpr) Unbind(ctx *Context, l Listener) {
	s.detach(ctx, l, nil)
}

func (s *selfExpr) String() string {
	return "."
}
