package query

import (
	"fmt"

	"github.com/dannyswat/vctree"
)

// Axis is the direction a location step moves in from each source node.
type Axis int

const (
	AxisChild Axis = iota
	AxisParent
	AxisDescendant
	AxisDescendantOrSelf
)

func (a Axis) String() string {
	switch a {
	case AxisChild:
		return "child"
	case AxisParent:
		return "parent"
	case AxisDescendant:
		return "descendant"
	case AxisDescendantOrSelf:
		return "descendant-or-self"
	}
	return "unknown"
}

// AnyType matches nodes of every type.
const AnyType = "*"

// StepSpec describes one location step of a Path.
type StepSpec struct {
	Axis Axis
	Type string
}

type step struct {
	nodeSet
	from Expr
	axis Axis
	typ  string
}

// NewStep selects the nodes of type typ reached along axis from every node
// of from.
func NewStep(from Expr, axis Axis, typ string) Expr {
	s := &step{from: from, axis: axis, typ: typ}
	s.init(s)
	adopt(s, from)
	return s
}

// Child selects children of type typ of the nodes of from.
func Child(from Expr, typ string) Expr {
	return NewStep(from, AxisChild, typ)
}

// Parent selects the parents of the nodes of from that have type typ.
func Parent(from Expr, typ string) Expr {
	return NewStep(from, AxisParent, typ)
}

// Descendant selects descendants of type typ of the nodes of from.
func Descendant(from Expr, typ string) Expr {
	return NewStep(from, AxisDescendant, typ)
}

// Path chains location steps starting at from.
func Path(from Expr, steps ...StepSpec) Expr {
	e := from
	for _, s := range steps {
		e = NewStep(e, s.Axis, s.Type)
	}
	return e
}

func (s *step) match(n *vctree.Node) bool {
	return s.typ == AnyType || n.Type() == s.typ
}

// collect returns the nodes reached from src.
func (s *step) collect(src *vctree.Node) []*vctree.Node {
	var out []*vctree.Node
	switch s.axis {
	case AxisChild:
		for _, c := range src.Children() {
			if s.match(c) {
				out = append(out, c)
			}
		}
	case AxisParent:
		if p := src.Parent(); p != nil && s.match(p) {
			out = append(out, p)
		}
	case AxisDescendant, AxisDescendantOrSelf:
		src.Walk(func(n *vctree.Node, depth int) bool {
			if (depth > 0 || s.axis == AxisDescendantOrSelf) && s.match(n) {
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

func (s *step) Eval(ctx *Context) (any, error) {
	sources, err := EvaluateNodes(s.from, ctx)
	if err != nil {
		return nil, err
	}
	var out []*vctree.Node
	for _, src := range sources {
		out = append(out, s.collect(src)...)
	}
	return sortNodes(dedupe(out)), nil
}

func (s *step) Bind(ctx *Context, l Listener) error {
	return s.attach(ctx, l, func(b *nsBinding) error {
		st := &stepState{
			s:       s,
			b:       b,
			sources: make(map[*vctree.Node]*source),
			watched: make(map[*vctree.Node]int),
			settled: make(map[*vctree.Node]bool),
		}
		b.state = st
		if err := s.from.Bind(ctx, st); err != nil {
			return err
		}
		sources, err := EvaluateNodes(s.from, ctx)
		if err != nil {
			s.from.Unbind(ctx, st)
			return err
		}
		for _, src := range sources {
			s.seed(b, st.addSource(src))
		}
		return nil
	})
}

func (s *step) Unbind(ctx *Context, l Listener) {
	s.detach(ctx, l, func(b *nsBinding) {
		st := b.state.(*stepState)
		s.from.Unbind(b.ctx, st)
		for src := range st.sources {
			st.dropSource(src)
		}
	})
}

func (s *step) String() string {
	return fmt.Sprintf("%s/%s::%s", s.from, s.axis, s.typ)
}

// stepState maintains a step's result incrementally. It relays deltas of the
// source set and observes the structure around every source.
type stepState struct {
	s       *step
	b       *nsBinding
	sources map[*vctree.Node]*source

	// watched counts the sources observing each node.
	watched map[*vctree.Node]int

	// settled holds children whose move ChildRemoved already accounted for.
	settled map[*vctree.Node]bool
}

type source struct {
	results map[*vctree.Node]bool
	watched map[*vctree.Node]bool
}

func (st *stepState) watch(src *source, n *vctree.Node) {
	if src.watched[n] {
		return
	}
	src.watched[n] = true
	st.watched[n]++
	if st.watched[n] == 1 {
		n.AddListener(st)
	}
}

func (st *stepState) unwatch(src *source, n *vctree.Node) {
	if !src.watched[n] {
		return
	}
	delete(src.watched, n)
	st.watched[n]--
	if st.watched[n] == 0 {
		delete(st.watched, n)
		n.RemoveListener(st)
	}
}

// addSource starts following src and returns the nodes it contributes.
func (st *stepState) addSource(n *vctree.Node) []*vctree.Node {
	if _, ok := st.sources[n]; ok {
		return nil
	}
	src := &source{
		results: make(map[*vctree.Node]bool),
		watched: make(map[*vctree.Node]bool),
	}
	st.sources[n] = src
	switch st.s.axis {
	case AxisChild, AxisParent:
		st.watch(src, n)
	default:
		n.Walk(func(d *vctree.Node, _ int) bool {
			st.watch(src, d)
			return true
		})
	}
	out := st.s.collect(n)
	for _, r := range out {
		src.results[r] = true
	}
	return out
}

// dropSource stops following n and returns the nodes it contributed.
func (st *stepState) dropSource(n *vctree.Node) []*vctree.Node {
	src, ok := st.sources[n]
	if !ok {
		return nil
	}
	delete(st.sources, n)
	for w := range src.watched {
		st.unwatch(src, w)
	}
	out := make([]*vctree.Node, 0, len(src.results))
	for r := range src.results {
		out = append(out, r)
	}
	return out
}

// covering returns the sources whose reach includes structural changes
// under n.
func (st *stepState) covering(n *vctree.Node) []*source {
	switch st.s.axis {
	case AxisChild:
		if src, ok := st.sources[n]; ok {
			return []*source{src}
		}
		return nil
	case AxisDescendant, AxisDescendantOrSelf:
		var out []*source
		for a := n; a != nil; a = a.Parent() {
			if src, ok := st.sources[a]; ok && src.watched[n] {
				out = append(out, src)
			}
		}
		return out
	}
	return nil
}

// gain records the nodes child brings under parent. reordered reports nodes
// that were already results and now sit elsewhere.
func (st *stepState) gain(parent, child *vctree.Node) (added []*vctree.Node, reordered bool) {
	for _, src := range st.covering(parent) {
		if st.s.axis == AxisChild {
			switch {
			case !st.s.match(child):
			case src.results[child]:
				reordered = true
			default:
				src.results[child] = true
				added = append(added, child)
			}
			continue
		}
		child.Walk(func(d *vctree.Node, _ int) bool {
			st.watch(src, d)
			switch {
			case !st.s.match(d):
			case src.results[d]:
				reordered = true
			default:
				src.results[d] = true
				added = append(added, d)
			}
			return true
		})
	}
	return added, reordered
}

// lose drops the nodes child took away from under parent.
func (st *stepState) lose(parent, child *vctree.Node) []*vctree.Node {
	var removed []*vctree.Node
	for _, src := range st.covering(parent) {
		if st.s.axis == AxisChild {
			// A reorder under the same parent arrives as remove then add.
			if child.Parent() == parent {
				continue
			}
			if src.results[child] {
				delete(src.results, child)
				removed = append(removed, child)
			}
			continue
		}
		if st.within(src, child) {
			continue
		}
		child.Walk(func(d *vctree.Node, _ int) bool {
			st.unwatch(src, d)
			if src.results[d] {
				delete(src.results, d)
				removed = append(removed, d)
			}
			return true
		})
	}
	return removed
}

func (st *stepState) ChildAdded(parent, child *vctree.Node, _ int) {
	if st.settled[child] {
		delete(st.settled, child)
		return
	}
	added, reordered := st.gain(parent, child)
	st.s.add(st.b, added)
	if reordered {
		st.s.notifyReorder(st.b)
	}
}

// ChildRemoved settles a move between two parents as a whole when the new
// parent is covered as well, so listeners never see the node missing. The
// ChildAdded that follows for that move is then ignored.
func (st *stepState) ChildRemoved(parent, child *vctree.Node, _ int) {
	to := child.Parent()
	if to == nil || to == parent {
		st.s.remove(st.b, st.lose(parent, child))
		return
	}
	if len(st.covering(to)) > 0 {
		st.settled[child] = true
	}
	added, reordered := st.gain(to, child)
	removed := st.lose(parent, child)
	if st.s.update(st.b, added, removed) || reordered {
		st.s.notifyReorder(st.b)
	}
}

// within reports whether n still hangs below the source src belongs to.
func (st *stepState) within(src *source, n *vctree.Node) bool {
	for a := n.Parent(); a != nil; a = a.Parent() {
		if st.sources[a] == src {
			return true
		}
	}
	return false
}

func (st *stepState) ParentChanged(n, parent, old *vctree.Node) {
	if st.s.axis != AxisParent {
		return
	}
	src, ok := st.sources[n]
	if !ok {
		return
	}
	var removed, added []*vctree.Node
	if old != nil && src.results[old] {
		delete(src.results, old)
		removed = append(removed, old)
	}
	if parent != nil && st.s.match(parent) && !src.results[parent] {
		src.results[parent] = true
		added = append(added, parent)
	}
	st.s.update(st.b, added, removed)
}

func (st *stepState) AttributeSet(*vctree.Node, string, any, any) {}
func (st *stepState) AttributeRemoved(*vctree.Node, string, any)  {}

func (st *stepState) NotifyAdd(_ Expr, _ *Context, added []*vctree.Node) {
	var out []*vctree.Node
	for _, n := range added {
		out = append(out, st.addSource(n)...)
	}
	st.s.add(st.b, out)
}

func (st *stepState) NotifyRemove(_ Expr, _ *Context, removed []*vctree.Node) {
	var out []*vctree.Node
	for _, n := range removed {
		out = append(out, st.dropSource(n)...)
	}
	st.s.remove(st.b, out)
}

// NotifyReorder relays a reorder of the sources; the results follow their
// order.
func (st *stepState) NotifyReorder(Expr, *Context) {
	st.s.notifyReorder(st.b)
}

func (st *stepState) NotifyChange(e Expr, ctx *Context, value, _ any) {
	st.s.fail(st.b, fmt.Errorf("%w: %s yields %s", ErrTypeMismatch, e, KindOf(value)))
}

func (st *stepState) NotifyValue(Expr, []*Context, *vctree.Node, any, any) {}

func (st *stepState) HandleError(_ Expr, _ *Context, err error) {
	st.s.fail(st.b, err)
}

func (st *stepState) RequiresValue(Expr) bool {
	return false
}
