package query

import (
	"errors"
	"testing"

	"github.com/dannyswat/vctree"
	"github.com/go-playground/assert/v2"
)

func TestScopePrecedence(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	chain := NewScopeChain(node(t, s, "r"), nil)
	high, low, mid := chain.AddScope(10), chain.AddScope(0), chain.AddScope(5)
	assert.Equal(t, chain.AddScope(5), mid)

	assert.Equal(t, low.Set("p", "low"), nil)
	assert.Equal(t, mid.Set("p", "mid"), nil)
	v, err := chain.Get("p")
	assert.Equal(t, err, nil)
	assert.Equal(t, v, "mid")

	// An empty value still shadows.
	assert.Equal(t, high.Set("p", ""), nil)
	v, _ = chain.Get("p")
	assert.Equal(t, v, "")

	assert.Equal(t, high.Remove("p"), nil)
	v, _ = chain.Get("p")
	assert.Equal(t, v, "mid")

	assert.Equal(t, mid.Remove("p"), nil)
	v, _ = chain.Get("p")
	assert.Equal(t, v, "low")

	// Removing an undefined name does nothing.
	assert.Equal(t, mid.Remove("p"), nil)

	_, err = chain.Get("missing")
	assert.Equal(t, errors.Is(err, ErrUndefinedVariable), true)
}

func TestLiteralReassignment(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	chain := NewScopeChain(node(t, s, "r"), nil)
	sc := chain.AddScope(0)
	assert.Equal(t, sc.Set("v", "2024-01"), nil)

	e := SubstringBefore(VarRef("v"), Literal("-"))
	rec := &recorder{}
	assert.Equal(t, e.Bind(chain.Context(), rec), nil)

	assert.Equal(t, sc.Set("v", "2025-02"), nil)
	assert.Equal(t, rec.changes, []change{{"2025", "2024"}})
	assert.Equal(t, s.Reverted(), false)

	// Same prefix, no change.
	assert.Equal(t, sc.Set("v", "2025-03"), nil)
	assert.Equal(t, len(rec.changes), 1)
	assert.Equal(t, len(rec.errs), 0)
}

func TestComputedVariable(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	r := node(t, s, "r")
	appendAll(t, r, node(t, s, "e", "id", "1"))
	chain := NewScopeChain(r, nil)
	sc := chain.AddScope(0)

	count := Count(Child(Self(), "e"))
	assert.Equal(t, sc.Define("n", count), nil)
	assert.Equal(t, sc.Variable("n").Computed(), true)
	assert.Equal(t, chain.IsBound("n"), false)

	e := Arith(OpAdd, VarRef("n"), Literal(1))
	ctx := chain.Context()
	v, err := EvaluateNumber(e, ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, v, 2.0)

	rec := &recorder{}
	assert.Equal(t, e.Bind(ctx, rec), nil)
	assert.Equal(t, chain.IsBound("n"), true)

	appendAll(t, r, node(t, s, "e", "id", "2"))
	assert.Equal(t, rec.changes, []change{{3.0, 2.0}})

	e.Unbind(ctx, rec)
	assert.Equal(t, chain.IsBound("n"), false)
	assert.Equal(t, r.HasListeners(), false)
}

func TestDefineErrors(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	chain := NewScopeChain(node(t, s, "r"), nil)
	sc := chain.AddScope(0)

	count := Count(Child(Self(), "e"))
	assert.Equal(t, sc.Define("n", count), nil)

	err := sc.Define("n", Literal(1))
	assert.Equal(t, errors.Is(err, ErrAlreadyDefined), true)

	err = sc.Define("m", count)
	assert.Equal(t, errors.Is(err, ErrExprOwned), true)

	inner := Child(Self(), "e")
	Count(inner)
	err = sc.Define("k", inner)
	assert.Equal(t, errors.Is(err, ErrNotRootExpr), true)

	err = sc.Set("n", 1)
	assert.Equal(t, errors.Is(err, ErrComputedVariable), true)

	err = sc.Set("bad", struct{}{})
	assert.Equal(t, errors.Is(err, ErrTypeMismatch), true)

	// Removing the variable frees its expression.
	assert.Equal(t, sc.Remove("n"), nil)
	assert.Equal(t, sc.Define("m", count), nil)
}

func TestShadowingAlongChain(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	r := node(t, s, "r")
	child := node(t, s, "c")
	appendAll(t, r, child)

	outer := NewScopeChain(r, nil)
	inner := NewScopeChain(child, outer)
	assert.Equal(t, inner.Parent(), outer)
	assert.Equal(t, outer.AddScope(0).Set("x", "outer"), nil)

	rec := &recorder{}
	ref := VarRef("x")
	assert.Equal(t, ref.Bind(inner.Context(), rec), nil)
	assert.Equal(t, ref.Kind(inner.Context()), KindString)

	sc := inner.AddScope(0)
	assert.Equal(t, sc.Set("x", "inner"), nil)
	assert.Equal(t, rec.changes, []change{{"inner", "outer"}})

	// The shadowed variable no longer reaches the reference.
	assert.Equal(t, outer.Scope(0).Set("x", "outer2"), nil)
	assert.Equal(t, len(rec.changes), 1)

	assert.Equal(t, sc.Remove("x"), nil)
	assert.Equal(t, rec.changes[1], change{"outer2", "inner"})
}

func TestVarRefNodeSet(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	r := node(t, s, "r")
	e1, e2 := node(t, s, "e", "id", "1"), node(t, s, "e", "id", "2")
	appendAll(t, r, e1)
	chain := NewScopeChain(r, nil)
	sc := chain.AddScope(0)
	assert.Equal(t, sc.Define("es", Child(Self(), "e")), nil)

	ref := VarRef("es")
	ctx := chain.Context()
	nodes, err := EvaluateNodes(ref, ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, nodes, []*vctree.Node{e1})

	rec := &recorder{}
	assert.Equal(t, ref.Bind(ctx, rec), nil)

	appendAll(t, r, e2)
	assert.Equal(t, rec.added, [][]*vctree.Node{{e2}})

	assert.Equal(t, r.RemoveChild(e1), nil)
	assert.Equal(t, rec.removed, [][]*vctree.Node{{e1}})

	// Reassigning the name to a scalar changes the kind.
	assert.Equal(t, sc.Remove("es"), nil)
	assert.Equal(t, rec.removed[1], []*vctree.Node{e2})
	assert.Equal(t, sc.Set("es", "flat"), nil)
	assert.Equal(t, rec.changes, []change{{"flat", nil}})
	assert.Equal(t, ref.Kind(ctx), KindString)
}

func TestVarRefWithoutScope(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	ctx := NewContext(node(t, s, "r"), nil)

	err := VarRef("x").Bind(ctx, &recorder{})
	assert.Equal(t, errors.Is(err, ErrNoScope), true)

	_, err = VarRef("x").Eval(ctx)
	assert.Equal(t, errors.Is(err, ErrNoScope), true)

	chain := NewScopeChain(ctx.Node, nil)
	_, err = VarRef("x").Eval(chain.Context())
	assert.Equal(t, errors.Is(err, ErrUndefinedVariable), true)
}

func TestVariableUndo(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	chain := NewScopeChain(node(t, s, "r"), nil)
	sc := chain.AddScope(0)
	h := vctree.NewHistory(s)
	defer h.Close()

	assert.Equal(t, sc.Set("v", "a"), nil)
	assert.Equal(t, sc.Set("v", "b"), nil)

	rec := &recorder{}
	assert.Equal(t, VarRef("v").Bind(chain.Context(), rec), nil)

	assert.Equal(t, h.Undo(), nil)
	v, _ := chain.Get("v")
	assert.Equal(t, v, "a")
	assert.Equal(t, rec.changes, []change{{"a", "b"}})

	assert.Equal(t, h.Undo(), nil)
	assert.Equal(t, sc.Has("v"), false)

	assert.Equal(t, h.Redo(), nil)
	v, _ = chain.Get("v")
	assert.Equal(t, v, "a")
}

func TestTimeTravelCoversVariables(t *testing.T) {
	s := vctree.NewStore(vctree.DefaultOptions())
	chain := NewScopeChain(node(t, s, "r"), nil)
	sc := chain.AddScope(0)
	assert.Equal(t, sc.Set("v", 1), nil)
	assert.Equal(t, sc.Set("v", 2), nil)

	err := s.TimeTravel(func() error {
		v, err := chain.Get("v")
		assert.Equal(t, v, 1.0)
		return err
	})
	assert.Equal(t, err, nil)

	v, _ := chain.Get("v")
	assert.Equal(t, v, 2.0)
}
