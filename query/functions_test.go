package query

import (
	"errors"
	"math"
	"testing"

	"github.com/dannyswat/vctree"
	"github.com/go-playground/assert/v2"
)

func sampleTree(t *testing.T) *vctree.Node {
	t.Helper()
	s := vctree.NewStore(vctree.DefaultOptions())
	r := node(t, s, "r")
	appendAll(t, r,
		node(t, s, "e", "", "3", "id", "a"),
		node(t, s, "e", "", "4", "id", "b"),
		node(t, s, "f", "", "  hello   world "),
	)
	return r
}

func TestFunctions(t *testing.T) {
	r := sampleTree(t)
	ctx := NewContext(r, nil)
	es := func() Expr { return Child(Self(), "e") }

	tests := []struct {
		name string
		expr Expr
		want any
	}{
		{"count", Count(es()), 2.0},
		{"sum", Sum(es()), 7.0},
		{"name", Name(es()), "e"},
		{"name of self", Name(nil), "r"},
		{"string of node-set", StringOf(es()), "3"},
		{"number", NumberOf(Literal(" 12 ")), 12.0},
		{"boolean of empty", BooleanOf(Child(Self(), "x")), false},
		{"not", Not(Literal("")), true},
		{"string-length", StringLength(Literal("héllo")), 5.0},
		{"normalize-space", NormalizeSpace(Child(Self(), "f")), "hello world"},
		{"concat", Concat(Literal("a"), Literal(1), Literal(true)), "a1true"},
		{"contains", Contains(Literal("abc"), Literal("b")), true},
		{"starts-with", StartsWith(Literal("abc"), Literal("b")), false},
		{"substring-before", SubstringBefore(Literal("2024-01"), Literal("-")), "2024"},
		{"substring-before missing", SubstringBefore(Literal("2024"), Literal("-")), ""},
		{"substring-after", SubstringAfter(Literal("2024-01"), Literal("-")), "01"},
		{"substring", Substring(Literal("12345"), Literal(2), Literal(3)), "234"},
		{"substring rounds", Substring(Literal("12345"), Literal(1.5), Literal(2.6)), "234"},
		{"substring to end", Substring(Literal("12345"), Literal(0), nil), "12345"},
		{"translate", Translate(Literal("bar"), Literal("abc"), Literal("AB")), "BAr"},
		{"attr", AttrOf(es(), "id"), "a"},
		{"attr missing", AttrOf(es(), "nope"), ""},
		{"add", Arith(OpAdd, Sum(es()), Literal(1)), 8.0},
		{"div", Arith(OpDiv, Literal(1), Literal(4)), 0.25},
		{"mod", Arith(OpMod, Literal(-5), Literal(2)), -1.0},
		{"and", And(Literal(true), Count(Child(Self(), "x"))), false},
		{"or", Or(Literal(false), Literal("x")), true},
		{"custom", Func("twice", KindNumber, func(args []any) (any, error) {
			return NumberValue(args[0]) * 2, nil
		}, Literal(21)), 42.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.expr.Eval(ctx)
			assert.Equal(t, err, nil)
			assert.Equal(t, got, tc.want)
		})
	}
}

func TestCompare(t *testing.T) {
	r := sampleTree(t)
	ctx := NewContext(r, nil)
	es := func() Expr { return Child(Self(), "e") }

	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{"any member equals", Compare(OpEq, es(), Literal(4)), true},
		{"any member differs", Compare(OpNe, es(), Literal(4)), true},
		{"no member equals", Compare(OpEq, es(), Literal("5")), false},
		{"literal on the left", Compare(OpLt, Literal(3.5), es()), true},
		{"member greater", Compare(OpGt, es(), Literal(4)), false},
		{"node-sets", Compare(OpEq, es(), Child(Self(), "e")), true},
		{"empty set against true", Compare(OpEq, Child(Self(), "x"), Literal(true)), false},
		{"empty set against anything", Compare(OpNe, Child(Self(), "x"), Literal("")), false},
		{"number against string", Compare(OpEq, Literal(1), Literal("1.0")), true},
		{"boolean against string", Compare(OpEq, Literal(true), Literal("x")), true},
		{"strings", Compare(OpEq, Literal("a"), Literal("b")), false},
		{"ordering strings", Compare(OpLe, Literal("2"), Literal("10")), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateBoolean(tc.expr, ctx)
			assert.Equal(t, err, nil)
			assert.Equal(t, got, tc.want)
		})
	}
}

func TestNumberFormatting(t *testing.T) {
	assert.Equal(t, FormatNumber(3), "3")
	assert.Equal(t, FormatNumber(-0.5), "-0.5")
	assert.Equal(t, FormatNumber(math.NaN()), "NaN")
	assert.Equal(t, FormatNumber(math.Inf(-1)), "-Infinity")
	assert.Equal(t, math.IsNaN(NumberValue("abc")), true)

	v, err := EvaluateString(Arith(OpDiv, Literal(1), Literal(0)), nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, v, "Infinity")
}

func TestCall(t *testing.T) {
	e, err := Call("substring-before", Literal("a-b"), Literal("-"))
	assert.Equal(t, err, nil)
	v, err := e.Eval(nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, v, "a")

	_, err = Call("concat", Literal("a"))
	assert.Equal(t, errors.Is(err, ErrArity), true)
	assert.Equal(t, err.Error(), "wrong number of arguments: concat() takes at least 2, got 1")

	_, err = Call("substring", Literal("a"))
	assert.Equal(t, err.Error(), "wrong number of arguments: substring() takes 2 to 3, got 1")

	_, err = Call("nope")
	assert.NotEqual(t, err, nil)
}

func TestTypeMismatch(t *testing.T) {
	r := sampleTree(t)
	ctx := NewContext(r, nil)

	_, err := Count(Literal("x")).Eval(ctx)
	assert.Equal(t, errors.Is(err, ErrTypeMismatch), true)

	_, err = EvaluateNodes(Count(Self()), ctx)
	assert.Equal(t, errors.Is(err, ErrTypeMismatch), true)
}
