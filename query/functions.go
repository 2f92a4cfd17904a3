package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/dannyswat/vctree"
)

func nodeArg(name string, v any) ([]*vctree.Node, error) {
	nodes, ok := v.([]*vctree.Node)
	if !ok {
		return nil, fmt.Errorf("%w: %s() expects a node-set, got %s", ErrTypeMismatch, name, KindOf(v))
	}
	return nodes, nil
}

// Count is the number of nodes in ns. It follows membership deltas and
// ignores value edits.
func Count(ns Expr) Expr {
	c := newCall("count", KindNumber, func(_ *Context, args []any) (any, error) {
		nodes, err := nodeArg("count", args[0])
		if err != nil {
			return nil, err
		}
		return float64(len(nodes)), nil
	}, ns)
	c.count = true
	c.values = false
	return c
}

// Sum adds the numeric values of the nodes in ns.
func Sum(ns Expr) Expr {
	return newCall("sum", KindNumber, func(_ *Context, args []any) (any, error) {
		nodes, err := nodeArg("sum", args[0])
		if err != nil {
			return nil, err
		}
		total := 0.0
		for _, n := range nodes {
			total += NumberValue(nodeString(n))
		}
		return total, nil
	}, ns)
}

// Name is the type of the first node of ns. A nil ns means the context
// node.
func Name(ns Expr) Expr {
	if ns == nil {
		ns = Self()
	}
	c := newCall("name", KindString, func(_ *Context, args []any) (any, error) {
		nodes, err := nodeArg("name", args[0])
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			return "", nil
		}
		return nodes[0].Type(), nil
	}, ns)
	c.values = false
	return c
}

// Position is the context position.
func Position() Expr {
	c := newCall("position", KindNumber, func(ctx *Context, _ []any) (any, error) {
		return float64(ctx.Position), nil
	})
	c.ordinal = true
	return c
}

// Last is the context size.
func Last() Expr {
	c := newCall("last", KindNumber, func(ctx *Context, _ []any) (any, error) {
		return float64(ctx.Size), nil
	})
	c.ordinal = true
	return c
}

// StringLength is the number of characters in the string value of e. A nil
// e means the context node.
func StringLength(e Expr) Expr {
	if e == nil {
		e = Self()
	}
	return unary("string-length", KindNumber, e, func(v any) (any, error) {
		return float64(len([]rune(StringValue(v)))), nil
	})
}

// NormalizeSpace trims the string value of e and collapses inner runs of
// whitespace to one space. A nil e means the context node.
func NormalizeSpace(e Expr) Expr {
	if e == nil {
		e = Self()
	}
	return unary("normalize-space", KindString, e, func(v any) (any, error) {
		return strings.Join(strings.Fields(StringValue(v)), " "), nil
	})
}

// Concat joins the string values of args.
func Concat(args ...Expr) Expr {
	return newCall("concat", KindString, func(_ *Context, vals []any) (any, error) {
		var sb strings.Builder
		for _, v := range vals {
			sb.WriteString(StringValue(v))
		}
		return sb.String(), nil
	}, args...)
}

// Contains reports whether the string value of a contains that of b.
func Contains(a, b Expr) Expr {
	return newCall("contains", KindBoolean, func(_ *Context, vals []any) (any, error) {
		return strings.Contains(StringValue(vals[0]), StringValue(vals[1])), nil
	}, a, b)
}

// StartsWith reports whether the string value of a starts with that of b.
func StartsWith(a, b Expr) Expr {
	return newCall("starts-with", KindBoolean, func(_ *Context, vals []any) (any, error) {
		return strings.HasPrefix(StringValue(vals[0]), StringValue(vals[1])), nil
	}, a, b)
}

// SubstringBefore is the part of a before the first occurrence of b, or ""
// when b does not occur.
func SubstringBefore(a, b Expr) Expr {
	return newCall("substring-before", KindString, func(_ *Context, vals []any) (any, error) {
		s, sep := StringValue(vals[0]), StringValue(vals[1])
		if i := strings.Index(s, sep); i >= 0 {
			return s[:i], nil
		}
		return "", nil
	}, a, b)
}

// SubstringAfter is the part of a after the first occurrence of b, or ""
// when b does not occur.
func SubstringAfter(a, b Expr) Expr {
	return newCall("substring-after", KindString, func(_ *Context, vals []any) (any, error) {
		s, sep := StringValue(vals[0]), StringValue(vals[1])
		if i := strings.Index(s, sep); i >= 0 {
			return s[i+len(sep):], nil
		}
		return "", nil
	}, a, b)
}

// Substring returns the characters of s from the 1-based position start,
// length characters long, or to the end when length is nil. Positions are
// rounded the way the query language rounds them.
func Substring(s, start, length Expr) Expr {
	args := []Expr{s, start}
	if length != nil {
		args = append(args, length)
	}
	return newCall("substring", KindString, func(_ *Context, vals []any) (any, error) {
		runes := []rune(StringValue(vals[0]))
		first := round(NumberValue(vals[1]))
		end := math.Inf(1)
		if len(vals) == 3 {
			end = first + round(NumberValue(vals[2]))
		}
		var sb strings.Builder
		for i, r := range runes {
			p := float64(i + 1)
			if p >= first && p < end {
				sb.WriteRune(r)
			}
		}
		return sb.String(), nil
	}, args...)
}

// round rounds half up, keeping NaN and the infinities.
func round(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return math.Floor(f + 0.5)
}

// Translate replaces each character of s found in from with the character
// at the same index in to, dropping it when to is shorter.
func Translate(s, from, to Expr) Expr {
	return newCall("translate", KindString, func(_ *Context, vals []any) (any, error) {
		src := StringValue(vals[0])
		f, t := []rune(StringValue(vals[1])), []rune(StringValue(vals[2]))
		var sb strings.Builder
		for _, r := range src {
			i := indexRune(f, r)
			switch {
			case i < 0:
				sb.WriteRune(r)
			case i < len(t):
				sb.WriteRune(t[i])
			}
		}
		return sb.String(), nil
	}, s, from, to)
}

func indexRune(rs []rune, r rune) int {
	for i, x := range rs {
		if x == r {
			return i
		}
	}
	return -1
}

// Func builds a custom scalar function. fn receives the evaluated argument
// values; once bound the function is recomputed on every argument delta.
func Func(name string, kind Kind, fn func(args []any) (any, error), args ...Expr) Expr {
	return newCall(name, kind, func(_ *Context, vals []any) (any, error) {
		return fn(vals)
	}, args...)
}

type builtin struct {
	min, max int
	build    func(args []Expr) Expr
}

func opt(args []Expr, i int) Expr {
	if i < len(args) {
		return args[i]
	}
	return nil
}

var builtins = map[string]builtin{
	"count":            {1, 1, func(a []Expr) Expr { return Count(a[0]) }},
	"sum":              {1, 1, func(a []Expr) Expr { return Sum(a[0]) }},
	"name":             {0, 1, func(a []Expr) Expr { return Name(opt(a, 0)) }},
	"position":         {0, 0, func([]Expr) Expr { return Position() }},
	"last":             {0, 0, func([]Expr) Expr { return Last() }},
	"string":           {1, 1, func(a []Expr) Expr { return StringOf(a[0]) }},
	"number":           {1, 1, func(a []Expr) Expr { return NumberOf(a[0]) }},
	"boolean":          {1, 1, func(a []Expr) Expr { return BooleanOf(a[0]) }},
	"not":              {1, 1, func(a []Expr) Expr { return Not(a[0]) }},
	"string-length":    {0, 1, func(a []Expr) Expr { return StringLength(opt(a, 0)) }},
	"normalize-space":  {0, 1, func(a []Expr) Expr { return NormalizeSpace(opt(a, 0)) }},
	"concat":           {2, -1, func(a []Expr) Expr { return Concat(a...) }},
	"contains":         {2, 2, func(a []Expr) Expr { return Contains(a[0], a[1]) }},
	"starts-with":      {2, 2, func(a []Expr) Expr { return StartsWith(a[0], a[1]) }},
	"substring-before": {2, 2, func(a []Expr) Expr { return SubstringBefore(a[0], a[1]) }},
	"substring-after":  {2, 2, func(a []Expr) Expr { return SubstringAfter(a[0], a[1]) }},
	"substring":        {2, 3, func(a []Expr) Expr { return Substring(a[0], a[1], opt(a, 2)) }},
	"translate":        {3, 3, func(a []Expr) Expr { return Translate(a[0], a[1], a[2]) }},
}

// Call builds the named core function.
func Call(name string, args ...Expr) (Expr, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %s()", name)
	}
	if len(args) < b.min || (b.max >= 0 && len(args) > b.max) {
		return nil, fmt.Errorf("%w: %s() takes %s, got %d", ErrArity, name, arity(b), len(args))
	}
	return b.build(args), nil
}

func arity(b builtin) string {
	switch {
	case b.max < 0:
		return fmt.Sprintf("at least %d", b.min)
	case b.min == b.max:
		return fmt.Sprintf("%d", b.min)
	}
	return fmt.Sprintf("%d to %d", b.min, b.max)
}
