package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/dannyswat/vctree"
	"golang.org/x/exp/slices"
)

// Kind is the result kind of an expression.
type Kind int

const (
	KindNodeSet Kind = iota
	KindString
	KindNumber
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindNodeSet:
		return "node-set"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	}
	return "unknown"
}

// Values flowing through the engine are one of []*vctree.Node, string,
// float64 or bool.

// KindOf reports the kind of a value.
func KindOf(v any) Kind {
	switch v.(type) {
	case []*vctree.Node:
		return KindNodeSet
	case float64:
		return KindNumber
	case bool:
		return KindBoolean
	}
	return KindString
}

// StringValue converts a value to a string: a node-set yields the text
// value of its first node, numbers use the query language formatting.
func StringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return FormatNumber(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []*vctree.Node:
		if len(t) == 0 {
			return ""
		}
		return nodeString(t[0])
	}
	return vctree.FormatValue(v)
}

// NumberValue converts a value to a number. Strings that do not parse
// yield NaN.
func NumberValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		return parseNumber(t)
	}
	return parseNumber(StringValue(v))
}

// BooleanValue converts a value to a boolean: a node-set is true when
// non-empty, a number when non-zero and not NaN, a string when non-empty.
func BooleanValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case []*vctree.Node:
		return len(t) > 0
	}
	return v != nil
}

// FormatNumber renders a number the way the query language does: integers
// without a fraction, NaN and the infinities by name.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		if f == 0 {
			return "0"
		}
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func nodeString(n *vctree.Node) string {
	switch v := n.Value().(type) {
	case float64:
		return FormatNumber(v)
	case bool:
		return StringValue(v)
	}
	return n.Text()
}

// normalize turns the values callers hand to variables into engine values.
func normalize(v any) (any, bool) {
	switch t := v.(type) {
	case string, float64, bool:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case []*vctree.Node:
		return sortNodes(slices.Clone(t)), true
	case *vctree.Node:
		if t == nil {
			return []*vctree.Node{}, true
		}
		return []*vctree.Node{t}, true
	case nil:
		return "", true
	}
	return nil, false
}

// sameResult compares two results: node-sets by membership, scalars by
// value. NaN equals NaN here so that a NaN result is not reported as a
// change every time.
func sameResult(a, b any) bool {
	an, aok := a.([]*vctree.Node)
	bn, bok := b.([]*vctree.Node)
	if aok || bok {
		if aok != bok || len(an) != len(bn) {
			return false
		}
		set := make(map[*vctree.Node]bool, len(an))
		for _, n := range an {
			set[n] = true
		}
		for _, n := range bn {
			if !set[n] {
				return false
			}
		}
		return true
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok && math.IsNaN(af) && math.IsNaN(bf) {
		return true
	}
	return a == b
}

func sortNodes(nodes []*vctree.Node) []*vctree.Node {
	slices.SortStableFunc(nodes, vctree.DocumentOrder)
	return nodes
}

func dedupe(nodes []*vctree.Node) []*vctree.Node {
	seen := make(map[*vctree.Node]bool, len(nodes))
	out := nodes[:0]
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
