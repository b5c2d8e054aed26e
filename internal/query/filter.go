// Package query implements KoruDelta's filter-query and views surface:
// a small composable predicate engine over a stored value's generic
// map[string]any decoding, grounded on the teacher's ShouldBindJSON
// request-decoding style (internal/api/handlers.go).
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Op names a condition's comparison operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpLike    Op = "like"
	OpExists  Op = "exists"
	OpIsNull  Op = "is_null"
)

// Condition is one leaf predicate: Field compared to Value by Op.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Combinator joins child filters (And/Or) or negates one (Not).
type Combinator string

const (
	CombAnd Combinator = "and"
	CombOr  Combinator = "or"
	CombNot Combinator = "not"
)

// Filter is a tree node: either a leaf Condition or a Combinator over
// child Filters. Exactly one of Cond/Children should be set, enforced
// by the constructors below rather than by an interface type, so the
// tree decodes cleanly from JSON.
type Filter struct {
	Cond     *Condition
	Comb     Combinator
	Children []Filter
}

// Eq, Ne, Gt, Gte, Lt, Lte, In, Like, Exists, IsNull build leaf filters.
func Eq(field string, v any) Filter     { return leaf(field, OpEq, v) }
func Ne(field string, v any) Filter     { return leaf(field, OpNe, v) }
func Gt(field string, v any) Filter     { return leaf(field, OpGt, v) }
func Gte(field string, v any) Filter    { return leaf(field, OpGte, v) }
func Lt(field string, v any) Filter     { return leaf(field, OpLt, v) }
func Lte(field string, v any) Filter    { return leaf(field, OpLte, v) }
func In(field string, v any) Filter     { return leaf(field, OpIn, v) }
func Like(field, pattern string) Filter { return leaf(field, OpLike, pattern) }
func Exists(field string) Filter        { return leaf(field, OpExists, nil) }
func IsNull(field string) Filter        { return leaf(field, OpIsNull, nil) }

func leaf(field string, op Op, v any) Filter {
	return Filter{Cond: &Condition{Field: field, Op: op, Value: v}}
}

// And, Or combine filters; Not negates a single filter.
func And(filters ...Filter) Filter { return Filter{Comb: CombAnd, Children: filters} }
func Or(filters ...Filter) Filter  { return Filter{Comb: CombOr, Children: filters} }
func Not(f Filter) Filter          { return Filter{Comb: CombNot, Children: []Filter{f}} }

// Match evaluates f against value's generic JSON decoding. A value that
// isn't a JSON object never matches any field-based condition.
func (f Filter) Match(value []byte) (bool, error) {
	doc, err := decodeDoc(value)
	if err != nil {
		return false, err
	}
	return f.matchDoc(doc), nil
}

func decodeDoc(value []byte) (map[string]any, error) {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil // not a JSON object: matches nothing, not an error
	}
	return doc, nil
}

func (f Filter) matchDoc(doc map[string]any) bool {
	if f.Cond != nil {
		return matchCondition(doc, *f.Cond)
	}
	switch f.Comb {
	case CombAnd:
		for _, c := range f.Children {
			if !c.matchDoc(doc) {
				return false
			}
		}
		return true
	case CombOr:
		for _, c := range f.Children {
			if c.matchDoc(doc) {
				return true
			}
		}
		return false
	case CombNot:
		if len(f.Children) == 0 {
			return true
		}
		return !f.Children[0].matchDoc(doc)
	default:
		return false
	}
}

func matchCondition(doc map[string]any, c Condition) bool {
	val, present := fieldValue(doc, c.Field)

	switch c.Op {
	case OpExists:
		return present
	case OpIsNull:
		return present && val == nil
	}

	if !present {
		return false
	}

	switch c.Op {
	case OpEq:
		return compareEqual(val, c.Value)
	case OpNe:
		return !compareEqual(val, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareOrdered(val, c.Value, c.Op)
	case OpIn:
		return matchIn(val, c.Value)
	case OpLike:
		return matchLike(val, c.Value)
	default:
		return false
	}
}

// fieldValue resolves a possibly dotted field path ("a.b.c") against
// nested maps.
func fieldValue(doc map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func compareEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(a, b any, op Op) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case OpGt:
		return af > bf
	case OpGte:
		return af >= bf
	case OpLt:
		return af < bf
	case OpLte:
		return af <= bf
	default:
		return false
	}
}

func matchIn(val, set any) bool {
	items, ok := set.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if compareEqual(val, item) {
			return true
		}
	}
	return false
}

// matchLike implements %-wildcard matching on strings via the standard
// library (no regex dependency needed for this — see DESIGN.md).
func matchLike(val, pattern any) bool {
	s, ok1 := val.(string)
	p, ok2 := pattern.(string)
	if !ok1 || !ok2 {
		return false
	}
	return likeMatch(s, p)
}

func likeMatch(s, pattern string) bool {
	segments := strings.Split(pattern, "%")
	if len(segments) == 1 {
		return s == pattern
	}

	if !strings.HasPrefix(s, segments[0]) {
		return false
	}
	s = s[len(segments[0]):]

	if !strings.HasSuffix(s, segments[len(segments)-1]) {
		return false
	}
	if segments[len(segments)-1] != "" {
		s = s[:len(s)-len(segments[len(segments)-1])]
	}

	for _, mid := range segments[1 : len(segments)-1] {
		if mid == "" {
			continue
		}
		idx := strings.Index(s, mid)
		if idx == -1 {
			return false
		}
		s = s[idx+len(mid):]
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
