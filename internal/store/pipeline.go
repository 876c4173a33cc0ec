package store

import (
	"fmt"
	"strings"
)

// Op is a comparison operator of a query condition.
type Op int

const (
	OpEq Op = iota
	OpGt
	OpHasPrefix
	OpElemMatch
)

// Condition tests one field path. Paths are dot separated and traverse
// arrays the way the store does: a condition on "versions.slug" holds when
// any element of versions satisfies it.
type Condition struct {
	Field string
	Op    Op
	Value interface{}
	Elem  []Condition
}

func Eq(field string, v interface{}) Condition { return Condition{Field: field, Op: OpEq, Value: v} }
func Gt(field string, v interface{}) Condition { return Condition{Field: field, Op: OpGt, Value: v} }

func HasPrefix(field, prefix string) Condition {
	return Condition{Field: field, Op: OpHasPrefix, Value: prefix}
}

// ElemMatch holds when a single element of the array at field satisfies
// every condition, with paths relative to the element.
func ElemMatch(field string, conds ...Condition) Condition {
	return Condition{Field: field, Op: OpElemMatch, Elem: conds}
}

func (c Condition) String() string {
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%s = %q", c.Field, fmt.Sprint(c.Value))
	case OpGt:
		return fmt.Sprintf("%s > %q", c.Field, fmt.Sprint(c.Value))
	case OpHasPrefix:
		return fmt.Sprintf("%s startswith %q", c.Field, fmt.Sprint(c.Value))
	case OpElemMatch:
		return fmt.Sprintf("%s any(%s)", c.Field, joinConditions(c.Elem))
	}
	return c.Field + " ?"
}

func joinConditions(conds []Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " and ")
}

type StageKind int

const (
	StageMatch StageKind = iota
	StageSort
	StageUnwind
	StageLimit
	StageReplaceRoot
)

type Stage struct {
	Kind       StageKind
	Conditions []Condition
	Field      string
	Descending bool
	N          int
}

// Pipeline is a declarative per-document query evaluated inside the store.
type Pipeline []Stage

func Match(conds ...Condition) Stage { return Stage{Kind: StageMatch, Conditions: conds} }

func Sort(field string, descending bool) Stage {
	return Stage{Kind: StageSort, Field: field, Descending: descending}
}

// Unwind emits one document per element of the array at path, with path
// replaced by the element. Documents without elements are dropped.
func Unwind(path string) Stage { return Stage{Kind: StageUnwind, Field: path} }

func Limit(n int) Stage { return Stage{Kind: StageLimit, N: n} }

// ReplaceRoot promotes the embedded document at path to the result.
func ReplaceRoot(path string) Stage { return Stage{Kind: StageReplaceRoot, Field: path} }

func (s Stage) String() string {
	switch s.Kind {
	case StageMatch:
		return "where " + joinConditions(s.Conditions)
	case StageSort:
		dir := "asc"
		if s.Descending {
			dir = "desc"
		}
		return fmt.Sprintf("order by %s %s", s.Field, dir)
	case StageUnwind:
		return "unwind " + s.Field
	case StageLimit:
		return fmt.Sprintf("take %d", s.N)
	case StageReplaceRoot:
		return "select " + s.Field
	}
	return "?"
}

// String renders the pipeline for query logs.
func (p Pipeline) String() string {
	parts := make([]string, 0, len(p))
	for _, s := range p {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " | ")
}
