package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// evaluate runs p over docs the way the Mongo aggregation framework would
// for the stages this package supports.
func evaluate(docs []Document, p Pipeline) ([]Document, error) {
	cur := docs
	for _, st := range p {
		switch st.Kind {
		case StageMatch:
			conds := canonicalConditions(st.Conditions)
			next := cur[:0:0]
			for _, d := range cur {
				if matchAll(d, conds) {
					next = append(next, d)
				}
			}
			cur = next
		case StageSort:
			segs := strings.Split(st.Field, ".")
			next := append(cur[:0:0], cur...)
			sort.SliceStable(next, func(i, j int) bool {
				c := compareForSort(firstValue(next[i], segs), firstValue(next[j], segs))
				if st.Descending {
					return c > 0
				}
				return c < 0
			})
			cur = next
		case StageUnwind:
			segs := strings.Split(st.Field, ".")
			next := cur[:0:0]
			for _, d := range cur {
				v, ok := getPath(d, segs)
				if !ok || v == nil {
					continue
				}
				elems, isArray := asArray(v)
				if !isArray {
					next = append(next, d)
					continue
				}
				for _, e := range elems {
					next = append(next, setPath(d, segs, e))
				}
			}
			cur = next
		case StageLimit:
			if st.N >= 0 && len(cur) > st.N {
				cur = cur[:st.N]
			}
		case StageReplaceRoot:
			segs := strings.Split(st.Field, ".")
			next := make([]Document, 0, len(cur))
			for _, d := range cur {
				v, _ := getPath(d, segs)
				root, ok := asDocument(v)
				if !ok {
					return nil, fmt.Errorf("replace root %q: value is %T, not a document", st.Field, v)
				}
				next = append(next, root)
			}
			cur = next
		default:
			return nil, fmt.Errorf("unsupported stage %d", st.Kind)
		}
	}
	return cur, nil
}

func matchAll(v interface{}, conds []Condition) bool {
	for _, c := range conds {
		if !matchCondition(v, c) {
			return false
		}
	}
	return true
}

func matchCondition(v interface{}, c Condition) bool {
	for _, candidate := range resolve(v, strings.Split(c.Field, ".")) {
		if matchValue(candidate, c) {
			return true
		}
		if c.Op == OpElemMatch {
			continue
		}
		if elems, ok := asArray(candidate); ok {
			for _, e := range elems {
				if matchValue(e, c) {
					return true
				}
			}
		}
	}
	return false
}

func matchValue(v interface{}, c Condition) bool {
	switch c.Op {
	case OpEq:
		return equalValues(v, c.Value)
	case OpGt:
		cmp, ok := compareValues(v, c.Value)
		return ok && cmp > 0
	case OpHasPrefix:
		s, ok := v.(string)
		p, _ := c.Value.(string)
		return ok && strings.HasPrefix(s, p)
	case OpElemMatch:
		elems, ok := asArray(v)
		if !ok {
			return false
		}
		for _, e := range elems {
			if _, isDoc := asDocument(e); isDoc && matchAll(e, c.Elem) {
				return true
			}
		}
	}
	return false
}

// resolve returns every value reachable through path, fanning out over
// arrays met on the way.
func resolve(v interface{}, path []string) []interface{} {
	if len(path) == 0 {
		return []interface{}{v}
	}
	if d, ok := asDocument(v); ok {
		child, found := Lookup(d, path[0])
		if !found {
			return nil
		}
		return resolve(child, path[1:])
	}
	if elems, ok := asArray(v); ok {
		var out []interface{}
		for _, e := range elems {
			if _, isDoc := asDocument(e); isDoc {
				out = append(out, resolve(e, path)...)
			}
		}
		return out
	}
	return nil
}

func firstValue(d Document, path []string) interface{} {
	vals := resolve(d, path)
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

// getPath follows embedded documents only.
func getPath(d Document, path []string) (interface{}, bool) {
	v, ok := Lookup(d, path[0])
	if !ok || len(path) == 1 {
		return v, ok
	}
	child, isDoc := asDocument(v)
	if !isDoc {
		return nil, false
	}
	return getPath(child, path[1:])
}

func setPath(d Document, path []string, v interface{}) Document {
	if len(path) == 1 {
		return withField(d, path[0], v)
	}
	cur, _ := Lookup(d, path[0])
	child, _ := asDocument(cur)
	return withField(d, path[0], setPath(child, path[1:], v))
}

func asDocument(v interface{}) (Document, bool) {
	switch t := v.(type) {
	case bson.D:
		return t, true
	case bson.M:
		return mapToDocument(t), true
	case map[string]interface{}:
		return mapToDocument(t), true
	}
	return nil, false
}

func mapToDocument(m map[string]interface{}) Document {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(Document, 0, len(m))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: m[k]})
	}
	return d
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []interface{}:
		return t, true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toMillis(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return int64(t), true
	case time.Time:
		return t.UnixMilli(), true
	}
	return 0, false
}

func equalValues(a, b interface{}) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two scalars of the same kind.
func compareValues(a, b interface{}) (int, bool) {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return compareOrdered(x, y), true
		}
		return 0, false
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
		return 0, false
	}
	if x, ok := toMillis(a); ok {
		if y, ok := toMillis(b); ok {
			return compareOrdered(x, y), true
		}
	}
	return 0, false
}

func compareOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// compareForSort puts missing values first and otherwise falls back to
// insertion order for values of different kinds.
func compareForSort(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compareValues(a, b)
	return c
}

// canonical brings v to the shape a stored value has after a bson round trip.
func canonical(v interface{}) interface{} {
	b, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	if err != nil {
		return v
	}
	var d bson.D
	if err := bson.Unmarshal(b, &d); err != nil || len(d) == 0 {
		return v
	}
	return d[0].Value
}

func canonicalConditions(conds []Condition) []Condition {
	out := make([]Condition, len(conds))
	for i, c := range conds {
		c.Value = canonical(c.Value)
		if len(c.Elem) > 0 {
			c.Elem = canonicalConditions(c.Elem)
		}
		out[i] = c
	}
	return out
}

// cloneDocument deep copies d into canonical form.
func cloneDocument(d Document) (Document, error) {
	b, err := bson.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := bson.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
