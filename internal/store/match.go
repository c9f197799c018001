package store

import (
	"sort"
	"strings"

	"github.com/daijir/scripture-habit/internal/timeutil"
)

// GetPath reads a dotted field path from nested maps.
func GetPath(data map[string]interface{}, field string) interface{} {
	parts := strings.Split(field, ".")
	var cur interface{} = data
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

// SetPath writes a dotted field path, creating intermediate maps.
func SetPath(data map[string]interface{}, field string, value interface{}) {
	parts := strings.Split(field, ".")
	m := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			next = make(map[string]interface{})
		}
		m[p] = next
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// DeletePath removes a dotted field path if present.
func DeletePath(data map[string]interface{}, field string) {
	parts := strings.Split(field, ".")
	m := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// Matches reports whether doc satisfies every filter of q.
func Matches(doc Document, q Query) bool {
	for _, f := range q.Filters {
		v := doc.Get(f.Field)
		switch f.Op {
		case OpEqual:
			if !containsValue([]interface{}{v}, f.Value) {
				return false
			}
		case OpArrayContains:
			if !containsValue(asSlice(v), f.Value) {
				return false
			}
		case OpGreaterOrEqual:
			if compareValues(v, f.Value) < 0 {
				return false
			}
		case OpLess:
			if compareValues(v, f.Value) >= 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SortAndLimit orders docs by q.OrderBy (stable, so equal keys keep insertion
// order) and truncates to q.Limit.
func SortAndLimit(docs []Document, q Query) []Document {
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compareValues(docs[i].Get(q.OrderBy), docs[j].Get(q.OrderBy))
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

// compareValues orders numbers, timestamps and strings. Values of unlike
// kinds compare equal.
func compareValues(a, b interface{}) int {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
	}
	am, aok := comparableNumber(a)
	bm, bok := comparableNumber(b)
	switch {
	case aok && bok:
		switch {
		case am < bm:
			return -1
		case am > bm:
			return 1
		}
		return 0
	case aok:
		return 1
	case bok:
		return -1
	}
	return 0
}

func comparableNumber(v interface{}) (float64, bool) {
	if n, ok := asInt64(v); ok {
		if f, isFloat := v.(float64); isFloat {
			return f, true
		}
		return float64(n), true
	}
	if ms, ok := timeutil.Millis(v); ok {
		return float64(ms), true
	}
	return 0, false
}
