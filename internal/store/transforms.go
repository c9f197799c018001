package store

import (
	"reflect"
	"time"
)

// Increment adds By to a numeric field, treating a missing field as zero.
type Increment struct{ By int64 }

// ArrayUnion appends each value not already present.
type ArrayUnion struct{ Values []interface{} }

// ArrayRemove removes every occurrence of each value.
type ArrayRemove struct{ Values []interface{} }

// ServerTimestamp is replaced with the store's commit time.
type ServerTimestamp struct{}

// DeleteField removes the field.
type DeleteField struct{}

// Inc is shorthand for Increment{By: n}.
func Inc(n int64) Increment { return Increment{By: n} }

// Union is shorthand for ArrayUnion.
func Union(values ...interface{}) ArrayUnion { return ArrayUnion{Values: values} }

// Remove is shorthand for ArrayRemove.
func Remove(values ...interface{}) ArrayRemove { return ArrayRemove{Values: values} }

// ApplyFields applies fields to data in place and returns it. data may be nil.
func ApplyFields(data map[string]interface{}, fields Fields, now time.Time) map[string]interface{} {
	if data == nil {
		data = make(map[string]interface{})
	}
	for field, value := range fields {
		switch t := value.(type) {
		case Increment:
			cur, _ := asInt64(GetPath(data, field))
			SetPath(data, field, cur+t.By)
		case ArrayUnion:
			arr := asSlice(GetPath(data, field))
			for _, v := range t.Values {
				if !containsValue(arr, v) {
					arr = append(arr, v)
				}
			}
			SetPath(data, field, arr)
		case ArrayRemove:
			arr := asSlice(GetPath(data, field))
			out := arr[:0:0]
			for _, existing := range arr {
				if !containsValue(t.Values, existing) {
					out = append(out, existing)
				}
			}
			SetPath(data, field, out)
		case ServerTimestamp:
			SetPath(data, field, now)
		case DeleteField:
			DeletePath(data, field)
		default:
			SetPath(data, field, value)
		}
	}
	return data
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	}
	return 0, false
}

func asSlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return append([]interface{}(nil), s...)
	case []string:
		out := make([]interface{}, 0, len(s))
		for _, x := range s {
			out = append(out, x)
		}
		return out
	case nil:
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
		return out
	}
	return nil
}

func containsValue(arr []interface{}, v interface{}) bool {
	for _, x := range arr {
		if reflect.DeepEqual(normalizeValue(x), normalizeValue(v)) {
			return true
		}
	}
	return false
}

// normalizeValue makes values decoded from different sources comparable
// (BSON subdocuments vs Go maps, int32 vs int64).
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[k] = normalizeValue(x)
		}
		return out
	}
	return v
}
