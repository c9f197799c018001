package models

import (
	"strconv"

	"github.com/daijir/scripture-habit/internal/timeutil"
)

// Decoders never fail: a field of the wrong shape reads as its zero value.

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func integer(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func boolean(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func millis(v interface{}) int64 {
	ms, _ := timeutil.Millis(v)
	return ms
}

func object(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func list(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case []string:
		out := make([]interface{}, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return nil
}

func stringList(v interface{}) []string {
	items := list(v)
	out := make([]string, 0, len(items))
	for _, x := range items {
		if s, ok := x.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringMap(v interface{}) map[string]string {
	out := make(map[string]string)
	for k, x := range object(v) {
		if s, ok := x.(string); ok {
			out[k] = s
		}
	}
	return out
}

func millisMap(v interface{}) map[string]int64 {
	out := make(map[string]int64)
	for k, x := range object(v) {
		if ms, ok := timeutil.Millis(x); ok {
			out[k] = ms
		}
	}
	return out
}
