package domain

import (
	"encoding/json"
	"math"
	"reflect"
)

// Truthy reports whether a flag value counts as set. It follows the
// conventions of dynamically typed story scripts: nil, false, 0, NaN and ""
// are falsy, everything else is truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := ToFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// ToFloat converts any Go numeric value (including json.Number) to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// ValuesEqual compares two flag values. Numbers compare numerically across
// Go numeric types so that a value decoded from JSON (float64) equals the
// int written by the story.
func ValuesEqual(a, b any) bool {
	fa, aok := ToFloat(a)
	fb, bok := ToFloat(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}
