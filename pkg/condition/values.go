package condition

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/aretw0/fable/pkg/domain"
)

// undefinedValue is the result of reading a member that does not exist.
// It is distinct from nil (null) so that "absent" never equals false.
type undefinedValue struct{}

var undefined = undefinedValue{}

type typeClass int

const (
	classUndefined typeClass = iota
	classNull
	classBool
	classNumber
	classString
	classObject
)

func classOf(v any) typeClass {
	switch v.(type) {
	case undefinedValue:
		return classUndefined
	case nil:
		return classNull
	case bool:
		return classBool
	case string:
		return classString
	}
	if _, ok := domain.ToFloat(v); ok {
		return classNumber
	}
	return classObject
}

func truthy(v any) bool {
	if _, ok := v.(undefinedValue); ok {
		return false
	}
	return domain.Truthy(v)
}

func toNumber(v any) float64 {
	switch x := v.(type) {
	case undefinedValue:
		return math.NaN()
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	if f, ok := domain.ToFloat(v); ok {
		return f
	}
	return math.NaN()
}

func toString(v any) string {
	switch x := v.(type) {
	case undefinedValue:
		return "undefined"
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	}
	if f, ok := domain.ToFloat(v); ok {
		switch {
		case math.IsNaN(f):
			return "NaN"
		case math.IsInf(f, 1):
			return "Infinity"
		case math.IsInf(f, -1):
			return "-Infinity"
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			elem := rv.Index(i).Interface()
			if elem == nil {
				continue
			}
			parts[i] = toString(elem)
		}
		return strings.Join(parts, ",")
	}
	return "[object Object]"
}

func strictEquals(a, b any) bool {
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		return false
	}
	switch ca {
	case classUndefined, classNull:
		return true
	case classNumber:
		return toNumber(a) == toNumber(b)
	case classObject:
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func looseEquals(a, b any) bool {
	ca, cb := classOf(a), classOf(b)
	nullish := func(c typeClass) bool { return c == classUndefined || c == classNull }
	switch {
	case nullish(ca) || nullish(cb):
		return nullish(ca) && nullish(cb)
	case ca == cb:
		return strictEquals(a, b)
	case ca == classObject || cb == classObject:
		return toString(a) == toString(b)
	}
	return toNumber(a) == toNumber(b)
}

func compare(op string, a, b any) bool {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch op {
			case "<":
				return sa < sb
			case "<=":
				return sa <= sb
			case ">":
				return sa > sb
			default:
				return sa >= sb
			}
		}
	}
	na, nb := toNumber(a), toNumber(b)
	switch op {
	case "<":
		return na < nb
	case "<=":
		return na <= nb
	case ">":
		return na > nb
	default:
		return na >= nb
	}
}

func arithmetic(op string, a, b any) any {
	if op == "+" {
		if classOf(a) == classString || classOf(b) == classString {
			return toString(a) + toString(b)
		}
	}
	na, nb := toNumber(a), toNumber(b)
	switch op {
	case "+":
		return na + nb
	case "-":
		return na - nb
	case "*":
		return na * nb
	case "/":
		return na / nb
	default:
		return math.Mod(na, nb)
	}
}

// member reads obj[key] with script semantics. Reading from undefined or
// null is a runtime error; reading a missing key yields undefined.
func member(obj any, key any) (any, error) {
	switch classOf(obj) {
	case classUndefined, classNull:
		return nil, fmt.Errorf("cannot read property %q of %s", toString(key), toString(obj))
	}

	name := toString(key)
	switch x := obj.(type) {
	case string:
		if name == "length" {
			return float64(len(x)), nil
		}
		if i, ok := index(key, len(x)); ok {
			return string(x[i]), nil
		}
		return undefined, nil
	case map[string]any:
		if v, ok := x[name]; ok {
			return v, nil
		}
		return undefined, nil
	}

	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return undefined, nil
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return undefined, nil
		}
		return v.Interface(), nil
	case reflect.Slice, reflect.Array:
		if name == "length" {
			return float64(rv.Len()), nil
		}
		if i, ok := index(key, rv.Len()); ok {
			return rv.Index(i).Interface(), nil
		}
	}
	return undefined, nil
}

func index(key any, length int) (int, bool) {
	f := toNumber(key)
	if math.IsNaN(f) || f != math.Trunc(f) || f < 0 || int(f) >= length {
		return 0, false
	}
	return int(f), true
}
