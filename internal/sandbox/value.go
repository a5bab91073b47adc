package sandbox

import (
	"encoding/json"
	"math/big"
	"reflect"
)

// Value is a transferable value. It is always one of:
//
//	nil                  null
//	Undefined            undefined
//	string, float64, bool
//	[]Value              array (Undefined marks a hole)
//	map[string]Value     plain object
type Value = any

type undefined struct{}

func (undefined) String() string { return "undefined" }

// MarshalJSON encodes undefined as null.
func (undefined) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Undefined is the host representation of the sandbox undefined value.
var Undefined Value = undefined{}

// IsUndefined reports whether v is Undefined.
func IsUndefined(v Value) bool {
	_, ok := v.(undefined)
	return ok
}

// maxDepth bounds recursion on both sides of the boundary.
const maxDepth = 512

var bigTypes = map[reflect.Type]bool{
	reflect.TypeOf(&big.Int{}):   true,
	reflect.TypeOf(&big.Float{}): true,
	reflect.TypeOf(&big.Rat{}):   true,
	reflect.TypeOf(big.Int{}):    true,
	reflect.TypeOf(big.Float{}):  true,
	reflect.TypeOf(big.Rat{}):    true,
}

// Normalize converts a host value into the transferable grammar. The boolean
// is false when the value must be omitted entirely. Non-transferable values
// nested inside containers are dropped where they occur: map keys disappear,
// array slots become holes.
func Normalize(host any) (Value, bool) {
	return normalize(reflect.ValueOf(host), 0)
}

func normalize(rv reflect.Value, depth int) (Value, bool) {
	if !rv.IsValid() {
		return nil, true
	}
	if depth > maxDepth {
		return nil, false
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, true
		}
		rv = rv.Elem()
	}

	// Omitted kinds first: functions, symbols' closest Go relatives, bigints, undefined.
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, false
	}
	if bigTypes[rv.Type()] {
		return nil, false
	}
	if rv.Type() == reflect.TypeOf(undefined{}) {
		return nil, false
	}

	if n, ok := rv.Interface().(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, true
		}
		return normalize(rv.Elem(), depth+1)
	case reflect.Slice:
		if rv.IsNil() {
			return nil, true
		}
		fallthrough
	case reflect.Array:
		out := make([]Value, rv.Len())
		for i := range out {
			el, ok := normalize(rv.Index(i), depth+1)
			if !ok {
				el = Undefined
			}
			out[i] = el
		}
		return out, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		if rv.IsNil() {
			return nil, true
		}
		out := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			el, ok := normalize(iter.Value(), depth+1)
			if !ok {
				continue
			}
			out[iter.Key().String()] = el
		}
		return out, true
	}

	// Structs and anything else fall outside the grammar.
	return nil, false
}
