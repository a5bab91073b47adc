package sandbox

import (
	"strconv"
	"time"

	"github.com/dop251/goja"
)

// maxArrayLength caps arrays copied out of a context.
const maxArrayLength = 1 << 20

func (s *nativeScope) toNative(v Value, depth int) goja.Value {
	switch t := v.(type) {
	case nil:
		return goja.Null()
	case undefined:
		return goja.Undefined()
	case string, float64, bool:
		return s.vm.ToValue(t)
	case []Value:
		arr := s.vm.NewArray()
		if depth > maxDepth {
			return arr
		}
		for i, el := range t {
			if IsUndefined(el) {
				continue
			}
			_ = arr.Set(strconv.Itoa(i), s.toNative(el, depth+1))
		}
		_ = arr.Set("length", len(t))
		return arr
	case map[string]Value:
		obj := s.vm.NewObject()
		if depth > maxDepth {
			return obj
		}
		for k, el := range t {
			// Data properties only: keys such as __proto__ must not hit setters.
			_ = obj.DefineDataProperty(k, s.toNative(el, depth+1), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
		}
		return obj
	}
	return goja.Undefined()
}

// exportNative copies a goja value out of the context. Values that cannot be
// transferred at the top level come back as Undefined.
func exportNative(v goja.Value) Value {
	return exportNativeResult(v, nil)
}

// exportNativeResult is exportNative with warn told about every array
// dropped for exceeding maxArrayLength.
func exportNativeResult(v goja.Value, warn func(error)) Value {
	e := nativeExporter{seen: make(map[*goja.Object]bool), warn: warn}
	out, ok := e.export(v, 0)
	if !ok {
		return Undefined
	}
	return out
}

type nativeExporter struct {
	seen map[*goja.Object]bool
	warn func(error)
}

func (e *nativeExporter) export(v goja.Value, depth int) (Value, bool) {
	if v == nil || goja.IsUndefined(v) {
		return Undefined, true
	}
	if goja.IsNull(v) {
		return nil, true
	}
	if depth > maxDepth {
		return nil, false
	}
	if _, ok := v.(*goja.Symbol); ok {
		return nil, false
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return primitive(v.Export())
	}
	if _, fn := goja.AssertFunction(obj); fn {
		return nil, false
	}
	if e.seen[obj] {
		return nil, false
	}
	e.seen[obj] = true
	defer delete(e.seen, obj)

	switch obj.ClassName() {
	case "Date":
		if t, ok := obj.Export().(time.Time); ok {
			return isoDate(t), true
		}
		return nil, true
	case "String", "Number", "Boolean":
		valueOf, ok := goja.AssertFunction(obj.Get("valueOf"))
		if !ok {
			return nil, false
		}
		prim, err := valueOf(obj)
		if err != nil {
			return nil, false
		}
		return primitive(prim.Export())
	case "Array":
		n := obj.Get("length").ToInteger()
		if n < 0 {
			return nil, false
		}
		if n > maxArrayLength {
			if e.warn != nil {
				e.warn(&OversizedArrayWarning{Length: n})
			}
			return nil, false
		}
		out := make([]Value, n)
		for i := range out {
			el, ok := e.export(obj.Get(strconv.Itoa(i)), depth+1)
			if !ok {
				el = Undefined
			}
			out[i] = el
		}
		return out, true
	}

	keys := obj.Keys()
	out := make(map[string]Value, len(keys))
	for _, k := range keys {
		el, ok := e.export(obj.Get(k), depth+1)
		if !ok {
			continue
		}
		out[k] = el
	}
	return out, true
}

// primitive maps an exported goja primitive into the grammar.
func primitive(x any) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return nil, true
	case string:
		return t, true
	case bool:
		return t, true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return nil, false
}

func isoDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
