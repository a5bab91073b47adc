package sandbox

import (
	"math"
	"strconv"
	"time"

	"github.com/robertkrimen/otto"
)

func (s *interpretedScope) toInterpreted(v Value, depth int) (otto.Value, error) {
	switch t := v.(type) {
	case nil:
		return otto.NullValue(), nil
	case undefined:
		return otto.UndefinedValue(), nil
	case string, float64, bool:
		return s.vm.ToValue(t)
	case []Value:
		arr, err := s.vm.Object("[]")
		if err != nil {
			return otto.UndefinedValue(), err
		}
		if depth > maxDepth {
			return arr.Value(), nil
		}
		for i, el := range t {
			if IsUndefined(el) {
				continue
			}
			ev, err := s.toInterpreted(el, depth+1)
			if err != nil {
				continue
			}
			if err := arr.Set(strconv.Itoa(i), ev); err != nil {
				return otto.UndefinedValue(), err
			}
		}
		if err := arr.Set("length", len(t)); err != nil {
			return otto.UndefinedValue(), err
		}
		return arr.Value(), nil
	case map[string]Value:
		obj, err := s.vm.Object("({})")
		if err != nil {
			return otto.UndefinedValue(), err
		}
		if depth > maxDepth {
			return obj.Value(), nil
		}
		for k, el := range t {
			ev, err := s.toInterpreted(el, depth+1)
			if err != nil {
				continue
			}
			if err := obj.Set(k, ev); err != nil {
				return otto.UndefinedValue(), err
			}
		}
		return obj.Value(), nil
	}
	return otto.UndefinedValue(), errNotTransferable
}

// exportInterpreted copies an otto value out of the context. Values that
// cannot be transferred at the top level come back as Undefined.
func exportInterpreted(v otto.Value) Value {
	return exportInterpretedResult(v, nil)
}

// exportInterpretedResult is exportInterpreted with warn told about every
// array dropped for exceeding maxArrayLength.
func exportInterpretedResult(v otto.Value, warn func(error)) Value {
	e := interpretedExporter{seen: make(map[otto.Value]bool), warn: warn}
	out, ok := e.export(v, 0)
	if !ok {
		return Undefined
	}
	return out
}

// seen is keyed by Value: Object() allocates a fresh wrapper per call, while
// Value compares by the underlying object.
type interpretedExporter struct {
	seen map[otto.Value]bool
	warn func(error)
}

func (e *interpretedExporter) export(v otto.Value, depth int) (Value, bool) {
	switch {
	case v.IsUndefined():
		return Undefined, true
	case v.IsNull():
		return nil, true
	case v.IsBoolean():
		b, err := v.ToBoolean()
		return b, err == nil
	case v.IsNumber():
		f, err := v.ToFloat()
		return f, err == nil
	case v.IsString():
		s, err := v.ToString()
		return s, err == nil
	case v.IsFunction(), !v.IsObject():
		return nil, false
	}
	if depth > maxDepth {
		return nil, false
	}

	obj := v.Object()
	if obj == nil || e.seen[v] {
		return nil, false
	}
	e.seen[v] = true
	defer delete(e.seen, v)

	switch obj.Class() {
	case "Date":
		ms, err := obj.Call("getTime")
		if err != nil {
			return nil, true
		}
		f, err := ms.ToFloat()
		if err != nil || math.IsNaN(f) {
			return nil, true
		}
		return isoDate(time.UnixMilli(int64(f))), true
	case "String", "Number", "Boolean":
		prim, err := obj.Call("valueOf")
		if err != nil {
			return nil, false
		}
		return e.export(prim, depth+1)
	case "Array":
		lv, err := obj.Get("length")
		if err != nil {
			return nil, false
		}
		n, err := lv.ToInteger()
		if err != nil || n < 0 {
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
			ev, err := obj.Get(strconv.Itoa(i))
			if err != nil {
				out[i] = Undefined
				continue
			}
			el, ok := e.export(ev, depth+1)
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
		ev, err := obj.Get(k)
		if err != nil {
			continue
		}
		el, ok := e.export(ev, depth+1)
		if !ok {
			continue
		}
		out[k] = el
	}
	return out, true
}
