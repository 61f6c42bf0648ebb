package predicate

import (
	"math"
	"reflect"
	"strings"
	"sync"
)

// FieldTag is the struct tag consulted when resolving path fields. Without
// a tag, a field matches case-insensitively with underscores ignored, so
// `entropy_probe.entropy` finds EntropyResult.Entropy.
const FieldTag = "triage"

// record and list wrap composite values that a path has not yet reduced
// to a scalar. They can be selected into but not compared.
type record struct{ v reflect.Value }
type list struct{ v reflect.Value }

// resolve walks path from root and returns the selected value, normalized
// to bool, int64, float64, string, []byte, record or list.
func resolve(root any, path *Path) (any, error) {
	v := reflect.ValueOf(root)
	where := path.Root

	for _, seg := range path.Segments {
		v = indirect(v)
		if !v.IsValid() {
			return nil, &EvalError{Message: "nil value", Path: where, Pos: path.Pos}
		}

		if seg.IsIndex {
			next, err := index(v, seg.Index, where, path)
			if err != nil {
				return nil, err
			}
			v = next
			where = where + "[" + itoa(seg.Index) + "]"
			continue
		}

		next, err := field(v, seg.Field, where, path)
		if err != nil {
			return nil, err
		}
		v = next
		where = where + "." + seg.Field
	}

	return normalize(indirect(v), where, path)
}

func index(v reflect.Value, i int, where string, path *Path) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if i < 0 || i >= v.Len() {
			return reflect.Value{}, &EvalError{
				Message: "index " + itoa(i) + " out of bounds for length " + itoa(v.Len()),
				Path:    where,
				Pos:     path.Pos,
			}
		}
		if v.Kind() == reflect.String {
			// Strings index as bytes, like byte sequences
			return reflect.ValueOf(v.String()[i]), nil
		}
		return v.Index(i), nil
	default:
		return reflect.Value{}, &EvalError{
			Message: "cannot index " + kindOfValue(v),
			Path:    where,
			Pos:     path.Pos,
		}
	}
}

func field(v reflect.Value, name, where string, path *Path) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Struct:
		if idx, ok := fieldIndex(v.Type(), name); ok {
			return v.Field(idx), nil
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			key := reflect.ValueOf(name).Convert(v.Type().Key())
			if got := v.MapIndex(key); got.IsValid() {
				return got, nil
			}
		}
	default:
		return reflect.Value{}, &EvalError{
			Message: "cannot select field " + quote(name) + " from " + kindOfValue(v),
			Path:    where,
			Pos:     path.Pos,
		}
	}
	return reflect.Value{}, &EvalError{
		Message: "no field " + quote(name),
		Path:    where,
		Pos:     path.Pos,
	}
}

// fieldIndexes caches, per struct type, the exported field for each
// tag name and each normalized field name.
var fieldIndexes sync.Map // reflect.Type -> map[string]int

func fieldIndex(t reflect.Type, name string) (int, bool) {
	cached, ok := fieldIndexes.Load(t)
	if !ok {
		m := make(map[string]int)
		// Normalized names first so that tags win on collision
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() {
				if _, dup := m[normalizeName(f.Name)]; !dup {
					m[normalizeName(f.Name)] = i
				}
			}
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if tag := f.Tag.Get(FieldTag); f.IsExported() && tag != "" && tag != "-" {
				m["="+tag] = i
			}
		}
		cached, _ = fieldIndexes.LoadOrStore(t, m)
	}

	m := cached.(map[string]int)
	if i, ok := m["="+name]; ok {
		return i, true
	}
	i, ok := m[normalizeName(name)]
	return i, ok
}

func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func normalize(v reflect.Value, where string, path *Path) (any, error) {
	if !v.IsValid() {
		return nil, &EvalError{Message: "nil value", Path: where, Pos: path.Pos}
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return float64(u), nil
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			out := make([]byte, v.Len())
			for i := range out {
				out[i] = byte(v.Index(i).Uint())
			}
			return out, nil
		}
		return list{v}, nil
	case reflect.Struct, reflect.Map:
		return record{v}, nil
	default:
		return nil, &EvalError{Message: "unsupported value of kind " + v.Kind().String(), Path: where, Pos: path.Pos}
	}
}

func kindOfValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Struct, reflect.Map:
		return "record"
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return "bytes"
		}
		return "list"
	case reflect.Bool:
		return "bool"
	case reflect.String:
		return "string"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "integer"
	default:
		return v.Kind().String()
	}
}
