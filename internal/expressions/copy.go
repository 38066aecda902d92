package expressions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	rawMessageType    = reflect.TypeOf(json.RawMessage(nil))
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// DeepCopy returns a plain-data copy of v: maps become map[string]any,
// slices and arrays become []any, structs become maps keyed by their JSON
// field names (types with their own MarshalJSON go through JSON). Functions,
// channels and unsafe pointers are dropped, including struct fields of those
// kinds, and reference cycles are cut (the repeated reference becomes nil).
func DeepCopy(v any) any {
	out, _ := copyValue(reflect.ValueOf(v), make(map[uintptr]struct{}))
	return out
}

// copyValue returns the copy and false when the value must be dropped.
// seen holds the container addresses on the current path.
func copyValue(rv reflect.Value, seen map[uintptr]struct{}) (any, bool) {
	if !rv.IsValid() {
		return nil, true
	}

	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false

	case reflect.Interface:
		if rv.IsNil() {
			return nil, true
		}
		return copyValue(rv.Elem(), seen)

	case reflect.Pointer:
		if rv.IsNil() {
			return nil, true
		}
		ptr := rv.Pointer()
		if _, cyclic := seen[ptr]; cyclic {
			return nil, true
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		return copyValue(rv.Elem(), seen)

	case reflect.Map:
		if rv.IsNil() {
			return nil, true
		}
		ptr := rv.Pointer()
		if _, cyclic := seen[ptr]; cyclic {
			return nil, true
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)

		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			val, keep := copyValue(iter.Value(), seen)
			if !keep {
				continue
			}
			out[mapKey(iter.Key())] = val
		}
		return out, true

	case reflect.Slice:
		if rv.IsNil() {
			return nil, true
		}
		if rv.Type() == rawMessageType {
			var decoded any
			if err := json.Unmarshal(rv.Bytes(), &decoded); err != nil {
				return string(rv.Bytes()), true
			}
			return decoded, true
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), rv.Bytes()...), true
		}
		if rv.Len() > 0 {
			ptr := rv.Pointer()
			if _, cyclic := seen[ptr]; cyclic {
				return nil, true
			}
			seen[ptr] = struct{}{}
			defer delete(seen, ptr)
		}
		return copyElems(rv, seen), true

	case reflect.Array:
		return copyElems(rv, seen), true

	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return t, true
		}
		if !rv.Type().Implements(jsonMarshalerType) {
			out := make(map[string]any, rv.NumField())
			copyFields(rv, out, seen)
			return out, true
		}
		raw, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, false
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, false
		}
		return decoded, true

	default:
		return rv.Interface(), true
	}
}

// copyFields copies the exported fields of a struct under their JSON names.
// Fields tagged "-" and func or chan fields are skipped; untagged embedded
// structs are flattened.
func copyFields(rv reflect.Value, out map[string]any, seen map[uintptr]struct{}) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			// Promoted fields of unexported embedded types are not readable.
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous && name == "" {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				copyFields(fv, out, seen)
				continue
			}
		}
		if name == "" {
			name = f.Name
		}
		if strings.Contains(","+opts+",", ",omitempty,") && emptyValue(fv) {
			continue
		}
		val, keep := copyValue(fv, seen)
		if !keep {
			continue
		}
		out[name] = val
	}
}

func emptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

func copyElems(rv reflect.Value, seen map[uintptr]struct{}) []any {
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		val, keep := copyValue(rv.Index(i), seen)
		if !keep {
			continue
		}
		out = append(out, val)
	}
	return out
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}
