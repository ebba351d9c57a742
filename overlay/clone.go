package overlay

import "reflect"

// Clone returns a deep copy of value. Pointers, maps, slices, and the
// exported fields of structs are copied recursively; unexported fields
// are left at their zero value. Cyclic pointer graphs clone into cyclic
// copies instead of recursing forever.
func Clone[T any](value T) T {
	cloned := cloneValue(reflect.ValueOf(value), map[uintptr]reflect.Value{})
	if !cloned.IsValid() {
		var zero T
		return zero
	}
	out, ok := cloned.Interface().(T)
	if !ok {
		var zero T
		return zero
	}
	return out
}

func cloneValue(v reflect.Value, seen map[uintptr]reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		if cached, ok := seen[v.Pointer()]; ok {
			return cached
		}
		clone := reflect.New(v.Type().Elem())
		seen[v.Pointer()] = clone
		clone.Elem().Set(cloneValue(v.Elem(), seen))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		inner := cloneValue(v.Elem(), seen)
		clone := reflect.New(v.Type()).Elem()
		clone.Set(inner)
		return clone
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if !clone.Field(i).CanSet() {
				continue
			}
			clone.Field(i).Set(cloneValue(v.Field(i), seen))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		if cached, ok := seen[v.Pointer()]; ok {
			return cached
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		seen[v.Pointer()] = clone
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(cloneValue(iter.Key(), seen), cloneValue(iter.Value(), seen))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i), seen))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i), seen))
		}
		return clone
	default:
		return v
	}
}
