package overlay

import "reflect"

// Merge folds layers into one value, strongest first. A stronger layer's
// non-zero scalars and non-empty slices override, maps overlay key by
// key, and struct fields merge recursively. The result shares no storage
// with any input.
func Merge[T any](layers ...T) T {
	if len(layers) == 0 {
		var zero T
		return zero
	}
	out := Clone(layers[len(layers)-1])
	for i := len(layers) - 2; i >= 0; i-- {
		out = mergeInto(out, layers[i])
	}
	return out
}

func mergeInto[T any](weak, strong T) T {
	merged := mergeValue(reflect.ValueOf(weak), reflect.ValueOf(strong))
	if !merged.IsValid() {
		return weak
	}
	out, ok := merged.Interface().(T)
	if !ok {
		return weak
	}
	return out
}

func mergeValue(weak, strong reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return weak
	}
	if !weak.IsValid() || weak.Type() != strong.Type() {
		return cloneDetached(strong)
	}
	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return weak
		}
		if weak.IsNil() {
			return cloneDetached(strong)
		}
		clone := reflect.New(strong.Type().Elem())
		clone.Elem().Set(mergeValue(weak.Elem(), strong.Elem()))
		return clone
	case reflect.Interface:
		if strong.IsNil() {
			return weak
		}
		if weak.IsNil() {
			return cloneDetached(strong)
		}
		inner := mergeValue(weak.Elem(), strong.Elem())
		clone := reflect.New(strong.Type()).Elem()
		clone.Set(inner)
		return clone
	case reflect.Struct:
		clone := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.NumField(); i++ {
			if !clone.Field(i).CanSet() {
				continue
			}
			clone.Field(i).Set(mergeValue(weak.Field(i), strong.Field(i)))
		}
		return clone
	case reflect.Map:
		if strong.IsNil() {
			return weak
		}
		if weak.IsNil() {
			return cloneDetached(strong)
		}
		clone := reflect.MakeMapWithSize(strong.Type(), weak.Len()+strong.Len())
		iter := weak.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneDetached(iter.Value()))
		}
		iter = strong.MapRange()
		for iter.Next() {
			key := iter.Key()
			if existing := clone.MapIndex(key); existing.IsValid() {
				clone.SetMapIndex(key, mergeValue(existing, iter.Value()))
			} else {
				clone.SetMapIndex(key, cloneDetached(iter.Value()))
			}
		}
		return clone
	case reflect.Slice:
		if strong.IsNil() || strong.Len() == 0 {
			return weak
		}
		return cloneDetached(strong)
	case reflect.Array:
		clone := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.Len(); i++ {
			clone.Index(i).Set(mergeValue(weak.Index(i), strong.Index(i)))
		}
		return clone
	default:
		if strong.IsZero() {
			return weak
		}
		return strong
	}
}

func cloneDetached(v reflect.Value) reflect.Value {
	return cloneValue(v, map[uintptr]reflect.Value{})
}
