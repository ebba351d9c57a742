package dirty

import (
	"fmt"
	"reflect"
	"strings"
)

// PolicyFuncs adapts plain functions into a Policy. Nil functions decline.
type PolicyFuncs struct {
	Entity    func(property string, value any) bool
	Container func(value any) bool
}

func (p PolicyFuncs) TrackEntity(property string, value any) bool {
	if p.Entity == nil {
		return false
	}
	return p.Entity(property, value)
}

func (p PolicyFuncs) TrackContainer(value any) bool {
	if p.Container == nil {
		return false
	}
	return p.Container(value)
}

// DefaultPolicy applies the built-in heuristics: entities are non-nil
// pointers to user-defined structs, containers are List, Set, or Map
// values. Nil values, plain values, standard-library types, native
// slices, maps, and arrays, and already wrapped values are left alone.
type DefaultPolicy struct{}

func (DefaultPolicy) TrackEntity(property string, value any) bool {
	return trackableStruct(value, false)
}

func (DefaultPolicy) TrackContainer(value any) bool {
	switch value.(type) {
	case *trackedList, *trackedSet, *trackedMap:
		return false
	case List, Set, Map:
		return true
	}
	return false
}

// trackableStruct reports whether value is a non-nil pointer to a struct
// eligible for entity tracking. includeStdlib keeps standard-library
// struct types eligible.
func trackableStruct(value any, includeStdlib bool) bool {
	if value == nil {
		return false
	}
	switch value.(type) {
	case *Wrapper, *trackedList, *trackedSet, *trackedMap:
		return false
	}
	if isContainerValue(value) {
		return false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	elem := rv.Type().Elem()
	if elem.Kind() != reflect.Struct {
		return false
	}
	if includeStdlib {
		return true
	}
	return !isStdlibType(elem)
}

func isContainerValue(value any) bool {
	switch value.(type) {
	case nil:
		return false
	case List, Set, Map:
		return true
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return true
	}
	return false
}

// isStdlibType treats an empty package path and any import path whose
// first segment has no dot as standard library.
func isStdlibType(t reflect.Type) bool {
	pkg := t.PkgPath()
	if pkg == "" {
		return true
	}
	root := pkg
	if i := strings.Index(pkg, "/"); i >= 0 {
		root = pkg[:i]
	}
	return !strings.Contains(root, ".")
}

// valueFacts builds the classification map rule expressions evaluate
// against.
func valueFacts(value any) map[string]any {
	facts := map[string]any{
		"nil":       value == nil,
		"type":      "",
		"kind":      "",
		"package":   "",
		"pointer":   false,
		"struct":    false,
		"container": false,
		"stdlib":    false,
		"wrapper":   false,
	}
	if value == nil {
		return facts
	}
	switch value.(type) {
	case *Wrapper, *trackedList, *trackedSet, *trackedMap:
		facts["wrapper"] = true
	}
	facts["container"] = isContainerValue(value)

	t := reflect.TypeOf(value)
	facts["type"] = t.String()
	facts["kind"] = t.Kind().String()
	base := t
	if base.Kind() == reflect.Pointer {
		facts["pointer"] = true
		base = base.Elem()
	}
	facts["struct"] = base.Kind() == reflect.Struct
	facts["package"] = base.PkgPath()
	facts["stdlib"] = isStdlibType(base)
	return facts
}

func typeName(value any) string {
	if value == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", value)
}
