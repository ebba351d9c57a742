package dirty

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Descriptor describes one trackable property discovered on a struct type.
type Descriptor struct {
	// Name is the canonical property name, the accessor remainder with a
	// lowered first rune.
	Name string
	// Getter and Setter are the method names the wrapper routes through.
	Getter string
	Setter string
	// Field is the backing struct field the property was matched against.
	Field string
	// Type is the property value type shared by getter return and setter
	// parameter.
	Type reflect.Type
}

// Catalog discovers trackable properties for struct types.
type Catalog interface {
	Properties(t reflect.Type) ([]Descriptor, error)
}

// ReflectCatalog derives properties from accessor method pairs on the
// pointer method set: GetX paired with SetX, or IsX paired with SetX for
// booleans. A candidate is kept only when the getter takes no arguments
// and returns one value, the setter takes exactly that type and returns
// nothing, and a backing field with a case-insensitive matching name
// exists on the struct or one of its embedded structs. Malformed pairs
// are skipped, never reported. Results are memoized per type.
type ReflectCatalog struct {
	mu    sync.RWMutex
	cache map[reflect.Type][]Descriptor
}

// NewReflectCatalog returns an empty catalog.
func NewReflectCatalog() *ReflectCatalog {
	return &ReflectCatalog{cache: map[reflect.Type][]Descriptor{}}
}

// Properties returns the descriptors for t sorted by name. Pointer types
// are unwrapped to their element type first.
func (c *ReflectCatalog) Properties(t reflect.Type) ([]Descriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("dirty: catalog requires a type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("dirty: catalog requires a struct type, got %s", t.Kind())
	}

	c.mu.RLock()
	cached, ok := c.cache[t]
	c.mu.RUnlock()
	if ok {
		return cloneDescriptors(cached), nil
	}

	descriptors := discoverProperties(t)

	c.mu.Lock()
	c.cache[t] = descriptors
	c.mu.Unlock()
	return cloneDescriptors(descriptors), nil
}

// Reset drops every memoized type.
func (c *ReflectCatalog) Reset() {
	c.mu.Lock()
	c.cache = map[reflect.Type][]Descriptor{}
	c.mu.Unlock()
}

func cloneDescriptors(src []Descriptor) []Descriptor {
	out := make([]Descriptor, len(src))
	copy(out, src)
	return out
}

func discoverProperties(t reflect.Type) []Descriptor {
	ptr := reflect.PointerTo(t)
	found := map[string]Descriptor{}
	for i := 0; i < ptr.NumMethod(); i++ {
		method := ptr.Method(i)
		remainder, ok := accessorRemainder(method)
		if !ok {
			continue
		}
		name := lowerFirst(remainder)
		if _, exists := found[name]; exists {
			// Methods arrive sorted, so GetX wins over IsX.
			continue
		}
		propType := method.Type.Out(0)
		setter, ok := ptr.MethodByName("Set" + remainder)
		if !ok {
			continue
		}
		if setter.Type.NumIn() != 2 || setter.Type.NumOut() != 0 || setter.Type.In(1) != propType {
			continue
		}
		field, ok := findBackingField(t, name)
		if !ok {
			continue
		}
		found[name] = Descriptor{
			Name:   name,
			Getter: method.Name,
			Setter: setter.Name,
			Field:  field,
			Type:   propType,
		}
	}

	out := make([]Descriptor, 0, len(found))
	for _, desc := range found {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func accessorRemainder(method reflect.Method) (string, bool) {
	mt := method.Type
	if mt.NumIn() != 1 || mt.NumOut() != 1 {
		return "", false
	}
	if rest, ok := strings.CutPrefix(method.Name, "Get"); ok && rest != "" {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(method.Name, "Is"); ok && rest != "" && mt.Out(0).Kind() == reflect.Bool {
		return rest, true
	}
	return "", false
}

// findBackingField prefers fields declared on the struct itself over
// fields reachable through embedded structs.
func findBackingField(t reflect.Type, name string) (string, bool) {
	var embedded []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			embedded = append(embedded, field)
			continue
		}
		if strings.EqualFold(field.Name, name) {
			return field.Name, true
		}
	}
	for _, field := range embedded {
		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() != reflect.Struct {
			continue
		}
		if found, ok := findBackingField(ft, name); ok {
			return found, true
		}
	}
	return "", false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
