// Package manifest renders the trackable surface of a type graph into a
// shareable document: per-type property schemas linked by $ref, with
// repeated shapes extracted into a component table.
package manifest

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	dirty "github.com/goliatone/go-dirty"
)

// Property is one trackable property of a type. Ref points at the
// nested type's entry when the property holds another tracked struct.
type Property struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	Ref       string `json:"ref,omitempty"`
	Container bool   `json:"container,omitempty"`
}

// TypeSchema is one type's entry: either an inline property list or a
// reference into the component table, never both.
type TypeSchema struct {
	Ref        string     `json:"ref,omitempty"`
	Package    string     `json:"package,omitempty"`
	Properties []Property `json:"properties,omitempty"`
}

// Component is a property shape shared by several types.
type Component struct {
	Properties []Property `json:"properties"`
}

// Document is a complete tracking manifest.
type Document struct {
	Version     string                `json:"version"`
	GeneratedAt time.Time             `json:"generated_at"`
	Types       map[string]TypeSchema `json:"types"`
	Components  map[string]Component  `json:"components,omitempty"`
}

// Generator walks type graphs into documents.
type Generator struct {
	cfg generatorConfig
}

// New builds a generator.
func New(opts ...Option) *Generator {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.catalog == nil {
		cfg.catalog = dirty.NewReflectCatalog()
	}
	return &Generator{cfg: cfg}
}

// Generate walks the root types and every tracked struct reachable from
// their properties, then extracts shared shapes and validates the result.
func (g *Generator) Generate(roots ...reflect.Type) (*Document, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("manifest: at least one root type is required")
	}
	doc := &Document{
		Version:     g.cfg.version,
		GeneratedAt: g.cfg.clock().UTC(),
		Types:       map[string]TypeSchema{},
		Components:  map[string]Component{},
	}
	visited := map[reflect.Type]bool{}
	for _, root := range roots {
		if _, err := g.walk(doc, root, visited); err != nil {
			return nil, err
		}
	}
	if err := extractComponents(doc, g.cfg.forceComponents); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// walk registers t and recurses into nested tracked structs. The visited
// set breaks reference cycles; an entry may be referenced before its
// schema lands because links go by name.
func (g *Generator) walk(doc *Document, t reflect.Type, visited map[reflect.Type]bool) (string, error) {
	if t == nil {
		return "", fmt.Errorf("manifest: nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("manifest: %s is not a struct type", t)
	}
	name := t.String()
	if visited[t] {
		return name, nil
	}
	visited[t] = true

	descriptors, err := g.cfg.catalog.Properties(t)
	if err != nil {
		return "", err
	}

	schema := TypeSchema{
		Package:    t.PkgPath(),
		Properties: make([]Property, 0, len(descriptors)),
	}
	for _, desc := range descriptors {
		prop := Property{
			Name:      desc.Name,
			Type:      desc.Type.String(),
			Kind:      desc.Type.Kind().String(),
			Container: containerType(desc.Type),
		}
		if nested, ok := nestedStruct(desc.Type); ok {
			target, err := g.walk(doc, nested, visited)
			if err != nil {
				return "", err
			}
			prop.Ref = typeRef(target)
		}
		schema.Properties = append(schema.Properties, prop)
	}
	doc.Types[name] = schema
	return name, nil
}

var (
	listType = reflect.TypeOf((*dirty.List)(nil)).Elem()
	setType  = reflect.TypeOf((*dirty.Set)(nil)).Elem()
	mapType  = reflect.TypeOf((*dirty.Map)(nil)).Elem()
)

func containerType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return true
	}
	return t.Implements(listType) || t.Implements(setType) || t.Implements(mapType)
}

func nestedStruct(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, false
	}
	elem := t.Elem()
	if stdlibPackage(elem.PkgPath()) {
		return nil, false
	}
	return elem, true
}

func stdlibPackage(path string) bool {
	if path == "" {
		return true
	}
	first := path
	if idx := strings.Index(path, "/"); idx >= 0 {
		first = path[:idx]
	}
	return !strings.Contains(first, ".")
}

// Validate checks internal consistency: type refs resolve to components,
// property refs resolve to types, and nothing carries both a ref and an
// inline shape.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("manifest: nil document")
	}
	if d.Version == "" {
		return fmt.Errorf("manifest: version is required")
	}
	for name, schema := range d.Types {
		if schema.Ref != "" {
			component := strings.TrimPrefix(schema.Ref, "#/components/")
			if component == schema.Ref {
				return fmt.Errorf("manifest: type %s has malformed ref %q", name, schema.Ref)
			}
			if _, ok := d.Components[component]; !ok {
				return fmt.Errorf("manifest: type %s references missing component %q", name, component)
			}
			if len(schema.Properties) > 0 {
				return fmt.Errorf("manifest: type %s carries both a ref and properties", name)
			}
			continue
		}
		if err := d.validateProperties(name, schema.Properties); err != nil {
			return err
		}
	}
	for name, component := range d.Components {
		if len(component.Properties) == 0 {
			return fmt.Errorf("manifest: component %s has no properties", name)
		}
		if err := d.validateProperties(name, component.Properties); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) validateProperties(owner string, properties []Property) error {
	for _, prop := range properties {
		if prop.Ref == "" {
			continue
		}
		target := strings.TrimPrefix(prop.Ref, "#/types/")
		if target == prop.Ref {
			return fmt.Errorf("manifest: property %s.%s has malformed ref %q", owner, prop.Name, prop.Ref)
		}
		if _, ok := d.Types[target]; !ok {
			return fmt.Errorf("manifest: property %s.%s references missing type %q", owner, prop.Name, target)
		}
	}
	return nil
}
