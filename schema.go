package dirty

import (
	"fmt"
	"reflect"
)

// PropertySchema is the serializable form of a Descriptor.
type PropertySchema struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Getter string `json:"getter"`
	Setter string `json:"setter"`
	Field  string `json:"field"`
}

// TypeSchema describes the trackable surface of one struct type.
type TypeSchema struct {
	Type       string           `json:"type"`
	Package    string           `json:"package,omitempty"`
	Properties []PropertySchema `json:"properties"`
}

// SchemaGenerator renders the trackable surface of a type.
type SchemaGenerator interface {
	Generate(t reflect.Type) (TypeSchema, error)
}

// DefaultSchemaGenerator derives schemas from a property catalog. A nil
// catalog falls back to a fresh ReflectCatalog.
func DefaultSchemaGenerator(catalog Catalog) SchemaGenerator {
	if catalog == nil {
		catalog = NewReflectCatalog()
	}
	return &descriptorGenerator{catalog: catalog}
}

type descriptorGenerator struct {
	catalog Catalog
}

func (g *descriptorGenerator) Generate(t reflect.Type) (TypeSchema, error) {
	if t == nil {
		return TypeSchema{}, fmt.Errorf("dirty: schema requires a type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	descriptors, err := g.catalog.Properties(t)
	if err != nil {
		return TypeSchema{}, err
	}

	schema := TypeSchema{
		Type:       t.String(),
		Package:    t.PkgPath(),
		Properties: make([]PropertySchema, 0, len(descriptors)),
	}
	for _, desc := range descriptors {
		schema.Properties = append(schema.Properties, PropertySchema{
			Name:   desc.Name,
			Type:   desc.Type.String(),
			Kind:   desc.Type.Kind().String(),
			Getter: desc.Getter,
			Setter: desc.Setter,
			Field:  desc.Field,
		})
	}
	return schema, nil
}
