package dirty

import (
	"reflect"
	"testing"
)

func TestDefaultSchemaGeneratorRendersDescriptors(t *testing.T) {
	generator := DefaultSchemaGenerator(nil)

	schema, err := generator.Generate(reflect.TypeOf(&testOrder{}))
	if err != nil {
		t.Fatalf("expected a schema, got %v", err)
	}
	if schema.Type != "dirty.testOrder" {
		t.Fatalf("expected the element type name, got %q", schema.Type)
	}
	if schema.Package != "github.com/goliatone/go-dirty" {
		t.Fatalf("expected the module package path, got %q", schema.Package)
	}

	byName := map[string]PropertySchema{}
	for _, prop := range schema.Properties {
		byName[prop.Name] = prop
	}
	code, ok := byName["code"]
	if !ok {
		t.Fatalf("expected a code property, got %v", schema.Properties)
	}
	if code.Getter != "GetCode" || code.Setter != "SetCode" || code.Field != "code" {
		t.Fatalf("unexpected code property: %+v", code)
	}
	if code.Type != "string" || code.Kind != "string" {
		t.Fatalf("unexpected code property type: %+v", code)
	}
	if tags, ok := byName["tags"]; !ok || tags.Kind != "interface" {
		t.Fatalf("expected the tags container property, got %+v", tags)
	}

	// Properties arrive in catalog order, which is sorted by name.
	for i := 1; i < len(schema.Properties); i++ {
		if schema.Properties[i-1].Name > schema.Properties[i].Name {
			t.Fatalf("expected sorted properties, got %v", schema.Properties)
		}
	}
}

func TestDefaultSchemaGeneratorSharesCatalogMemo(t *testing.T) {
	catalog := NewReflectCatalog()
	generator := DefaultSchemaGenerator(catalog)

	first, err := generator.Generate(reflect.TypeOf(testProfile{}))
	if err != nil {
		t.Fatalf("expected a schema, got %v", err)
	}
	second, err := generator.Generate(reflect.TypeOf(&testProfile{}))
	if err != nil {
		t.Fatalf("expected a schema, got %v", err)
	}
	if len(first.Properties) != 1 || len(second.Properties) != 1 {
		t.Fatalf("expected one bio property, got %v and %v", first.Properties, second.Properties)
	}
	if first.Properties[0] != second.Properties[0] {
		t.Fatalf("expected pointer and element types to share one schema")
	}
}

func TestDefaultSchemaGeneratorRejectsBadTypes(t *testing.T) {
	generator := DefaultSchemaGenerator(nil)
	if _, err := generator.Generate(nil); err == nil {
		t.Fatalf("expected a nil type to fail")
	}
	if _, err := generator.Generate(reflect.TypeOf(42)); err == nil {
		t.Fatalf("expected a non-struct type to fail")
	}
}
