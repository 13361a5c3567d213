package config

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
	schemareflector "github.com/swaggest/jsonschema-go"
)

var rootSchema *jsonschema.Schema

func init() {
	bs, err := ReflectSchema()
	if err != nil {
		panic(err)
	}
	js, err := jsonschema.UnmarshalJSON(bytes.NewReader(bs))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource("schema.json", js); err != nil {
		panic(err)
	}

	rootSchema, err = compiler.Compile("schema.json")
	if err != nil {
		panic(err)
	}
}

// ReflectSchema returns the JSON schema of the configuration file, as printed
// by `bundlectl schema`.
func ReflectSchema() ([]byte, error) {
	reflector := schemareflector.Reflector{}

	s, err := reflector.Reflect(Root{})
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(s, "", "  ")
}

// Entries are a mapping from entry name to module path. The order of the
// mapping is significant, so the Go type is not a map.
func (Entries) PrepareJSONSchema(schema *schemareflector.Schema) error {
	str := schemareflector.String.Type()
	schema.Type = nil
	schema.AddType(schemareflector.Object)
	schema.AddType(schemareflector.String)
	schema.Properties = nil
	schema.AdditionalProperties = (&schemareflector.SchemaOrBool{}).WithTypeObject(
		schemareflector.Schema{Type: &str},
	)
	return nil
}

// A connection is either a connection string or an object with the
// individual settings.
func (Connection) PrepareJSONSchema(schema *schemareflector.Schema) error {
	schema.AddType(schemareflector.String)
	return nil
}

// We do this so that the following YAML config is considered valid:
//
//	databases:
//	  development:
//	    client: sqlite3
//	  test:
//
// An empty environment uses an in-memory SQLite database.
func (*Database) PrepareJSONSchema(schema *schemareflector.Schema) error {
	schema.AddType(schemareflector.Null)
	return nil
}
