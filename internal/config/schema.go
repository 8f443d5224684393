package config

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// durationPattern matches the strings time.ParseDuration accepts, such as
// "1s", "1m30s" or "250ms".
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema for taskbot.yaml. Every section has
// defaults, so no key is required; durations are written as Go duration
// strings.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:               "yaml",
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
			Mapper:                     mapSchemaType,
		}
		schema := r.Reflect(&Config{})
		schema.Title = "taskbot configuration"
		schema.Description = "Telegram task assistant bot: bot transport, assistant, task API, thread store and run limits."
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

func mapSchemaType(t reflect.Type) *jsonschema.Schema {
	if t == reflect.TypeOf(time.Duration(0)) {
		return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
	}
	return nil
}
