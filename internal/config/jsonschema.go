package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the configuration file, suitable for
// editor completion of docteur.yaml.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference:             true, // Inline nested sections.
		RequiredFromJSONSchemaTags: true, // Every key is optional.
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Go duration, e.g. 30s or 1m30s",
				}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "docteur configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
