// Command generate-schema writes the JSON schema of the dtool-irods
// configuration file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dtool-irods/pkg/config"
)

func main() {
	schemaJSON, err := generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	outputFile := "config.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}

// generate reflects config.Config and replaces the free-form remote
// sections with the schemas of their typed counterparts.
func generate() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
		Mapper:                    mapDuration,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "dtool-irods Configuration"
	schema.Description = "Configuration schema for the dtool iRODS storage broker"
	schema.Version = "1.0.0"

	remoteSchema, ok := schema.Properties.Get("remote")
	if !ok {
		return nil, fmt.Errorf("config schema has no remote section")
	}
	sections := map[string]any{
		"icommands": &config.ICommandsConfig{},
		"badger":    &config.BadgerConfig{},
		"s3":        &config.S3Config{},
	}
	for name, v := range sections {
		section := reflector.Reflect(v)
		section.Version = ""
		section.ID = ""
		remoteSchema.Properties.Set(name, section)
	}

	return json.MarshalIndent(schema, "", "  ")
}

// mapDuration describes durations the way the config file spells them.
func mapDuration(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Go duration, e.g. 30s or 1m30s",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$|^0$`,
	}
}
