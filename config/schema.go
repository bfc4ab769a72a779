package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/techui.schema.json
var techuiSchema []byte

const techuiSchemaID = "techui.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// SchemaError represents a single schema validation failure.
type SchemaError struct {
	Path    string
	Message string
}

func (e SchemaError) String() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// SchemaErrors is returned when a document does not satisfy the techui schema.
type SchemaErrors struct {
	Source string
	Errors []SchemaError
}

func (e *SchemaErrors) Error() string {
	lines := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		lines = append(lines, " - "+item.String())
	}
	return fmt.Sprintf("schema validation failed for %s:\n%s", e.Source, strings.Join(lines, "\n"))
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(techuiSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(techuiSchemaID, doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(techuiSchemaID)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a decoded YAML document. The document is re-encoded
// as JSON so numbers reach the validator as json.Number.
func validateSchema(source string, raw interface{}) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config %s: convert to JSON: %w", source, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("config %s: %w", source, err)
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("config %s: %w", source, err)
	}
	return &SchemaErrors{Source: source, Errors: collectErrors(validationErr)}
}

func collectErrors(ve *jsonschema.ValidationError) []SchemaError {
	var errs []SchemaError
	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	if len(ve.Causes) == 0 {
		if msg := ve.Error(); msg != "" {
			errs = append(errs, SchemaError{Path: path, Message: msg})
		}
		return errs
	}
	for _, cause := range ve.Causes {
		errs = append(errs, collectErrors(cause)...)
	}
	return errs
}
