package extract

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a versioned output contract: the declaration sent with the
// capability request so the model returns machine-parseable JSON, plus the
// compiled validator applied to whatever comes back. Version 1 is the
// four-field line item; version 2 adds the biological reference interval.
type Schema struct {
	version   int
	response  map[string]any
	validator *jsonschema.Schema
}

// SchemaVersion returns the schema for the requested version.
func SchemaVersion(version int) (*Schema, error) {
	switch version {
	case 1:
		return schemaV1, nil
	case 2:
		return schemaV2, nil
	default:
		return nil, fmt.Errorf("unsupported schema version: %d", version)
	}
}

// Version returns the schema version number.
func (s *Schema) Version() int {
	return s.version
}

// IncludesReferenceInterval reports whether this version carries the
// biological reference interval field.
func (s *Schema) IncludesReferenceInterval() bool {
	return s.version >= 2
}

// ResponseSchema returns the declaration included in the capability request.
func (s *Schema) ResponseSchema() map[string]any {
	return s.response
}

// Validate checks decoded model output against the contract.
func (s *Schema) Validate(v any) error {
	return s.validator.Validate(v)
}

func lineItemFields(withInterval bool) map[string]any {
	fields := map[string]any{
		"heading":   map[string]any{"type": "STRING"},
		"test_name": map[string]any{"type": "STRING"},
		"result":    map[string]any{"type": "STRING"},
		"unit":      map[string]any{"type": "STRING"},
	}
	if withInterval {
		fields["biological_reference_interval"] = map[string]any{"type": "STRING"}
	}
	return fields
}

func responseSchema(withInterval bool) map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"results": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type":       "OBJECT",
					"properties": lineItemFields(withInterval),
					"required":   []string{"heading", "test_name", "result", "unit"},
				},
			},
		},
		"required": []string{"results"},
	}
}

// The local validators check shape, not completeness: only the results
// envelope is required. A model that omits a line-item field still passes;
// Normalize coerces the gap to "N/A" afterwards.
const validatorV1 = `{
	"type": "object",
	"required": ["results"],
	"properties": {
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"heading": {"type": "string"},
					"test_name": {"type": "string"},
					"result": {"type": "string"},
					"unit": {"type": "string"}
				}
			}
		}
	}
}`

const validatorV2 = `{
	"type": "object",
	"required": ["results"],
	"properties": {
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"heading": {"type": "string"},
					"test_name": {"type": "string"},
					"result": {"type": "string"},
					"unit": {"type": "string"},
					"biological_reference_interval": {"type": "string"}
				}
			}
		}
	}
}`

var (
	schemaV1 = &Schema{
		version:   1,
		response:  responseSchema(false),
		validator: jsonschema.MustCompileString("lab_report_v1.json", validatorV1),
	}
	schemaV2 = &Schema{
		version:   2,
		response:  responseSchema(true),
		validator: jsonschema.MustCompileString("lab_report_v2.json", validatorV2),
	}
)
