package analyze

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildAnalysisJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map describing the analysis stage response. The shape is enforced
// here, after the call, instead of trusting the upstream model's prompt:
// score must sit in 0-100, priorities in 1-5, required fields present.
func BuildAnalysisJSONSchema() map[string]any {
	suggestion := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category":    map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string", "minLength": 1},
			"priority":    map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
		},
		"required": []string{"category", "description", "priority"},
	}

	profile := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"full_name":           map[string]any{"type": "string", "minLength": 1},
			"email":               map[string]any{"type": "string"},
			"phone":               map[string]any{"type": "string"},
			"location":            map[string]any{"type": "string"},
			"skills":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"years_of_experience": map[string]any{"type": "integer", "minimum": 0},
			"current_title":       map[string]any{"type": "string"},
			"education":           map[string]any{"type": "string"},
		},
		"required": []string{"full_name"},
	}

	// Top level stays open to additive fields (reasoning, metadata).
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":             map[string]any{"type": "number", "minimum": 0.0, "maximum": 100.0},
			"optimized_content": map[string]any{"type": "string"},
			"suggestions":       map[string]any{"type": "array", "items": suggestion},
			"profile":           profile,
		},
		"required": []string{"score", "optimized_content", "suggestions"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
