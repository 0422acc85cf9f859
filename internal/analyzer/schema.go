package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxAmount bounds every money field of a payload.
const MaxAmount = 1e9

// BuildPayloadJSONSchema returns the JSON Schema sent to the model and used
// locally to validate its answer. Properties are optional; unknown keys are
// tolerated.
func BuildPayloadJSONSchema() map[string]any {
	str := map[string]any{"type": "string"}
	money := map[string]any{"type": "number", "minimum": 0, "maximum": MaxAmount}
	strList := map[string]any{"type": "array", "items": str}

	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": str,
			"code":        str,
			"quantity":    map[string]any{"type": "number", "minimum": 0},
			"unit_price":  money,
			"total_price": money,
		},
	}
	issue := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category": map[string]any{
				"type":        "string",
				"description": "One of Financial, Coding, Insurance, Administrative, Compliance",
			},
			"severity":           map[string]any{"type": "string", "description": "low, medium, high or critical"},
			"description":        str,
			"confidence":         map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"affected_items":     strList,
			"recommended_action": str,
			"estimated_savings":  money,
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":             str,
			"risk_score":          map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"total_amount":        money,
			"line_items":          map[string]any{"type": "array", "items": lineItem},
			"detected_issues":     map[string]any{"type": "array", "items": issue},
			"clean_items":         strList,
			"missing_information": strList,
		},
	}
}

var (
	payloadSchemaOnce sync.Once
	payloadSchema     *jsonschema.Schema
	payloadSchemaErr  error
)

// ValidatePayload validates data against BuildPayloadJSONSchema.
func ValidatePayload(data []byte) error {
	payloadSchemaOnce.Do(func() {
		payloadSchema, payloadSchemaErr = compileSchema(BuildPayloadJSONSchema())
	})
	if payloadSchemaErr != nil {
		return payloadSchemaErr
	}
	return validate(payloadSchema, data)
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
