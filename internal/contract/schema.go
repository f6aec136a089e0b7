package contract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadSchema describes what a JSON contract document must look like before
// it is allowed onto the wire. The server applies its own validation; this is
// the client-side trust boundary for uploads.
const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://contractdesk.dev/contract.schema.json",
  "type": "object",
  "required": ["title", "status"],
  "properties": {
    "title": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "status": { "enum": ["Draft", "Finalized"] },
    "parties": { "type": "array", "items": { "type": "string" } },
    "content": { "type": "string" }
  }
}`

var compiledPayloadSchema = mustCompilePayloadSchema()

func mustCompilePayloadSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payloadSchema))
	if err != nil {
		panic(fmt.Sprintf("contract: parse payload schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("contract.schema.json", doc); err != nil {
		panic(fmt.Sprintf("contract: register payload schema: %v", err))
	}
	schema, err := compiler.Compile("contract.schema.json")
	if err != nil {
		panic(fmt.Sprintf("contract: compile payload schema: %v", err))
	}
	return schema
}

// ValidatePayload checks that data is a JSON document satisfying the contract
// upload schema. Plain-text uploads bypass this entirely.
func ValidatePayload(data []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: not valid JSON: %v", ErrInvalidInput, err)
	}
	if err := compiledPayloadSchema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
