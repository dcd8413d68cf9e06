package agent

import (
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaKind discriminates the variants of InputSchema (spec.md §9's "sum
// type InputSchema = { JsonSchema | NativeValidator | ... }").
type SchemaKind int

const (
	// SchemaKindJSON wraps a hand-written JSON-Schema document.
	SchemaKindJSON SchemaKind = iota
	// SchemaKindNative wraps a Go struct whose shape is derived into a
	// JSON-Schema document via reflection (github.com/invopop/jsonschema).
	SchemaKindNative
)

// InputSchema is the normalization target for every tool's input contract:
// whichever shape the tool author supplies (raw JSON-Schema, or a native Go
// struct pointer used only as a shape template), this type holds both the
// resolved JSON-Schema document and a compiled validator, built once and
// reused for every call.
type InputSchema struct {
	Kind     SchemaKind
	Document json.RawMessage
	compiled *jsonschema.Schema
}

// FromJSONSchema builds an InputSchema from a raw JSON-Schema document,
// compiling it immediately so a malformed schema fails at registration time
// rather than on the first tool call.
func FromJSONSchema(doc json.RawMessage) (InputSchema, error) {
	s := InputSchema{Kind: SchemaKindJSON, Document: append(json.RawMessage(nil), doc...)}
	if err := s.compile(); err != nil {
		return InputSchema{}, err
	}
	return s, nil
}

// FromNativeStruct derives a JSON-Schema document from the shape of the Go
// value (typically a pointer to a zero-valued struct used purely as a
// template) via reflection, grounded on the invopop/jsonschema reflector.
func FromNativeStruct(shape any) (InputSchema, error) {
	reflector := &invopop.Reflector{ExpandedStruct: true, DoNotReference: true}
	doc := reflector.Reflect(shape)
	raw, err := json.Marshal(doc)
	if err != nil {
		return InputSchema{}, fmt.Errorf("agent: reflecting native schema: %w", err)
	}
	s := InputSchema{Kind: SchemaKindNative, Document: raw}
	if err := s.compile(); err != nil {
		return InputSchema{}, err
	}
	return s, nil
}

// EmptyObjectSchema is the degenerate schema accepting any JSON object,
// used by tools that take no meaningful arguments and by the transfer
// subsystem's synthesized tools when the sub-agent declares no extra input.
func EmptyObjectSchema() InputSchema {
	s, err := FromJSONSchema(json.RawMessage(`{"type":"object","additionalProperties":true}`))
	if err != nil {
		panic("agent: empty object schema must compile: " + err.Error())
	}
	return s
}

func (s *InputSchema) compile() error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", jsonDecode(s.Document)); err != nil {
		return fmt.Errorf("agent: adding schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("agent: compiling schema: %w", err)
	}
	s.compiled = compiled
	return nil
}

func jsonDecode(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

// Validate checks argsJSON against the compiled schema, returning a
// descriptive error on the first violation. Called by the tool dispatcher
// before invoking a tool's execute function (spec.md §4.2 step 1).
func (s InputSchema) Validate(argsJSON json.RawMessage) error {
	if s.compiled == nil {
		return fmt.Errorf("agent: schema not compiled")
	}
	var v any
	if len(argsJSON) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(argsJSON, &v); err != nil {
		return fmt.Errorf("agent: arguments are not valid JSON: %w", err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("agent: argument validation failed: %w", err)
	}
	return nil
}

// JSONSchema returns the model-ready JSON-Schema document, the
// representation every InputSchema variant normalizes to per spec.md §6.
func (s InputSchema) JSONSchema() json.RawMessage {
	return s.Document
}
