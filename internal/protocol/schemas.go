package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://kartetris.ai/schemas/"

// inbound maps client-sent events to their payload schema.
var inbound = map[string]string{
	EventGameUpdate: "game_update.schema.json",
	EventEffect:     "effect.schema.json",
	EventGameResult: "game_result.schema.json",
}

// Validator checks inbound payloads against the embedded JSON Schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(inbound))}
	for event, name := range inbound {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[event] = s
	}
	return v, nil
}

// Validate checks payload for event. Events without a schema pass.
func (v *Validator) Validate(event string, payload []byte) error {
	s, ok := v.schemas[event]
	if !ok {
		return nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// Inbound reports whether clients may send event.
func Inbound(event string) bool {
	_, ok := inbound[event]
	return ok
}
