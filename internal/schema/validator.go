package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks record values against JSON schemas. Compiled schemas
// are cached by definition, so the send path pays compilation once per
// registered schema rather than once per record.
type Validator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator creates an empty validator
func NewValidator() *Validator {
	return &Validator{
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks one record value against a schema definition
func (v *Validator) Validate(value []byte, schemaDefinition []byte) error {
	// The value must itself be JSON before the schema applies
	var decoded interface{}
	if err := json.Unmarshal(value, &decoded); err != nil {
		return fmt.Errorf("record value is not valid JSON: %w", err)
	}

	schema, err := v.CompileSchema(schemaDefinition)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// CompileSchema compiles a schema definition, caching the result keyed by
// the raw definition bytes
func (v *Validator) CompileSchema(schemaDefinition []byte) (*jsonschema.Schema, error) {
	cacheKey := string(schemaDefinition)

	// Fast path: already compiled
	v.mu.RLock()
	if compiled, exists := v.compiled[cacheKey]; exists {
		v.mu.RUnlock()
		return compiled, nil
	}
	v.mu.RUnlock()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaDefinition)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	// Racing compilations of the same definition produce equivalent
	// schemas, so last write wins is fine
	v.mu.Lock()
	v.compiled[cacheKey] = schema
	v.mu.Unlock()

	return schema, nil
}

// ClearCache drops all compiled schemas
func (v *Validator) ClearCache() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.compiled = make(map[string]*jsonschema.Schema)
}
