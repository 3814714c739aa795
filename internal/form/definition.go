// Package form wires one form's derivations and validation messages into a
// live runtime: the entries signal, its index, the change dispatcher and a
// message resolver per field.
package form

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/fieldflow/internal/derivation"
	"github.com/solatis/fieldflow/internal/types"
)

// ErrEmptyDefinition is returned for a definition document with no content.
var ErrEmptyDefinition = errors.New("form definition is empty")

// ParseDefinition decodes a YAML form definition. Unknown keys are rejected.
func ParseDefinition(data []byte) (*types.FormDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def types.FormDefinition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDefinition
		}
		return nil, fmt.Errorf("decode form definition: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("decode form definition: missing form name")
	}
	return &def, nil
}

// LoadDefinitionFile reads and decodes the definition at path.
func LoadDefinitionFile(path string) (*types.FormDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// MarshalDefinition encodes def as YAML.
func MarshalDefinition(def *types.FormDefinition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("encode form definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode form definition: %w", err)
	}
	return buf.Bytes(), nil
}

// CompileDefinition compiles the derivations of def.
func CompileDefinition(def *types.FormDefinition, opts derivation.CompileOptions) ([]*types.DerivationEntry, error) {
	entries, err := derivation.Compile(def.Derivations, opts)
	if err != nil {
		return nil, fmt.Errorf("form %q: %w", def.Name, err)
	}
	return entries, nil
}

// Definition is a parsed form definition with its compiled entries.
type Definition struct {
	*types.FormDefinition
	Entries []*types.DerivationEntry
}

// LoadCompiled reads, decodes and compiles the definition at path.
func LoadCompiled(path string, opts derivation.CompileOptions) (*Definition, error) {
	def, err := LoadDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	entries, err := CompileDefinition(def, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Definition{FormDefinition: def, Entries: entries}, nil
}
