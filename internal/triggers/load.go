package triggers

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load compiles the catalog from path, or the built-in catalog when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Compile(Default())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read triggers file: %w", err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return Compile(def)
}

// Parse decodes a YAML catalog definition. Unknown keys are rejected.
func Parse(data []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, err
	}
	return def, nil
}
