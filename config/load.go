package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML pipeline configuration file on top of Default().
// Values absent from the file keep their defaults.
func Load(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of Default().
func Parse(data []byte) (Pipeline, error) {
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	return p, nil
}
