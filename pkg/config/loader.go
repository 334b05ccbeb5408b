package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FromFile loads the YAML configuration file at the given path.
// ${VAR} references within the file are replaced with environment variables,
// e.g. to keep the API key out of the file.
func FromFile(path string) (Configuration, error) {
	var cfg Configuration

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	m := map[string]any{}

	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &m)
	if err != nil {
		return cfg, fmt.Errorf("read config at %s: %w", path, err)
	}

	b, err = json.Marshal(m)
	if err != nil {
		return cfg, fmt.Errorf("load config: marshal config: %w", err)
	}

	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()

	err = d.Decode(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("read config at %s: %w", path, err)
	}

	return cfg, nil
}
