package config

import "fmt"

// Flag is a flag.Value that loads the sobub server configuration from the
// YAML file passed via -config into Config.
type Flag struct {
	File   string
	Config *Configuration
	// IsSet reports whether a configuration file was loaded so that
	// callers can tell file values from the built-in defaults.
	IsSet bool
}

// Set loads the configuration file at path, replacing Config entirely.
func (f *Flag) Set(path string) error {
	f.File = path

	cfg, err := FromFile(path)
	if err != nil {
		return fmt.Errorf("set -config flag: %w", err)
	}

	*f.Config = cfg
	f.IsSet = true

	return nil
}

func (f *Flag) String() string {
	return f.File
}
