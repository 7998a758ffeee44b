package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	sharedconfig "github.com/ideamans/keywrapper/pkg/shared/config"
)

// Loader is an interface for loading configuration
type Loader interface {
	Load() (*Config, error)
}

// FileLoader loads configuration from a YAML or JSON file
type FileLoader struct {
	path string
}

// NewFileLoader creates a new FileLoader
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Path returns the file the loader reads
func (l *FileLoader) Path() string {
	return l.path
}

// Load reads and parses the configuration file.
// The format follows the extension (.yaml, .yml or .json); ${VAR} and
// ${VAR:-default} are expanded before parsing and unknown fields are rejected.
// Defaults are applied but the result is not validated.
func (l *FileLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, l.path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(sharedconfig.ExpandEnvBytes(data), filepath.Ext(l.path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes already expanded configuration data. ext selects the format.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse JSON config file: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q (supported: .yaml, .yml, .json)", ErrUnsupportedFormat, ext)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. The returned bool reports whether the file was found.
func LoadOrDefault(path string) (*Config, bool, error) {
	if path == "" {
		return Default(), false, nil
	}
	cfg, err := NewFileLoader(path).Load()
	if errors.Is(err, ErrConfigFileNotFound) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}
