// Package config reads the optional rebuild.yaml file. Command line flags
// override what it sets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dhamidi/rebuild/format"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no file is named and it exists in the working
// directory.
const DefaultFile = "rebuild.yaml"

type Config struct {
	Classpath []string `yaml:"classpath"`
	Verbosity int      `yaml:"verbosity"`
	Workers   int      `yaml:"workers"`
	Format    string   `yaml:"format"`

	// Path is the file the configuration came from, empty for defaults.
	Path string `yaml:"-"`
}

func Default() *Config {
	return &Config{Format: "java"}
}

// Load reads the file at path, or DefaultFile when path is empty. A missing
// default file yields the defaults; a missing named file is an error.
// Relative classpath entries are taken relative to the file.
func Load(path string) (*Config, error) {
	named := path != ""
	if !named {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !named && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Path = path
	dir := filepath.Dir(path)
	for i, entry := range cfg.Classpath {
		if !filepath.IsAbs(entry) {
			cfg.Classpath[i] = filepath.Join(dir, entry)
		}
	}
	return cfg, nil
}

// Parse decodes a configuration document over the defaults. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(format.Names, c.Format) {
		errs = append(errs, fmt.Errorf("format %q is not one of %s", c.Format, strings.Join(format.Names, ", ")))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Verbosity < 0 {
		errs = append(errs, fmt.Errorf("verbosity must not be negative, got %d", c.Verbosity))
	}
	for _, entry := range c.Classpath {
		if entry == "" {
			errs = append(errs, errors.New("classpath entries must not be empty"))
			break
		}
	}
	return errors.Join(errs...)
}
