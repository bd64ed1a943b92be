// Package manifest handles loom.toml runtime configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File names searched for, in order of preference.
const (
	TOMLName = "loom.toml"
	YAMLName = "loom.yaml"
)

var ErrInvalid = errors.New("invalid runtime configuration")

// Runtime configures a runtime instance and the loomrun command.
type Runtime struct {
	// BinDir is prefixed to executable module names that are not absolute.
	BinDir string `toml:"bin-dir" yaml:"bin-dir"`

	// Extension is appended to executable module names that lack it.
	Extension string `toml:"extension" yaml:"extension"`

	// CompileOnly caches assemblies without finalizing them.
	CompileOnly bool `toml:"compile-only" yaml:"compile-only"`

	// ValidateTypes runs the runtime type validator after static
	// initialization.
	ValidateTypes bool `toml:"validate-types" yaml:"validate-types"`

	LogVerbosity int    `toml:"log-verbosity" yaml:"log-verbosity"`
	MainAssembly string `toml:"main-assembly" yaml:"main-assembly"`
	Ticks        int    `toml:"ticks" yaml:"ticks"`

	// Dir is the directory containing the configuration file (set at load time).
	Dir string `toml:"-" yaml:"-"`
}

// Default returns the built-in configuration. Type validation is on for
// desktop development platforms only.
func Default() *Runtime {
	return &Runtime{
		BinDir:        "./bin/",
		Extension:     ".loom",
		ValidateTypes: runtime.GOOS == "darwin" || runtime.GOOS == "windows",
		LogVerbosity:  1,
	}
}

// Load parses loom.toml, or loom.yaml when there is no loom.toml, from
// the given directory. Keys absent from the file keep their defaults.
func Load(dir string) (*Runtime, error) {
	r := Default()

	path := filepath.Join(dir, TOMLName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, r); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		path = filepath.Join(dir, YAMLName)
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, r); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return r, nil
}

// FindAndLoad walks up from startDir to find a configuration file,
// then loads and returns it. Returns nil if none is found.
func FindAndLoad(startDir string) (*Runtime, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range []string{TOMLName, YAMLName} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return Load(dir)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks field ranges.
func (r *Runtime) Validate() error {
	if r.Extension != "" && !strings.HasPrefix(r.Extension, ".") {
		return fmt.Errorf("%w: extension %q must start with '.'", ErrInvalid, r.Extension)
	}
	if r.Ticks < 0 {
		return fmt.Errorf("%w: ticks must not be negative", ErrInvalid)
	}
	if r.LogVerbosity < 0 {
		return fmt.Errorf("%w: log-verbosity must not be negative", ErrInvalid)
	}
	return nil
}

// ModulePath resolves an executable module name to a file path: relative
// names are placed under BinDir and the extension is appended when the
// name does not already carry it.
func (r *Runtime) ModulePath(name string, absolute bool) string {
	path := name
	if !absolute {
		path = r.BinDir + name
	}
	if r.Extension != "" && !strings.HasSuffix(path, r.Extension) {
		path += r.Extension
	}
	return path
}
