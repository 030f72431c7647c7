// Package manifest handles weft.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a weft.toml configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Trace    Trace    `toml:"trace"`
	Bytecode Bytecode `toml:"bytecode"`
	Store    Store    `toml:"store"`

	// Dir is the directory containing the weft.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Trace configures the debug trace switches.
type Trace struct {
	Parser   bool `toml:"parser"`
	Validate bool `toml:"validate"`
	Reducer  bool `toml:"reducer"`
}

// Bytecode configures the codec.
type Bytecode struct {
	BufferSize int `toml:"buffer-size"`
}

// Store configures the bundle store.
type Store struct {
	Path string `toml:"path"`
}

// Load parses a weft.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "weft.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Bytecode.BufferSize == 0 {
		m.Bytecode.BufferSize = 64 * 1024
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(m.Dir, ".weft", "bundles.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a weft.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "weft.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// StoreDir returns the directory holding the bundle store, creating the
// path string only (not the directory).
func (m *Manifest) StoreDir() string {
	return filepath.Dir(m.Store.Path)
}
