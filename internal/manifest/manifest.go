// Package manifest implements the spec.md §6 package manifest: a TOML
// document describing one package's identity, dependencies, features,
// and build targets, plus the lock file that pins every resolved
// dependency to a content hash.
//
// Grounded on the teacher's internal/manifest: the Load/Validate shape
// (read file, decode, run consistency checks, fail with a field-naming
// error; only LockFile has a Save) and its schema-version constant are
// kept; the JSON
// example-tracking schema itself is replaced outright since spec.md §6
// describes a Cargo-style TOML package manifest, a different document
// entirely from AILANG's documentation-example ledger.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/dkessler/corelang/internal/semver"
)

// SchemaVersion identifies this manifest format for forward-compat checks.
const SchemaVersion = "corelang.manifest/v1"

// Package is the `[package]` table of spec.md §6.
type Package struct {
	Name       string   `toml:"name"`
	Version    string   `toml:"version"`
	Authors    []string `toml:"authors"`
	Edition    string   `toml:"edition"`
	License    string   `toml:"license"`
	Repository string   `toml:"repository"`
	Keywords   []string `toml:"keywords"`
	Categories []string `toml:"categories"`
}

// Dependency is one `[dependencies]` entry, accepting both the shorthand
// string form (`name = "^1.2"`) and the table form (`name = {path = ...}`).
type Dependency struct {
	VersionReq string   `toml:"-"`
	Path       string   `toml:"path"`
	Git        string   `toml:"git"`
	Version    string   `toml:"version"`
	Features   []string `toml:"features"`
}

// UnmarshalTOML implements toml.Unmarshaler so a dependency entry can be
// either a bare version-requirement string or a table.
func (d *Dependency) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		d.VersionReq = v
		return nil
	case map[string]interface{}:
		if s, ok := v["path"].(string); ok {
			d.Path = s
		}
		if s, ok := v["git"].(string); ok {
			d.Git = s
		}
		if s, ok := v["version"].(string); ok {
			d.Version = s
			d.VersionReq = s
		}
		if list, ok := v["features"].([]interface{}); ok {
			for _, f := range list {
				if s, ok := f.(string); ok {
					d.Features = append(d.Features, s)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("manifest: dependency entry must be a string or table, got %T", data)
	}
}

// Requirement returns the effective version-requirement string for this
// dependency, empty for path/git-only dependencies that carry no version
// gate.
func (d Dependency) Requirement() string {
	if d.VersionReq != "" {
		return d.VersionReq
	}
	return d.Version
}

// LibTarget is the `[lib]` table.
type LibTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// BinTarget is one `[[bin]]` entry.
type BinTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Workspace is the `[workspace]` table.
type Workspace struct {
	Members []string `toml:"members"`
}

// Profile is one `[profile.<name>]` table.
type Profile struct {
	OptLevel int  `toml:"opt_level"`
	Debug    bool `toml:"debug"`
}

// Manifest is the full parsed package manifest of spec.md §6.
type Manifest struct {
	Package Package `toml:"package"`

	Dependencies      map[string]Dependency `toml:"dependencies"`
	DevDependencies   map[string]Dependency `toml:"dev-dependencies"`
	BuildDependencies map[string]Dependency `toml:"build-dependencies"`

	Features map[string][]string `toml:"features"`

	Lib       *LibTarget  `toml:"lib"`
	Bin       []BinTarget `toml:"bin"`
	Workspace *Workspace  `toml:"workspace"`
	Profile   map[string]Profile `toml:"profile"`
}

// Load reads and validates a package manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the manifest's required fields and dependency
// requirement syntax, per spec.md §6's key list.
func (m *Manifest) Validate() error {
	if m.Package.Name == "" {
		return fmt.Errorf("[package] name is required")
	}
	if m.Package.Version == "" {
		return fmt.Errorf("[package] version is required")
	}
	if _, err := semver.Parse(m.Package.Version); err != nil {
		return fmt.Errorf("[package] version: %w", err)
	}

	for group, deps := range map[string]map[string]Dependency{
		"dependencies":       m.Dependencies,
		"dev-dependencies":   m.DevDependencies,
		"build-dependencies": m.BuildDependencies,
	} {
		for name, dep := range deps {
			if dep.Path != "" || dep.Git != "" {
				continue // path/git dependencies need no version requirement
			}
			req := dep.Requirement()
			if req == "" {
				return fmt.Errorf("[%s] %q: missing version requirement", group, name)
			}
			if _, err := semver.ParseConstraint(req); err != nil {
				return fmt.Errorf("[%s] %q: %w", group, name, err)
			}
		}
	}

	for feature, deps := range m.Features {
		for _, d := range deps {
			if _, ok := m.Dependencies[d]; !ok {
				return fmt.Errorf("[features] %q references unknown dependency %q", feature, d)
			}
		}
	}
	return nil
}

// DependencyNames returns every direct dependency name in stable sorted
// order, for deterministic resolution ordering.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
