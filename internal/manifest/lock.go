package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// LockEntry pins one resolved module path to its content hash, per
// spec.md §6's lock-file contract: "{sha256: …, size, signature?}".
type LockEntry struct {
	SHA256    string `toml:"sha256"`
	Size      int64  `toml:"size"`
	Signature string `toml:"signature,omitempty"`
}

// LockFile maps every resolved module path to its pinned entry.
type LockFile struct {
	Schema  string               `toml:"schema"`
	Modules map[string]LockEntry `toml:"modules"`
}

// NewLockFile constructs an empty, schema-stamped lock file.
func NewLockFile() *LockFile {
	return &LockFile{Schema: SchemaVersion, Modules: make(map[string]LockEntry)}
}

// LoadLockFile reads a lock file from path. A missing file is not an
// error — lock files are optional until a first resolution is recorded.
func LoadLockFile(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewLockFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read lock file %s: %w", path, err)
	}
	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("manifest: parse lock file %s: %w", path, err)
	}
	if lf.Modules == nil {
		lf.Modules = make(map[string]LockEntry)
	}
	return &lf, nil
}

// Save writes the lock file to path with deterministic key ordering.
func (lf *LockFile) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("manifest: write lock file %s: %w", path, err)
	}
	defer f.Close()

	names := make([]string, 0, len(lf.Modules))
	for name := range lf.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := toml.NewEncoder(f).Encode(lf); err != nil {
		return fmt.Errorf("manifest: encode lock file %s: %w", path, err)
	}
	return nil
}

// Verify checks that gotHash and gotSize match the pinned entry for
// modulePath, per spec.md §6's "verified on every load when present".
func (lf *LockFile) Verify(modulePath, gotHash string, gotSize int64) error {
	entry, ok := lf.Modules[modulePath]
	if !ok {
		return nil // unpinned module, nothing to verify against
	}
	if entry.SHA256 != gotHash {
		return fmt.Errorf("manifest: lock file hash mismatch for %q: locked %s, got %s", modulePath, entry.SHA256, gotHash)
	}
	if entry.Size != gotSize {
		return fmt.Errorf("manifest: lock file size mismatch for %q: locked %d, got %d", modulePath, entry.Size, gotSize)
	}
	return nil
}

// Pin records or overwrites modulePath's resolved entry.
func (lf *LockFile) Pin(modulePath, sha256Hex string, size int64, signature string) {
	lf.Modules[modulePath] = LockEntry{SHA256: sha256Hex, Size: size, Signature: signature}
}
