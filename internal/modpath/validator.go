// Package modpath implements the path validator and sanitizer (spec.md
// C4): canonicalization of module import paths with rejection of
// traversal, encoding, and suspicious-identifier attacks. Grounded on the
// Rust reference implementation's ModulePathSanitizer
// (original_source/src/module/secure_resolver.rs) and on
// sunholo/ailang's internal/module/resolver.go path-normalization style.
package modpath

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dkessler/corelang/internal/diag"
)

// suspiciousPatterns mirrors the reference implementation's substring
// denylist, checked case-insensitively before path resolution even begins
// (spec.md §4.4).
var suspiciousPatterns = []string{
	"eval", "exec", "system", "shell", "cmd", "process",
	"__proto__", "constructor", "prototype",
}

var segmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config parameterizes the validator (spec.md §9, "Configuration objects").
type Config struct {
	ProjectRoot string
	MaxDepth    int // default 10
	MaxSegment  int // default 64
	Extension   string
}

// DefaultConfig applies spec.md §4.4's stated defaults.
func DefaultConfig(projectRoot string) Config {
	return Config{ProjectRoot: projectRoot, MaxDepth: 10, MaxSegment: 64, Extension: "script"}
}

// Validator canonicalizes and validates module-relative paths against a
// project root.
type Validator struct {
	cfg Config
}

// New constructs a Validator. cfg.MaxDepth/MaxSegment default to 10/64 when
// zero.
func New(cfg Config) *Validator {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 10
	}
	if cfg.MaxSegment == 0 {
		cfg.MaxSegment = 64
	}
	return &Validator{cfg: cfg}
}

func violation(msg, category string) error {
	return diag.New(diag.KindSecurityViolation, diag.SEC001, msg).WithCategory(category)
}

// ValidateModulePath implements the C4 contract: validate_module_path(rel)
// -> canonical absolute path | SecurityViolation. No filesystem symlink
// resolution is performed (spec.md §4.4, "follows no symlinks by default").
func (v *Validator) ValidateModulePath(relative string) (string, error) {
	if relative == "" {
		return "", violation("empty module path", "InvalidPath")
	}
	if strings.ContainsRune(relative, 0) {
		return "", violation("embedded null byte in module path", "NullByte")
	}
	if strings.Contains(relative, "%") {
		return "", violation("URL-encoded sequence rejected in module path", "URLEncoding")
	}
	if filepath.IsAbs(relative) {
		return "", violation("absolute module paths are rejected", "AbsolutePath")
	}

	segments := strings.Split(filepath.ToSlash(relative), "/")
	if len(segments) > v.cfg.MaxDepth {
		return "", violation(fmt.Sprintf("module path depth %d exceeds max_depth=%d", len(segments), v.cfg.MaxDepth), "DepthExceeded")
	}

	cleanSegs := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "":
			continue // tolerate doubled slashes, but never "." or ".."
		case ".", "..":
			return "", violation(fmt.Sprintf("path traversal component %q rejected", seg), "PathTraversal")
		}
		if len(seg) > v.cfg.MaxSegment {
			return "", violation(fmt.Sprintf("segment %q exceeds max length %d", seg, v.cfg.MaxSegment), "SegmentTooLong")
		}
		segNoExt := strings.TrimSuffix(seg, "."+v.cfg.Extension)
		if !segmentRE.MatchString(segNoExt) {
			return "", violation(fmt.Sprintf("segment %q contains disallowed characters", seg), "InvalidCharacters")
		}
		lower := strings.ToLower(segNoExt)
		for _, pat := range suspiciousPatterns {
			if strings.Contains(lower, pat) {
				return "", diag.New(diag.KindSecurityViolation, diag.SEC002,
					fmt.Sprintf("suspicious identifier pattern %q in segment %q", pat, seg)).WithCategory("SuspiciousPattern")
			}
		}
		cleanSegs = append(cleanSegs, seg)
	}

	joined := filepath.Join(cleanSegs...)
	abs := filepath.Join(v.cfg.ProjectRoot, joined)
	abs = filepath.Clean(abs)

	root := filepath.Clean(v.cfg.ProjectRoot)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", violation(fmt.Sprintf("resolved path %q escapes project root %q", abs, root), "PathTraversal")
	}
	return abs, nil
}
