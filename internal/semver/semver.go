// Package semver implements SemVer version parsing and the version-
// requirement matching spec.md §6 describes for package-manifest
// dependency constraints: exact, bounds, compatible (^), tilde (~),
// wildcard, and comma-combined ranges.
//
// No example repo in the pack imports a dedicated constraint-range
// library (grepped across every go.mod in _examples/ and found none,
// including hashicorp/go-version and Masterminds/semver), so the range
// grammar itself — caret, tilde, wildcard, comma-combined clauses — is
// hand-rolled, grounded on the teacher's own manifest package's
// stdlib-parsing conventions (small pure functions, explicit error
// messages naming the offending field). Raw two-version ordering,
// though, is delegated to golang.org/x/mod/semver (already a teacher
// dependency, pulled in transitively via golang.org/x/mod) rather than
// reimplemented, since it already encodes the canonical precedence
// rules including prerelease-before-release.
package semver

import (
	"fmt"
	"strconv"
	"strings"

	xsemver "golang.org/x/mod/semver"
)

// Version is a parsed SemVer triple, optionally with a prerelease tag.
type Version struct {
	Major, Minor, Patch int
	Prerelease          string
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other, ordering prerelease versions before their release.
//
// Delegates to golang.org/x/mod/semver.Compare, which expects the
// Go-module "v"-prefixed form, so both sides are reformatted through
// String() first.
func (v Version) Compare(other Version) int {
	return xsemver.Compare("v"+v.String(), "v"+other.String())
}

// Parse parses a "major.minor.patch[-prerelease]" string.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	core, prerelease, _ := strings.Cut(s, "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("semver: %q is not major.minor.patch", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("semver: invalid numeric component %q in %q", p, s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Prerelease: prerelease}, nil
}
