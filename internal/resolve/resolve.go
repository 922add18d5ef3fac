// Package resolve maps plan-relative paths to canonical absolute paths and
// rejects any that would escape the configured root, including escapes
// routed through a symlink.
package resolve

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrRootMissing is returned when the root directory does not exist or
// cannot be canonicalized.
var ErrRootMissing = errors.New("root does not exist")

// ErrEscapesRoot is returned when a resolved path lies outside the root.
var ErrEscapesRoot = errors.New("path escapes root")

// ErrPrefixMissing is returned when neither the path nor any ancestor of it
// can be canonicalized (e.g. the root itself is unreachable).
var ErrPrefixMissing = errors.New("path prefix does not exist")

// Canonical resolves root to its canonical absolute form. It fails if root
// does not exist or is not absolute.
func Canonical(root string) (string, error) {
	if !filepath.IsAbs(root) {
		return "", fmt.Errorf("root must be an absolute path: %q", root)
	}
	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRootMissing, root, err)
	}
	return real, nil
}

// Resolve maps p (interpreted relative to root unless already absolute) to
// an absolute path and verifies that it is contained in canonical(root). p
// need not exist: resolution canonicalizes the longest existing ancestor of
// the candidate path and re-appends the remaining (not-yet-created)
// components verbatim, so that destinations for Mkdir and most Move/Copy
// operations can be validated before they exist.
//
// Containment is always checked against the final, resolved path rather
// than the input, so a symlink that would redirect outside root is
// rejected even when the reference itself lexically looks contained —
// including when the redirected-to destination does not exist yet.
func Resolve(root, p string) (string, error) {
	canonRoot, err := Canonical(root)
	if err != nil {
		return "", err
	}

	var candidate string
	if filepath.IsAbs(p) {
		candidate = filepath.Clean(p)
	} else {
		candidate = filepath.Join(canonRoot, p)
	}

	if real, err := filepath.EvalSymlinks(candidate); err == nil {
		return checkContained(canonRoot, filepath.Clean(real))
	}

	resolved, err := resolveAgainstLongestExistingPrefix(canonRoot, candidate)
	if err != nil {
		return "", err
	}
	return checkContained(canonRoot, resolved)
}

// resolveAgainstLongestExistingPrefix canonicalizes the longest existing
// ancestor of candidate and re-appends the non-existing suffix. The result
// is not itself checked for containment — the caller does that against the
// real, unmodified path, since clipping an escape back under root here
// would turn a genuine escape into a false success.
func resolveAgainstLongestExistingPrefix(canonRoot, candidate string) (string, error) {
	existing := candidate
	var suffix []string
	for {
		if existing == "" || existing == string(filepath.Separator) || existing == canonRoot {
			break
		}
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		suffix = append([]string{filepath.Base(existing)}, suffix...)
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	realExisting, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPrefixMissing, existing, err)
	}

	// suffix holds only plain path components collected by peeling
	// filepath.Dir off candidate, which was already lexically cleaned by
	// filepath.Join/Clean before this function was called, so it can never
	// contain "..". joined is therefore already the correct absolute
	// path — containment is checked by the caller directly against it,
	// not re-derived here, so an escape can't be lexically clipped back
	// into root instead of rejected.
	joined := realExisting
	for _, part := range suffix {
		joined = filepath.Join(joined, part)
	}
	return joined, nil
}

func checkContained(canonRoot, p string) (string, error) {
	rel, err := filepath.Rel(canonRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, p)
	}
	return p, nil
}
