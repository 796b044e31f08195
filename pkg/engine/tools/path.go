package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a candidate path resolves outside the
// corpus root.
var ErrPathEscape = errors.New("path escapes corpus root")

// resolveUnderRoot resolves a user-supplied relative path strictly inside
// root. The resolved absolute path is compared against the root with a
// trailing separator so that sibling directories sharing a prefix (root vs
// root-2) are rejected. Symlinked targets are resolved before the check.
func resolveUnderRoot(root, userPath string) (string, error) {
	if strings.TrimSpace(userPath) == "" {
		userPath = "."
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve corpus root: %w", err)
	}
	rootAbs = filepath.Clean(rootAbs)

	var target string
	if filepath.IsAbs(userPath) {
		target = filepath.Clean(userPath)
	} else {
		target = filepath.Clean(filepath.Join(rootAbs, userPath))
	}

	if !withinRoot(rootAbs, target) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, userPath)
	}

	// If the target exists, resolve symlinks and re-check so a link cannot
	// point outside the corpus.
	if _, lerr := os.Lstat(target); lerr == nil {
		rootReal, err := filepath.EvalSymlinks(rootAbs)
		if err != nil {
			return "", fmt.Errorf("failed to resolve corpus root symlinks: %w", err)
		}
		targetReal, err := filepath.EvalSymlinks(target)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path symlinks: %w", err)
		}
		if !withinRoot(filepath.Clean(rootReal), filepath.Clean(targetReal)) {
			return "", fmt.Errorf("%w: %s", ErrPathEscape, userPath)
		}
		return filepath.Clean(targetReal), nil
	}

	return target, nil
}

// withinRoot reports whether target equals root or sits under it. The
// trailing-separator comparison avoids prefix collisions such as /a/b
// accepting /a/bb/x.
func withinRoot(root, target string) bool {
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+string(filepath.Separator))
}
