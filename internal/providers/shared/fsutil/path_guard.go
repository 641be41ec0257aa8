package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IsPathUnderRoot reports whether candidate stays inside root once symlinks
// in either path are resolved. Components that do not exist yet are compared
// lexically.
func IsPathUnderRoot(root string, candidate string) bool {
	resolvedRoot, err := resolveExisting(root)
	if err != nil {
		return false
	}
	resolvedCandidate, err := resolveExisting(candidate)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(resolvedRoot, resolvedCandidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting evaluates the symlinks of the longest existing prefix of
// path and appends the missing suffix unchanged.
func resolveExisting(path string) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	existing := absolute
	var missing []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			resolved, err := filepath.EvalSymlinks(existing)
			if err != nil {
				return "", err
			}
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			return absolute, nil
		}
		missing = append([]string{filepath.Base(existing)}, missing...)
		existing = parent
	}
}
