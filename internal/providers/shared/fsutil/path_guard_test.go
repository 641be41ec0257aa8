package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsPathUnderRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Clean("/tmp/root")
	if !IsPathUnderRoot(root, filepath.Join(root, "a", "b")) {
		t.Fatal("expected child path to be under root")
	}
	if IsPathUnderRoot(root, filepath.Clean("/tmp/other/file")) {
		t.Fatal("expected unrelated path to be outside root")
	}
}

func TestIsPathUnderRootRejectsSymlinkEscape(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()

	linkPath := filepath.Join(root, "link")
	if err := os.Symlink(outside, linkPath); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	candidate := filepath.Join(linkPath, "escaped.txt")
	if IsPathUnderRoot(root, candidate) {
		t.Fatalf("expected symlinked path %q to be rejected under root %q", candidate, root)
	}
}

func TestIsPathUnderRootAcceptsMissingSuffix(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if !IsPathUnderRoot(root, filepath.Join(root, "product", "not-yet.json")) {
		t.Fatal("expected a not yet existing child path to be under root")
	}
	if IsPathUnderRoot(root, filepath.Join(root, "..", "sibling")) {
		t.Fatal("expected a parent traversal to be outside root")
	}
}
