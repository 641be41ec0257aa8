package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/resource"
)

func TestSourceReadsKindDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "category"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	content := "key: shoes\nname:\n  en: Shoes\nparent:\n  typeId: category\n  key: apparel\n"
	if err := os.WriteFile(filepath.Join(root, "category", "shoes.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write draft: %v", err)
	}

	src, err := NewSource(config.FilesystemDrafts{Dir: root})
	if err != nil {
		t.Fatalf("NewSource returned error: %v", err)
	}
	drafts, err := src.Drafts(context.Background(), resource.KindCategory)
	if err != nil {
		t.Fatalf("Drafts returned error: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Key() != "shoes" {
		t.Fatalf("unexpected drafts %#v", drafts)
	}
	parent, ok := resource.ParseReference(drafts[0].Payload["parent"])
	if !ok || parent.Key != "apparel" || parent.TypeID != resource.KindCategory {
		t.Fatalf("unexpected parent reference %#v", drafts[0].Payload["parent"])
	}
}

func TestNewSourceRequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := NewSource(config.FilesystemDrafts{Dir: "  "}); err == nil {
		t.Fatal("expected error for a blank dir")
	}
}

func TestSourceHonoursCancellation(t *testing.T) {
	t.Parallel()

	src, err := NewSource(config.FilesystemDrafts{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewSource returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Drafts(ctx, resource.KindCategory); err == nil {
		t.Fatal("expected cancelled context error")
	}
}
