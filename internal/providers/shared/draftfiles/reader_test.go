package draftfiles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func TestReadOrdersDraftsByFileAndPosition(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "state")
	writeFile(t, filepath.Join(dir, "b.yaml"), "key: b1\ntype: LineItemState\n---\nkey: b2\ntype: LineItemState\n")
	writeFile(t, filepath.Join(dir, "a.json"), `[{"key":"a1","type":"LineItemState","rank":3},{"key":"a2","type":"LineItemState"}]`)
	writeFile(t, filepath.Join(dir, "c.yml"), "- key: c1\n  type: LineItemState\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".hidden.json"), "{}")

	drafts, err := Read(root, resource.KindState)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	var keys []string
	for _, draft := range drafts {
		if draft.Kind != resource.KindState {
			t.Fatalf("unexpected kind %q", draft.Kind)
		}
		keys = append(keys, draft.Key())
	}
	if got := strings.Join(keys, ","); got != "a1,a2,b1,b2,c1" {
		t.Fatalf("unexpected draft order %q", got)
	}
	if rank, ok := drafts[0].Payload["rank"].(int64); !ok || rank != 3 {
		t.Fatalf("expected json numbers normalized to int64, got %#v", drafts[0].Payload["rank"])
	}
}

func TestReadMissingKindDirectory(t *testing.T) {
	t.Parallel()

	drafts, err := Read(t.TempDir(), resource.KindProduct)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if len(drafts) != 0 {
		t.Fatalf("expected no drafts, got %d", len(drafts))
	}
}

func TestReadRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		file    string
	}{
		{name: "broken json", file: "bad.json", content: `{"key": `},
		{name: "broken yaml", file: "bad.yaml", content: "key: [a"},
		{name: "scalar list item", file: "bad.yml", content: "- 1\n- 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			writeFile(t, filepath.Join(root, "category", tt.file), tt.content)

			_, err := Read(root, resource.KindCategory)
			if !faults.IsCategory(err, faults.ValidationError) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.file) {
				t.Fatalf("expected error to name the file, got %v", err)
			}
		})
	}
}

func TestReadRejectsSymlinkEscape(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "leak.json"), `{"key":"leak"}`)

	if err := os.Symlink(outside, filepath.Join(root, "state")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	_, err := Read(root, resource.KindState)
	if err == nil || !strings.Contains(err.Error(), "escapes draft directory") {
		t.Fatalf("expected symlink escape to be rejected, got %v", err)
	}
}

func TestReadRejectsKindWithSeparator(t *testing.T) {
	t.Parallel()

	if _, err := Read(t.TempDir(), resource.Kind("../etc")); !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
