package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/core"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/internal/cli/common"
	"github.com/crmarques/catalogsync/internal/cli/testkit"
	memoryplatform "github.com/crmarques/catalogsync/internal/providers/platform/memory"
	"github.com/crmarques/catalogsync/resource"
)

type testEnvironment struct {
	dir     string
	runtime *core.Runtime
}

// newTestEnvironment builds one in-memory runtime shared by every command
// of a test, so state survives between invocations.
func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	dir := t.TempDir()
	runtime, err := core.Build(context.Background(), config.Config{
		Target:          config.Platform{BaseURL: "memory://local", ProjectKey: "local"},
		UnresolvedStore: config.UnresolvedStore{DSN: "memory://"},
		Drafts: config.Drafts{
			From:       config.DraftsFromFilesystem,
			Filesystem: &config.FilesystemDrafts{Dir: dir},
		},
	})
	if err != nil {
		t.Fatalf("core.Build returned error: %v", err)
	}
	return &testEnvironment{dir: dir, runtime: runtime}
}

func (e *testEnvironment) dependencies() Dependencies {
	return Dependencies{
		Runtime: func(context.Context, string) (*core.Runtime, error) {
			return e.runtime, nil
		},
	}
}

func (e *testEnvironment) writeDrafts(t *testing.T, kind resource.Kind, name string, content string) {
	t.Helper()

	dir := filepath.Join(e.dir, string(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create draft dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write drafts: %v", err)
	}
}

func (e *testEnvironment) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return testkit.ExecuteCommandForTest(NewRootCommand(e.dependencies()), args...)
}

func TestRootRegistersCommands(t *testing.T) {
	t.Parallel()

	paths := testkit.RegisteredPaths(NewRootCommand(Dependencies{}), nil)
	for _, want := range []string{"sync", "diff", "unresolved", "unresolved list", "unresolved replay", "version"} {
		if !slices.Contains(paths, want) {
			t.Fatalf("expected command %q to be registered, got %v", want, paths)
		}
	}
}

func TestSyncCommandPrintsReportPerKind(t *testing.T) {
	t.Parallel()

	env := newTestEnvironment(t)
	env.writeDrafts(t, resource.KindState, "states.yaml", `
- key: open
  type: LineItemState
- key: shipped
  type: LineItemState
`)

	output, err := env.run(t, "sync", "state")
	if err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	want := "Summary: 2 states were processed in total (2 created, 0 updated, 0 failed to sync and 0 with missing references).\n"
	if output != want {
		t.Fatalf("sync output = %q, want %q", output, want)
	}

	output, err = env.run(t, "sync", "state", "--output", "json")
	if err != nil {
		t.Fatalf("second sync returned error: %v", err)
	}
	var reports []common.Report
	if err := json.Unmarshal([]byte(output), &reports); err != nil {
		t.Fatalf("failed to decode sync output %q: %v", output, err)
	}
	if len(reports) != 1 || reports[0].Kind != "state" {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if reports[0].Created != 0 || reports[0].Updated != 0 {
		t.Fatalf("expected a converged second run, got %+v", reports[0])
	}
}

func TestSyncCommandRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	env := newTestEnvironment(t)
	_, err := env.run(t, "sync", "widget")
	if err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
	if !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := ExitCodeForError(err); got != 2 {
		t.Fatalf("ExitCodeForError() = %d, want 2", got)
	}
}

func TestDiffCommandShowsPendingActions(t *testing.T) {
	t.Parallel()

	env := newTestEnvironment(t)
	env.writeDrafts(t, resource.KindState, "open.json", `{"key":"open","type":"LineItemState"}`)

	output, err := env.run(t, "diff", "state")
	if err != nil {
		t.Fatalf("diff returned error: %v", err)
	}
	if output != "open: create\n" {
		t.Fatalf("diff output before sync = %q", output)
	}

	if _, err := env.run(t, "sync", "state"); err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	env.writeDrafts(t, resource.KindState, "open.json", `{"key":"open","type":"ReviewState"}`)

	output, err = env.run(t, "diff", "state")
	if err != nil {
		t.Fatalf("diff returned error: %v", err)
	}
	if !strings.HasPrefix(output, "open: update\n  changeType ") || !strings.Contains(output, `"ReviewState"`) {
		t.Fatalf("diff output after change = %q", output)
	}

	output, err = env.run(t, "diff", "state", "--changes-only")
	if err != nil {
		t.Fatalf("diff returned error: %v", err)
	}
	if !strings.HasPrefix(output, "open: update") {
		t.Fatalf("expected the changed draft to be listed, got %q", output)
	}
}

func TestDiffCommandRequiresKind(t *testing.T) {
	t.Parallel()

	env := newTestEnvironment(t)
	_, stderr, err := testkit.ExecuteCommandForTestWithStreams(NewRootCommand(env.dependencies()), "diff")
	if err == nil {
		t.Fatal("expected an error without a kind")
	}
	if !strings.Contains(stderr, "Usage:") {
		t.Fatalf("expected usage on stderr, got %q", stderr)
	}
}

func TestUnresolvedCommandsListAndReplay(t *testing.T) {
	t.Parallel()

	env := newTestEnvironment(t)
	env.writeDrafts(t, resource.KindState, "open.json", `{"key":"open","type":"LineItemState","transitions":[{"typeId":"state","key":"later"}]}`)

	output, err := env.run(t, "sync", "state")
	if err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	if !strings.Contains(output, "0 created") || !strings.Contains(output, "1 with missing references") {
		t.Fatalf("expected the draft to be deferred, got %q", output)
	}

	output, err = env.run(t, "unresolved", "list", "state")
	if err != nil {
		t.Fatalf("unresolved list returned error: %v", err)
	}
	if output != "open: waiting on state:later\n" {
		t.Fatalf("unresolved list output = %q", output)
	}

	memory := env.runtime.Target.(*memoryplatform.Platform)
	if _, err := memory.Seed(resource.KindState, map[string]any{"key": "later", "type": "LineItemState"}); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}

	output, err = env.run(t, "unresolved", "replay", "state")
	if err != nil {
		t.Fatalf("unresolved replay returned error: %v", err)
	}
	if !strings.Contains(output, "1 created") {
		t.Fatalf("expected the deferred draft to be created, got %q", output)
	}

	output, err = env.run(t, "unresolved", "list", "state", "-o", "json")
	if err != nil {
		t.Fatalf("unresolved list returned error: %v", err)
	}
	if strings.TrimSpace(output) != "[]" {
		t.Fatalf("expected nothing pending after replay, got %q", output)
	}
}

func TestCommandsRequireRuntime(t *testing.T) {
	t.Parallel()

	_, err := testkit.ExecuteCommandForTest(NewRootCommand(Dependencies{}), "sync")
	if err == nil || !strings.Contains(err.Error(), "runtime is not configured") {
		t.Fatalf("expected missing runtime error, got %v", err)
	}
}

func TestRootRejectsInvalidOutputFormat(t *testing.T) {
	t.Parallel()

	_, err := testkit.ExecuteCommandForTest(NewRootCommand(Dependencies{}), "version", "--output", "xml")
	if err == nil || !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVersionCommandStructuredOutput(t *testing.T) {
	t.Parallel()

	output, err := testkit.ExecuteCommandForTest(NewRootCommand(Dependencies{}), "version", "-o", "yaml")
	if err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.Contains(output, "version: dev") {
		t.Fatalf("unexpected version output %q", output)
	}
}

func TestDebugFlagEnablesDebugLogs(t *testing.T) {
	t.Parallel()

	env := newTestEnvironment(t)
	_, stderr, err := testkit.ExecuteCommandForTestWithStreams(NewRootCommand(env.dependencies()), "--debug", "unresolved", "list", "state")
	if err != nil {
		t.Fatalf("unresolved list returned error: %v", err)
	}
	if !strings.Contains(stderr, "root flags") {
		t.Fatalf("expected debug log on stderr, got %q", stderr)
	}
}
