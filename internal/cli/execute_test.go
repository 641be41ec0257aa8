package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/crmarques/catalogsync/faults"
	"github.com/spf13/cobra"
)

func TestShouldSuppressStatusMessage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
		want bool
	}{
		{name: "default false", args: []string{"sync", "state"}, want: false},
		{name: "long flag", args: []string{"--no-status", "sync", "state"}, want: true},
		{name: "short flag", args: []string{"-n", "sync", "state"}, want: true},
		{name: "flag after positionals", args: []string{"sync", "state", "--no-status"}, want: true},
		{name: "explicit true", args: []string{"--no-status=true", "sync", "state"}, want: true},
		{name: "explicit false", args: []string{"--no-status=false", "sync", "state"}, want: false},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := shouldSuppressStatusMessage(testCase.args)
			if got != testCase.want {
				t.Fatalf("shouldSuppressStatusMessage(%v) = %t, want %t", testCase.args, got, testCase.want)
			}
		})
	}
}

func TestExecutionStatusWriters(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		buffer := &bytes.Buffer{}
		statusWriter{out: buffer, color: true}.succeeded()
		if got, want := buffer.String(), "[OK] command executed successfully.\n"; got != want {
			t.Fatalf("succeeded() = %q, want %q", got, want)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		buffer := &bytes.Buffer{}
		statusWriter{out: buffer, color: true}.failed(errors.New("3 drafts failed to sync"))
		if got, want := buffer.String(), "[ERROR] command execution failed: 3 drafts failed to sync.\n"; got != want {
			t.Fatalf("failed() = %q, want %q", got, want)
		}
	})
}

func TestShouldSuppressColor(t *testing.T) {
	t.Run("no color env", func(t *testing.T) {
		t.Setenv("NO_COLOR", "1")
		if !shouldSuppressColor([]string{"diff", "state"}) {
			t.Fatal("expected color suppression when NO_COLOR is set")
		}
	})

	t.Run("flag parsing", func(t *testing.T) {
		t.Setenv("NO_COLOR", "")
		if !shouldSuppressColor([]string{"diff", "state", "--no-color"}) {
			t.Fatal("expected color suppression for --no-color")
		}
		if shouldSuppressColor([]string{"diff", "state", "--no-color=false"}) {
			t.Fatal("expected color enabled when --no-color=false")
		}
	})
}

func TestShouldEmitExecutionStatus(t *testing.T) {
	t.Parallel()

	buildCommandPath := func(names ...string) *cobra.Command {
		root := &cobra.Command{Use: "catalogsync"}
		current := root
		for _, name := range names {
			next := &cobra.Command{Use: name}
			current.AddCommand(next)
			current = next
		}
		return current
	}

	testCases := []struct {
		name    string
		args    []string
		command []string
		want    bool
	}{
		{name: "sync command", args: []string{"sync", "state"}, command: []string{"sync"}, want: true},
		{name: "sync command no status", args: []string{"sync", "state", "--no-status"}, command: []string{"sync"}, want: false},
		{name: "help invocation", args: []string{"sync", "--help"}, command: []string{"sync"}, want: false},
		{name: "completion invocation", args: []string{"completion", "bash"}, command: []string{"completion", "bash"}, want: false},
		{name: "read command", args: []string{"unresolved", "list", "state"}, command: []string{"unresolved", "list"}, want: false},
		{name: "replay command", args: []string{"unresolved", "replay", "state"}, command: []string{"unresolved", "replay"}, want: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := shouldEmitExecutionStatus(testCase.args, buildCommandPath(testCase.command...))
			if got != testCase.want {
				t.Fatalf("shouldEmitExecutionStatus(%v) = %t, want %t", testCase.args, got, testCase.want)
			}
		})
	}
}

func TestExitCodeForError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "untyped", err: errors.New("boom"), want: 1},
		{name: "validation", err: faults.NewTypedError(faults.ValidationError, "bad", nil), want: 2},
		{name: "not found", err: faults.NewTypedError(faults.NotFoundError, "missing", nil), want: 3},
		{name: "auth", err: faults.NewTypedError(faults.AuthError, "denied", nil), want: 4},
		{name: "conflict retry", err: faults.NewTypedError(faults.ConflictRetryError, "conflict", nil), want: 5},
		{name: "remote call", err: faults.NewTypedError(faults.RemoteCallError, "failed", nil), want: 6},
		{name: "wrapped", err: fmt.Errorf("sync state: %w", faults.NewTypedError(faults.TransportError, "down", nil)), want: 6},
		{name: "internal", err: faults.NewTypedError(faults.InternalError, "2 drafts failed to sync", nil), want: 1},
	}

	for _, testCase := range testCases {
		if got := ExitCodeForError(testCase.err); got != testCase.want {
			t.Fatalf("%s: ExitCodeForError() = %d, want %d", testCase.name, got, testCase.want)
		}
	}
}
