package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/internal/cli/commandmeta"
	"github.com/crmarques/catalogsync/internal/cli/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Dependencies struct {
	// Runtime builds the runtime of commands that talk to a platform.
	Runtime common.RuntimeFactory
}

func (d Dependencies) commandDependencies() common.CommandDependencies {
	return common.CommandDependencies{Runtime: d.Runtime}
}

// Execute runs the command line in os.Args. Mutating commands end with a
// status line on stderr unless --no-status is given.
func Execute(ctx context.Context, deps Dependencies) error {
	args := os.Args[1:]
	root := NewRootCommand(deps)
	command, err := root.ExecuteContextC(ctx)

	status := statusWriter{out: root.ErrOrStderr(), color: !shouldSuppressColor(args)}
	if !shouldEmitExecutionStatus(args, command) {
		if err != nil {
			_, _ = fmt.Fprintln(status.out, strings.TrimSpace(err.Error()))
		}
		return err
	}

	if err != nil {
		status.failed(err)
		return err
	}
	status.succeeded()
	return nil
}

var exitCodes = map[faults.ErrorCategory]int{
	faults.ValidationError:    2,
	faults.NotFoundError:      3,
	faults.AuthError:          4,
	faults.ConflictError:      5,
	faults.ConflictRetryError: 5,
	faults.TransportError:     6,
	faults.RemoteCallError:    6,
	faults.CacheBuildError:    6,
}

// ExitCodeForError maps the outermost typed error category to an exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return 0
	}

	var typedErr *faults.TypedError
	if !errors.As(err, &typedErr) {
		return 1
	}
	if code, ok := exitCodes[typedErr.Category]; ok {
		return code
	}
	return 1
}

type statusWriter struct {
	out   io.Writer
	color bool
}

func (w statusWriter) succeeded() {
	_, _ = fmt.Fprintf(w.out, "%s command executed successfully.\n", w.label("OK", "\x1b[1;32m"))
}

func (w statusWriter) failed(err error) {
	description := "command execution failed"
	if err != nil {
		description += ": " + strings.TrimSpace(err.Error())
	}
	_, _ = fmt.Fprintf(w.out, "%s %s.\n", w.label("ERROR", "\x1b[1;31m"), description)
}

func (w statusWriter) label(status string, ansi string) string {
	label := "[" + status + "]"
	if !w.color || !isTerminal(w.out) {
		return label
	}
	return ansi + label + "\x1b[0m"
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	return term != "" && term != "dumb"
}

func shouldSuppressColor(args []string) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return true
	}
	return boolFlagFromArgs(args, "no-color", "")
}

func shouldEmitExecutionStatus(args []string, command *cobra.Command) bool {
	if command == nil || shouldSuppressStatusMessage(args) || isHelpOrCompletionInvocation(args) {
		return false
	}
	return commandmeta.EmitsExecutionStatusPath(command.CommandPath())
}

func shouldSuppressStatusMessage(args []string) bool {
	return boolFlagFromArgs(args, "no-status", "n")
}

// boolFlagFromArgs reads one boolean flag from raw arguments, ignoring every
// other flag.
func boolFlagFromArgs(args []string, name string, shorthand string) bool {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.SetOutput(io.Discard)

	var value bool
	flags.BoolVarP(&value, name, shorthand, false, "")
	if err := flags.Parse(args); err != nil {
		return false
	}
	return value
}

func isHelpOrCompletionInvocation(args []string) bool {
	if len(args) == 0 {
		return true
	}
	switch args[0] {
	case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}

	for _, current := range args {
		if current == "--" {
			break
		}
		if current == "--help" || current == "-h" {
			return true
		}
	}
	return false
}
