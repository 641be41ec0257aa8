package testkit

import (
	"bytes"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

var executeMu sync.Mutex

func ExecuteCommandForTest(command *cobra.Command, args ...string) (string, error) {
	output, _, err := ExecuteCommandForTestWithStreams(command, args...)
	return output, err
}

// ExecuteCommandForTestWithStreams runs command with args and returns what it
// wrote to stdout and stderr.
func ExecuteCommandForTestWithStreams(command *cobra.Command, args ...string) (string, string, error) {
	// Cobra mutates shared flag annotations while serving help and completion.
	executeMu.Lock()
	defer executeMu.Unlock()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	command.SetOut(stdout)
	command.SetErr(stderr)
	command.SetIn(strings.NewReader(""))
	command.SetArgs(args)

	err := command.Execute()
	return stdout.String(), stderr.String(), err
}

func RegisteredPaths(command *cobra.Command, prefix []string) []string {
	paths := make([]string, 0)
	for _, child := range command.Commands() {
		name := child.Name()
		if name == "help" || strings.HasPrefix(name, "__") {
			continue
		}
		current := append(append([]string{}, prefix...), name)
		paths = append(paths, strings.Join(current, " "))
		paths = append(paths, RegisteredPaths(child, current)...)
	}
	return paths
}
