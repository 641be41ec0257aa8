package cli

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/crmarques/catalogsync/internal/cli/common"
	"github.com/crmarques/catalogsync/internal/cli/reconcile"
	unresolvedcmd "github.com/crmarques/catalogsync/internal/cli/unresolved"
	"github.com/crmarques/catalogsync/internal/cli/version"
	"github.com/crmarques/catalogsync/logging"
	"github.com/spf13/cobra"
)

func NewRootCommand(deps Dependencies) *cobra.Command {
	commandDeps := deps.commandDependencies()
	var globalFlags common.GlobalFlags

	root := &cobra.Command{
		Use:   "catalogsync",
		Short: "Sync catalog resources between platform projects",
		RunE: func(command *cobra.Command, _ []string) error {
			return command.Help()
		},
		Args: cobra.NoArgs,
		PersistentPreRunE: func(command *cobra.Command, _ []string) error {
			if err := common.ValidateOutputFormat(globalFlags.Output); err != nil {
				return err
			}
			if err := common.ValidateOutputFormatForCommandPath(command.CommandPath(), globalFlags.Output); err != nil {
				return err
			}

			logger := logging.NewWriterLogger(command.ErrOrStderr(), globalFlags.Debug)
			command.SetContext(logging.WithLogger(command.Context(), logger))

			logger.V(logging.DebugLevel).Info(
				"root flags",
				"config", globalFlags.ConfigPath,
				"output", globalFlags.Output,
				"noStatus", globalFlags.NoStatus,
				"noColor", globalFlags.NoColor,
				"command", command.CommandPath(),
			)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultHelpFunc := root.HelpFunc()
	root.SetHelpFunc(func(command *cobra.Command, args []string) {
		originalOut := command.OutOrStdout()
		originalErr := command.ErrOrStderr()

		buffer := &bytes.Buffer{}
		command.SetOut(buffer)
		command.SetErr(buffer)
		defaultHelpFunc(command, args)
		command.SetOut(originalOut)
		command.SetErr(originalErr)

		rendered := strings.TrimRight(buffer.String(), "\n")
		if rendered == "" {
			_, _ = fmt.Fprintln(originalOut)
			return
		}

		_, _ = fmt.Fprintln(originalOut, rendered)
	})

	common.BindGlobalFlags(root, &globalFlags)
	root.PersistentFlags().BoolP("help", "h", false, "help for command")

	root.AddGroup(
		&cobra.Group{ID: "basic", Title: "Basic Commands:"},
		&cobra.Group{ID: "other", Title: "Other Commands:"},
	)

	basicCommands := []*cobra.Command{
		reconcile.NewSyncCommand(commandDeps, &globalFlags),
		reconcile.NewDiffCommand(commandDeps, &globalFlags),
		unresolvedcmd.NewCommand(commandDeps, &globalFlags),
	}
	for _, command := range basicCommands {
		command.GroupID = "basic"
		root.AddCommand(command)
	}

	versionCommand := version.NewCommand(&globalFlags)
	versionCommand.GroupID = "other"
	root.AddCommand(versionCommand)
	root.SetCompletionCommandGroupID("other")

	wrapUsageForMissingPositionalParameterErrors(root)

	return root
}

func wrapUsageForMissingPositionalParameterErrors(root *cobra.Command) {
	var wrapCommandTree func(*cobra.Command)
	wrapCommandTree = func(command *cobra.Command) {
		command.Args = wrapArgsWithUsage(command.Args)
		for _, child := range command.Commands() {
			wrapCommandTree(child)
		}
	}

	wrapCommandTree(root)
}

func wrapArgsWithUsage(validate cobra.PositionalArgs) cobra.PositionalArgs {
	if validate == nil {
		return nil
	}

	return func(command *cobra.Command, args []string) error {
		err := validate(command, args)
		if shouldPrintUsageForMissingPositionalParameter(command, err, args) {
			printCommandUsageOnError(command)
		}
		return err
	}
}

func shouldPrintUsageForMissingPositionalParameter(command *cobra.Command, err error, args []string) bool {
	if err == nil || len(args) != 0 {
		return false
	}
	if !strings.Contains(command.Use, "<") {
		return false
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "arg(s)") && strings.Contains(message, "received 0")
}

func printCommandUsageOnError(command *cobra.Command) {
	rendered := strings.TrimRight(command.UsageString(), "\n")
	if rendered == "" {
		return
	}

	_, _ = fmt.Fprintln(command.ErrOrStderr(), rendered)
}
