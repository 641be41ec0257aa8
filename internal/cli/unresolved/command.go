package unresolved

import (
	"fmt"
	"io"
	"strings"

	"github.com/crmarques/catalogsync/internal/cli/common"
	"github.com/crmarques/catalogsync/unresolved"
	"github.com/spf13/cobra"
)

type recordEntry struct {
	Key     string         `json:"key" yaml:"key"`
	Missing []string       `json:"missingReferencedKeys" yaml:"missingReferencedKeys"`
	Draft   map[string]any `json:"draft,omitempty" yaml:"draft,omitempty"`
}

func newRecordEntry(record unresolved.Record, withDraft bool) recordEntry {
	entry := recordEntry{Key: record.OwnerKey, Missing: make([]string, 0, len(record.Missing))}
	for _, key := range record.Missing.Sorted() {
		entry.Missing = append(entry.Missing, key.String())
	}
	if withDraft && record.Draft != nil {
		entry.Draft = record.Draft.Payload
	}
	return entry
}

func NewCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:   "unresolved",
		Short: "Inspect and replay drafts waiting on missing references",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return command.Help()
		},
	}

	command.AddCommand(
		newListCommand(deps, globalFlags),
		newReplayCommand(deps, globalFlags),
	)
	return command
}

func newListCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var withDrafts bool

	command := &cobra.Command{
		Use:   "list <kind>",
		Short: "List deferred drafts of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) (err error) {
			ctx := command.Context()
			runtime, err := common.OpenRuntime(ctx, deps, globalFlags)
			if err != nil {
				return err
			}
			defer common.CloseRuntime(runtime, &err)

			kinds, err := runtime.Kinds(args)
			if err != nil {
				return err
			}
			records, err := runtime.Pending(ctx, kinds[0])
			if err != nil {
				return err
			}

			entries := make([]recordEntry, 0, len(records))
			for _, record := range records {
				entries = append(entries, newRecordEntry(record, withDrafts))
			}

			return common.WriteOutput(command, common.OutputFormat(globalFlags), entries, func(w io.Writer, value []recordEntry) error {
				for _, entry := range value {
					if _, writeErr := fmt.Fprintf(w, "%s: waiting on %s\n", entry.Key, strings.Join(entry.Missing, ", ")); writeErr != nil {
						return writeErr
					}
				}
				return nil
			})
		},
	}

	command.Flags().BoolVar(&withDrafts, "drafts", false, "include the deferred draft payloads in structured output")
	common.BindKindArgs(command, common.CatalogKinds)
	return command
}

func newReplayCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:   "replay <kind>",
		Short: "Replay deferred drafts whose references now exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) (err error) {
			ctx := command.Context()
			runtime, err := common.OpenRuntime(ctx, deps, globalFlags)
			if err != nil {
				return err
			}
			defer common.CloseRuntime(runtime, &err)

			kinds, err := runtime.Kinds(args)
			if err != nil {
				return err
			}
			stats, err := runtime.Replay(ctx, kinds[0], common.LogSinks(ctx))
			if stats == nil {
				return err
			}
			reports := []common.Report{common.NewReport(stats)}
			if writeErr := common.WriteOutput(command, common.OutputFormat(globalFlags), reports, common.RenderReports); writeErr != nil {
				return writeErr
			}
			if err != nil {
				return err
			}
			return common.FailedDraftsError(reports)
		},
	}

	common.BindKindArgs(command, common.CatalogKinds)
	return command
}
