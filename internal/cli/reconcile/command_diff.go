package reconcile

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/internal/cli/common"
	"github.com/crmarques/catalogsync/reconciler"
	"github.com/spf13/cobra"
)

type planEntry struct {
	Key       string        `json:"key" yaml:"key"`
	Operation string        `json:"operation" yaml:"operation"`
	Actions   []actionEntry `json:"actions,omitempty" yaml:"actions,omitempty"`
	Missing   []string      `json:"missing,omitempty" yaml:"missing,omitempty"`
	Issues    []issueEntry  `json:"issues,omitempty" yaml:"issues,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

type actionEntry struct {
	Action string         `json:"action" yaml:"action"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

type issueEntry struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
	Warning bool   `json:"warning,omitempty" yaml:"warning,omitempty"`
}

func newPlanEntry(plan reconciler.Plan) planEntry {
	entry := planEntry{
		Key:       plan.Key,
		Operation: string(plan.Operation),
		Error:     plan.Error,
	}
	for _, action := range plan.Actions {
		entry.Actions = append(entry.Actions, actionEntry{Action: action.Name, Params: action.Params})
	}
	for _, key := range plan.Missing {
		entry.Missing = append(entry.Missing, key.String())
	}
	for _, issue := range plan.Issues {
		entry.Issues = append(entry.Issues, issueEntry{
			Field:   issue.Field,
			Message: issue.Message,
			Warning: issue.Severity == diff.SeverityWarning,
		})
	}
	return entry
}

func NewDiffCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var changesOnly bool

	command := &cobra.Command{
		Use:   "diff <kind>",
		Short: "Show the actions a sync would send",
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

			plans, err := runtime.Plan(ctx, kinds[0], common.LogSinks(ctx))
			if err != nil {
				return err
			}

			entries := make([]planEntry, 0, len(plans))
			for _, plan := range plans {
				if changesOnly && plan.Operation == reconciler.OperationUnchanged {
					continue
				}
				entries = append(entries, newPlanEntry(plan))
			}

			return common.WriteOutput(command, common.OutputFormat(globalFlags), entries, renderPlans)
		},
	}

	command.Flags().BoolVar(&changesOnly, "changes-only", false, "omit drafts that are already in sync")
	common.BindKindArgs(command, common.CatalogKinds)
	return command
}

func renderPlans(w io.Writer, entries []planEntry) error {
	for _, entry := range entries {
		line, err := renderPlanText(entry)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func renderPlanText(entry planEntry) (string, error) {
	var builder strings.Builder
	builder.WriteString(entry.Key)
	builder.WriteString(": ")
	builder.WriteString(entry.Operation)

	switch {
	case entry.Error != "":
		builder.WriteString(" (" + entry.Error + ")")
	case len(entry.Missing) > 0:
		builder.WriteString(" (missing " + strings.Join(entry.Missing, ", ") + ")")
	}

	for _, action := range entry.Actions {
		params, err := json.Marshal(action.Params)
		if err != nil {
			return "", err
		}
		builder.WriteString("\n  " + action.Action + " " + string(params))
	}
	for _, issue := range entry.Issues {
		label := "error"
		if issue.Warning {
			label = "warning"
		}
		builder.WriteString(fmt.Sprintf("\n  %s %s: %s", label, issue.Field, issue.Message))
	}
	return builder.String(), nil
}
