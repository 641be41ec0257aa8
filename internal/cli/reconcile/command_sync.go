package reconcile

import (
	"context"
	"fmt"

	"github.com/crmarques/catalogsync/core"
	"github.com/crmarques/catalogsync/internal/cli/common"
	"github.com/crmarques/catalogsync/internal/cli/version"
	"github.com/crmarques/catalogsync/internal/telemetry"
	"github.com/crmarques/catalogsync/logging"
	"github.com/spf13/cobra"
)

func NewSyncCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:   "sync [kind...]",
		Short: "Sync drafts into the target project, referenced kinds first",
		Args:  cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, args []string) (err error) {
			ctx := command.Context()
			runtime, err := common.OpenRuntime(ctx, deps, globalFlags)
			if err != nil {
				return err
			}
			defer common.CloseRuntime(runtime, &err)

			shutdown, err := telemetry.SetupTracing(ctx, runtime.Config.Telemetry.Tracing, version.Version)
			if err != nil {
				return err
			}
			defer func() {
				if shutdownErr := shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
					logging.FromContext(ctx).Error(shutdownErr, "failed to flush traces")
				}
			}()

			stopMetrics := startMetrics(ctx, runtime)
			defer stopMetrics()

			kinds, err := runtime.Kinds(args)
			if err != nil {
				return err
			}

			reports := make([]common.Report, 0, len(kinds))
			var syncErr error
			for _, kind := range kinds {
				stats, runErr := runtime.Sync(ctx, kind, common.LogSinks(ctx))
				if stats != nil {
					reports = append(reports, common.NewReport(stats))
				}
				if runErr != nil {
					syncErr = fmt.Errorf("sync %s: %w", kind, runErr)
					break
				}
			}

			if writeErr := common.WriteOutput(command, common.OutputFormat(globalFlags), reports, common.RenderReports); writeErr != nil {
				return writeErr
			}
			if syncErr != nil {
				return syncErr
			}
			return common.FailedDraftsError(reports)
		},
	}

	common.BindKindArgs(command, common.CatalogKinds)
	return command
}

// startMetrics serves the runtime metrics until the returned stop is called.
func startMetrics(ctx context.Context, runtime *core.Runtime) func() {
	address := runtime.Config.Telemetry.MetricsAddress
	if address == "" || runtime.Metrics == nil {
		return func() {}
	}

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := runtime.Metrics.Serve(serveCtx, address); err != nil {
			logging.FromContext(ctx).Error(err, "metrics server stopped", "address", address)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
