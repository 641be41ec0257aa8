package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/crmarques/catalogsync/core"
	"github.com/crmarques/catalogsync/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	deps := cli.Dependencies{Runtime: newRuntime}
	err := cli.Execute(ctx, deps)
	stop()
	if err != nil {
		os.Exit(cli.ExitCodeForError(err))
	}
}

func newRuntime(ctx context.Context, configPath string) (*core.Runtime, error) {
	return core.NewRuntime(ctx, core.BootstrapConfig{ConfigPath: configPath})
}
