package common

import (
	"context"

	"github.com/crmarques/catalogsync/core"
)

// RuntimeFactory builds the runtime of one invocation from a config path.
type RuntimeFactory func(ctx context.Context, configPath string) (*core.Runtime, error)

type CommandDependencies struct {
	Runtime RuntimeFactory
}

func OpenRuntime(ctx context.Context, deps CommandDependencies, globalFlags *GlobalFlags) (*core.Runtime, error) {
	if deps.Runtime == nil {
		return nil, ValidationError("runtime is not configured", nil)
	}
	configPath := ""
	if globalFlags != nil {
		configPath = globalFlags.ConfigPath
	}
	return deps.Runtime(ctx, configPath)
}

// CloseRuntime closes runtime and keeps the first error.
func CloseRuntime(runtime *core.Runtime, err *error) {
	if runtime == nil {
		return
	}
	if closeErr := runtime.Close(); closeErr != nil && *err == nil {
		*err = closeErr
	}
}
