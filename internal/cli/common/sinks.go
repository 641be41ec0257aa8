package common

import (
	"context"

	"github.com/crmarques/catalogsync/core"
	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/resource"
)

// LogSinks reports per-draft errors and warnings through the context logger.
func LogSinks(ctx context.Context) core.Sinks {
	logger := logging.FromContext(ctx)
	return core.Sinks{
		Errors: func(message string, cause error, old *resource.Resource, draft *resource.Draft, actions []diff.Action) {
			values := subjectValues(draft, old)
			if len(actions) > 0 {
				values = append(values, "actions", diff.Names(actions))
			}
			logger.Error(cause, message, values...)
		},
		Warnings: func(message string, draft *resource.Draft, old *resource.Resource) {
			logger.Info(message, subjectValues(draft, old)...)
		},
	}
}

func subjectValues(draft *resource.Draft, old *resource.Resource) []any {
	values := make([]any, 0, 6)
	if draft != nil {
		values = append(values, "kind", draft.Kind, "key", draft.Key())
	}
	if old != nil {
		values = append(values, "id", old.ID, "version", old.Version)
	}
	return values
}
