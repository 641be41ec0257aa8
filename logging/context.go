package logging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

const DebugLevel = 1

func WithLogger(ctx context.Context, logger logr.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return logr.NewContext(ctx, logger)
}

func FromContext(ctx context.Context) logr.Logger {
	if ctx == nil {
		return logr.Discard()
	}
	return logr.FromContextOrDiscard(ctx)
}

// NewWriterLogger returns a line-oriented logger. Debug enables V(DebugLevel).
func NewWriterLogger(writer io.Writer, debug bool) logr.Logger {
	if writer == nil {
		return logr.Discard()
	}

	verbosity := 0
	if debug {
		verbosity = DebugLevel
	}

	return funcr.New(func(prefix, args string) {
		line := strings.TrimSpace(args)
		if prefix != "" {
			line = prefix + ": " + line
		}
		if line == "" {
			return
		}
		_, _ = fmt.Fprintln(writer, line)
	}, funcr.Options{Verbosity: verbosity})
}
