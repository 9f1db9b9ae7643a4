package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const runIDKey contextKey = "run_id"

// ContextWithRunID tags ctx with the id of the sync run it belongs to.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run id stored in ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger with the run id from ctx attached.
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if id := RunIDFromContext(ctx); id != "" {
		logger = logger.With().Str("run_id", id).Logger()
	}
	return &logger
}
