// Package logger configures structured logging with log/slog and carries
// request-scoped loggers through context.Context.
package logger
