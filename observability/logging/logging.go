// Package logging configures structured JSON logging for the gateway.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// levelFor maps the deployment environment to a log level. Development runs
// at debug; everything else stays at info unless DEED_LOG_LEVEL overrides it.
func levelFor(env string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEED_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if strings.EqualFold(strings.TrimSpace(env), "development") {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Setup configures the default slog logger to emit structured JSON and
// returns it. Every line carries the service name and, when provided, the
// environment. The standard library logger is bridged onto the same handler
// so dependencies that use log.Printf stay on one output.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFor(env),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}

	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
