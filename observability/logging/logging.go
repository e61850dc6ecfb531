// Package logging wires structured JSON logging for the daemon. Every line
// carries the service name and, when set, the deployment environment, so log
// aggregation can filter a mixed stream.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a config-supplied level string onto a slog level. Unknown
// or empty values default to info so a typo never silences the daemon.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a JSON slog handler on stderr as the process default and
// returns it for handing to subsystems. The standard library logger is
// bridged through the same handler so dependency packages share the format.
func Setup(service, env string, level slog.Level) *slog.Logger {
	return setup(os.Stderr, service, env, level)
}

func setup(w io.Writer, service, env string, level slog.Level) *slog.Logger {
	handler := newHandler(w, level)

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	base := slog.New(handler.WithAttrs(attrs))
	slog.SetDefault(base)

	// Anything a dependency writes through the std logger comes out at info.
	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameAttr,
	})
}

// renameAttr rewrites slog's default keys into the names the log pipeline
// indexes on.
func renameAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}
