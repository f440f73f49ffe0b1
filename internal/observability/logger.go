package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog logger.
// format is "json" or "text"; level is debug, info, warn or error.
func SetupLogger(level, format string) *slog.Logger {
	return setupLogger(os.Stdout, level, format)
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
