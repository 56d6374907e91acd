package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// InitLogging initializes logging.
// Release mode writes JSON, every other gin mode writes human-readable text.
func InitLogging(mode, level string) {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: mode == "release",
	}

	var handler slog.Handler
	if mode == "release" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger = slog.New(handler).With("service", "harmonyclass-api")
	slog.SetDefault(logger)
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

// Logger returns the underlying structured logger
func Logger() *slog.Logger {
	return logger
}

// Debugf logs debug level messages
func Debugf(format string, v ...interface{}) {
	logger.Debug(fmt.Sprintf(format, v...))
}

// Infof logs info level messages
func Infof(format string, v ...interface{}) {
	logger.Info(fmt.Sprintf(format, v...))
}

// Warnf logs warning level messages
func Warnf(format string, v ...interface{}) {
	logger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs error level messages
func Errorf(format string, v ...interface{}) {
	logger.Error(fmt.Sprintf(format, v...))
}
