package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
)

// ServiceName is attached to every record.
const ServiceName = "lightbridge"

// redacted replaces the value of any attribute named in secretKeys.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the output.
var secretKeys = map[string]bool{
	"key":       true,
	"local_key": true,
	"password":  true,
}

// Severity is the verbosity scale of the (message, severity) sink. Lower
// is more important.
type Severity int

const (
	SeverityError Severity = iota
	SeverityInfo
	SeverityDebug
)

// Logger is a slog.Logger carrying the service and version attributes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger for the output named in cfg: stdout (default),
// stderr or discard.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(writerFor(cfg.Output), cfg, version)
}

// NewWithWriter creates a Logger writing to w. Output in cfg is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With("service", ServiceName, "version", version)}
}

func writerFor(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "discard", "none":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel accepts anything slog.Level understands ("debug", "INFO",
// "warn+2") plus "warning". Unknown input means info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// redact hides secret attribute values, including inside groups.
func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// With returns a child Logger with additional attributes.
//
//	tuyaLog := log.With("component", "tuya", "device", id)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Log writes message at the slog level matching severity. Anything above
// SeverityDebug is logged at debug.
func (l *Logger) Log(message string, severity Severity) {
	l.Logger.Log(context.Background(), severity.Level(), message)
}

// Level maps a severity to a slog level.
func (s Severity) Level() slog.Level {
	switch {
	case s <= SeverityError:
		return slog.LevelError
	case s == SeverityInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Default is the JSON info logger used before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}
