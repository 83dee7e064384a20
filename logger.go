package foxytools

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger is the logging surface used by the client. *slog.Logger
// satisfies it directly.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig selects which parts of the client log at debug level.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCache     bool
	LogRateLimit bool
	LogRetries   bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with every category on, so
// WithDebug only has to flip Enabled.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogCache:     true,
		LogRateLimit: true,
		LogRetries:   true,
		RequestIDGen: uuid.NewString,
	}
}

// NewSimpleLogger logs text lines at debug level to stderr.
func NewSimpleLogger() Logger {
	return NewWriterLogger(os.Stderr)
}

// NewWriterLogger logs text lines at debug level to w.
func NewWriterLogger(w io.Writer) Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// categoryLogger returns the client logger when debug logging is on for
// the given category, nil otherwise.
func (c *Client) categoryLogger(enabled func(*DebugConfig) bool) Logger {
	if c.logger == nil || c.debug == nil || !c.debug.Enabled || !enabled(c.debug) {
		return nil
	}
	return c.logger
}

// requestIDGen returns the id generator for the request_id stage.
func (d *DebugConfig) requestIDGen() func() string {
	if d == nil || d.RequestIDGen == nil {
		return uuid.NewString
	}
	return d.RequestIDGen
}
