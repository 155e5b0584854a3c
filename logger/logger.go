package logger

// Logger is the structured logging interface used throughout the engine.
// Implementations accept alternating key/value pairs.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// Default returns the logger used when none is configured.
func Default() Logger { return NewNullLogger() }
