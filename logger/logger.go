// Package logger provides a small structured-logging interface used
// throughout quorumlock, with a standard-library-backed implementation
// and a no-op implementation for tests and benchmarks.
package logger

// Logger defines a structured, leveled logging interface.
//
// All logging methods accept a message and a variadic list of key-value
// pairs. Keys must be strings and must alternate with values in the form
// key1, val1, key2, val2, ....
type Logger interface {
	// Debugw logs a debug-level message with optional structured context.
	Debugw(msg string, keysAndValues ...any)

	// Infow logs an info-level message with optional structured context.
	Infow(msg string, keysAndValues ...any)

	// Warnw logs a warning-level message with optional structured context.
	Warnw(msg string, keysAndValues ...any)

	// Errorw logs an error-level message with optional structured context.
	Errorw(msg string, keysAndValues ...any)

	// Fatalw logs a fatal-level message with optional structured context
	// and then terminates the application.
	Fatalw(msg string, keysAndValues ...any)

	// With returns a new Logger with the given key-value pairs added to
	// its persistent context.
	With(keysAndValues ...any) Logger

	// WithComponent returns a new Logger tagged with a component label
	// (e.g. "lock", "host", "server").
	WithComponent(name string) Logger
}
