package log

import "context"

// NewNop returns a logger that discards everything. Useful as a test default
// and as a nil-safe fallback in constructors.
func NewNop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, Level, string, ...Field) {}

func (n nopLogger) With(...Field) Logger { return n }

func (nopLogger) Enabled(Level) bool { return false }

func (nopLogger) Sync(context.Context) error { return nil }
