// Package assert evaluates invariants that must never fail in production and
// logs loudly when they do. Assertion failures signal a programming error or
// corrupted state, not a user mistake: callers should halt the operation.
package assert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

// ErrAssertionFailed is the sentinel error for failed assertions.
var ErrAssertionFailed = errors.New("assertion failed")

// AssertionError represents a failed assertion with its location context.
type AssertionError struct {
	Message   string
	Component string
	Operation string
	Details   string
}

// Error returns the formatted assertion failure message.
func (e *AssertionError) Error() string {
	if e.Details == "" {
		return "assertion failed: " + e.Message
	}

	return "assertion failed: " + e.Message + " (" + e.Details + ")"
}

// Unwrap returns the sentinel assertion error for errors.Is.
func (e *AssertionError) Unwrap() error {
	return ErrAssertionFailed
}

// Asserter evaluates invariants and logs failures with component labels.
type Asserter struct {
	logger    log.Logger
	component string
	operation string
}

// New creates an Asserter. A nil logger falls back to the nop logger.
func New(logger log.Logger, component, operation string) *Asserter {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Asserter{logger: logger, component: component, operation: operation}
}

// That returns an error if ok is false. kv pairs are attached as details.
func (a *Asserter) That(ctx context.Context, ok bool, msg string, kv ...any) error {
	if ok {
		return nil
	}

	return a.fail(ctx, msg, kv...)
}

// NotEmpty returns an error if s is an empty string.
func (a *Asserter) NotEmpty(ctx context.Context, s, msg string, kv ...any) error {
	if s != "" {
		return nil
	}

	return a.fail(ctx, msg, kv...)
}

// NoError returns an error if err is not nil.
func (a *Asserter) NoError(ctx context.Context, err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}

	return a.fail(ctx, msg, append(kv, "error", err.Error())...)
}

func (a *Asserter) fail(ctx context.Context, msg string, kv ...any) error {
	details := formatKV(kv)

	a.logger.Log(ctx, log.LevelError, "invariant violated: "+msg,
		log.String("component", a.component),
		log.String("operation", a.operation),
		log.String("details", details),
	)

	return &AssertionError{
		Message:   msg,
		Component: a.component,
		Operation: a.operation,
		Details:   details,
	}
}

func formatKV(kv []any) string {
	if len(kv) == 0 {
		return ""
	}

	var b strings.Builder

	for i := 0; i+1 < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "%v=%v", kv[i], kv[i+1])
	}

	return b.String()
}
