// Package errs defines the engine's error taxonomy (spec ERROR HANDLING
// DESIGN) as a single typed error carrying a Kind and the dependency stack
// active when it was raised, so every propagation site can prefix the
// user-facing message with "most-recent-first" stack context without each
// caller re-deriving it.
package errs

import (
	"fmt"
	"strings"

	"github.com/brisklabs/buildengine/pkg/key"
)

// Kind classifies an engine error for exit-code selection and reporting.
type Kind int

const (
	// UserError is a rule body's own application-level failure.
	UserError Kind = iota
	// Cycle is a detected dependency cycle.
	Cycle
	// MissingRule means no registered rule matched a requested key.
	MissingRule
	// LintViolation is a used-not-depended / depended-after-use /
	// wrote-outside-owned-key finding.
	LintViolation
	// BlockedApply means apply was called inside a blockApply scope.
	BlockedApply
	// DatabaseCorrupt means the persisted DB failed to decode.
	DatabaseCorrupt
	// Internal marks an invariant violation that should never happen.
	Internal
)

func (k Kind) String() string {
	switch k {
	case UserError:
		return "UserError"
	case Cycle:
		return "Cycle"
	case MissingRule:
		return "MissingRule"
	case LintViolation:
		return "LintViolation"
	case BlockedApply:
		return "BlockedApply"
	case DatabaseCorrupt:
		return "DatabaseCorrupt"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ExitCode maps a Kind to the process exit code the spec defines: 0
// success, 1 rule failure, 2 user error (bad options, cycle, lint
// failure).
func (k Kind) ExitCode() int {
	switch k {
	case UserError:
		return 1
	default:
		return 2
	}
}

// Error is the engine's uniform error type.
type Error struct {
	Kind    Kind
	Stack   []key.Key // most-recent-first
	Message string
	Cause   error
}

func New(kind Kind, stack []key.Key, format string, args ...any) *Error {
	return &Error{Kind: kind, Stack: reversed(stack), Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, stack []key.Key, cause error) *Error {
	return &Error{Kind: kind, Stack: reversed(stack), Message: cause.Error(), Cause: cause}
}

func reversed(stack []key.Key) []key.Key {
	out := make([]key.Key, len(stack))
	for i, k := range stack {
		out[len(stack)-1-i] = k
	}
	return out
}

func (e *Error) Error() string {
	if len(e.Stack) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	names := make([]string, len(e.Stack))
	for i, k := range e.Stack {
		names[i] = k.String()
	}
	return fmt.Sprintf("%s: %s (via %s)", e.Kind, e.Message, strings.Join(names, " <- "))
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CycleError builds a Cycle error from the stack up to and including the
// repeated key, as returned by utils.Cycle (oldest first). The message
// lists the cycle in that order; Stack holds it most-recent-first, like
// every other Error.
func CycleError(cycle []key.Key) *Error {
	names := make([]string, len(cycle))
	for i, k := range cycle {
		names[i] = k.String()
	}
	return &Error{Kind: Cycle, Stack: reversed(cycle), Message: fmt.Sprintf("dependency cycle: %s", strings.Join(names, " -> "))}
}
