// Package cerr defines the single error type every compiler stage returns.
// It mirrors CompilerError from the reference implementation: a message
// plus an optional source position, rendered as "file:line:col: message"
// followed by the offending line and a caret when a position is known.
package cerr

import (
	"fmt"

	"github.com/benjilks-fork/funcc/internal/token"
)

// CompileError is the one error type that crosses every stage boundary.
// Pos is nil for errors that have no single originating token (e.g. "no
// main function declared").
type CompileError struct {
	Pos     *token.Position
	Message string
}

func (e *CompileError) Error() string {
	if e.Pos == nil {
		return e.Message
	}
	if line := e.Pos.Show(); line != "" {
		return fmt.Sprintf("%s: %s\n%s", e.Pos, e.Message, line)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// NewCompileError builds a positional error, formatting Message like
// fmt.Sprintf.
func NewCompileError(pos *token.Position, format string, args ...any) *CompileError {
	return &CompileError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// NewCompileErrorNoPosition builds an error with no associated source
// location.
func NewCompileErrorNoPosition(format string, args ...any) *CompileError {
	return &CompileError{Message: fmt.Sprintf(format, args...)}
}
