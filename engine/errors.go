package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInstalled is returned by Detect when no candidate engine binary
// responds to its version command.
var ErrNotInstalled = errors.New("no container engine found (need docker, podman, or nerdctl)")

// Error is a failed engine invocation: the subprocess ran but exited
// non-zero. Stderr carries the engine's own diagnostic.
type Error struct {
	Binary   string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: exit %d", e.Binary, strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ParseError is returned when engine output does not have the expected
// shape. Output holds the raw text for diagnostics.
type ParseError struct {
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected engine output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
