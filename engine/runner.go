package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an engine binary and captures its output. It exists so
// tests can substitute a stub for the real subprocess.
type Runner interface {
	// Exec runs name with args in dir (empty dir means the current
	// directory) and returns captured stdout and stderr. A non-zero exit
	// is reported as a *Error.
	Exec(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// execRunner is the production Runner backed by os/exec.
type execRunner struct{}

func (execRunner) Exec(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), &Error{
				Binary:   name,
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return "", "", fmt.Errorf("run %s: %w", name, err)
	}
	return stdout.String(), stderr.String(), nil
}
