package binary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultRunTimeout bounds a subprocess when the runner has no timeout set.
const DefaultRunTimeout = 2 * time.Minute

// Output is what a finished subprocess wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes a command and returns its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExitError records a subprocess that exited non-zero.
// Use [errors.As] to read the exit code and stderr.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

// Error returns a human-readable description of the failure.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// ExecRunner runs real processes. Cancelling ctx or exceeding Timeout kills
// the child.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes name with args. A timeout is reported as an error wrapping
// context.DeadlineExceeded, a non-zero exit as *ExitError.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(timeoutCtx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}

	if ctxErr := timeoutCtx.Err(); ctxErr != nil {
		return out, fmt.Errorf("command %q: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{Command: name, Code: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	return out, fmt.Errorf("command %q failed: %w", name, err)
}
