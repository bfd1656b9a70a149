package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultExecTimeout bounds every subprocess
const DefaultExecTimeout = 10 * time.Second

// Runner runs an external program and returns its output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs programs with os/exec under a hard timeout
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner creates a runner. A zero timeout uses DefaultExecTimeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

// Run executes name with args. Output is stdout, or stderr when stdout is
// empty. A timeout or a non-zero exit is an error carrying that output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return output, fmt.Errorf("%s timed out after %v", name, r.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if output == "" {
				return "", fmt.Errorf("%s exited with code %d", name, exitErr.ExitCode())
			}
			return output, fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), output)
		}
		return output, fmt.Errorf("execution error: %w", err)
	}
	return output, nil
}
