package core

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultStepTimeout bounds a step that declares no timeoutMinutes.
const DefaultStepTimeout = 5 * time.Minute

// Executor runs inline shell steps.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// ExecResult is what came back from one shell invocation.
type ExecResult struct {
	Output   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// RunShell executes a command in a shell (sh -c "cmd") with the given
// working directory and environment, capturing combined output. A non-zero
// exit is reported through ExitCode and the returned error.
func (e *Executor) RunShell(ctx context.Context, command, dir string, env []string, timeout time.Duration) (*ExecResult, error) {
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = env

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := &ExecResult{
		Output:   out.String(),
		Duration: time.Since(start),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else if err != nil {
		res.ExitCode = -1
	}
	return res, err
}
