package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Output   []byte
}

// Runner executes host commands. A non-zero exit is reported in Result;
// the error is reserved for commands that could not be run at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	r.logger.Debug("executing", "cmd", cmd.String())

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return Result{Output: buf.Bytes()}, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		r.logger.Debug("command exited non-zero",
			"cmd", cmd.String(),
			"code", exitErr.ExitCode(),
			"output", buf.String(),
		)
		return Result{ExitCode: exitErr.ExitCode(), Output: buf.Bytes()}, nil
	default:
		r.logger.Error("command failed to run", "cmd", cmd.String(), "err", err, "output", buf.String())
		return Result{}, fmt.Errorf("run %s: %w", name, err)
	}
}
