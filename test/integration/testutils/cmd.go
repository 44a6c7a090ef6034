package testutils

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// Result is the output of a clockin CLI invocation.
type Result struct {
	Stdout []byte
	Stderr []byte
	// ExitCode is -1 when the process could not be started.
	ExitCode int
}

// Runner runs the clockin binary with a fixed set of global flags and environment.
type Runner struct {
	Binary string
	// GlobalArgs go before the command, e.g. --backend fake.
	GlobalArgs []string
	// Env is added on top of the current process environment.
	Env []string
	// Quiet disables the CLI logger through CLOCKIN_NO_LOG.
	Quiet bool
}

// Run runs a command whose arguments are split by spaces.
// Use RunArgs when arguments contain spaces (e.g. --name "Review PRs").
func (r Runner) Run(ctx context.Context, cmdArgs string) (Result, error) {
	return r.RunArgs(ctx, strings.Fields(cmdArgs)...)
}

// RunArgs runs a command with pre-split arguments.
func (r Runner) RunArgs(ctx context.Context, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer

	all := append(append([]string{}, r.GlobalArgs...), args...)
	cmd := exec.CommandContext(ctx, r.Binary, all...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Later duplicated keys win on exec.Cmd, custom env overrides the process one.
	env := append([]string{}, os.Environ()...)
	env = append(env, r.Env...)
	if r.Quiet {
		env = append(env, "CLOCKIN_NO_LOG=true")
	}
	cmd.Env = env

	err := cmd.Run()

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: 0}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}

	return res, err
}
