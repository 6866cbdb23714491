// Package runner executes external programs (docker, mysql via docker exec,
// tar via helper containers) and reports their outcome as plain values.
//
// A Runner never returns an error. A program that exits non-zero is reported
// through Result.Code, and a program that cannot be started at all (for
// example, docker is not installed) is reported with ExitNotFound. Callers
// treat any non-zero code as "nothing produced".
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/compose-backup/internal/logging"
)

// ExitNotFound is the sentinel exit code for a program that could not be
// started. It matches the code a POSIX shell uses for "command not found".
const ExitNotFound = 127

// Result is the captured outcome of one program invocation.
type Result struct {
	// Code is the process exit code, or ExitNotFound if it never ran.
	Code int

	// Stdout holds the raw standard output. Dumps and archives are binary,
	// so it is kept as bytes.
	Stdout []byte

	// Stderr holds the raw standard error, or the start error message.
	Stderr []byte
}

// OK reports whether the program exited with code zero.
func (r Result) OK() bool {
	return r.Code == 0
}

// Runner runs a program to completion and captures its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// Exec is the os/exec backed Runner.
type Exec struct {
	log *logging.Logger
}

// NewExec creates an Exec runner. A nil logger disables debug tracing.
func NewExec(log *logging.Logger) *Exec {
	if log == nil {
		log = logging.NewNop()
	}
	return &Exec{log: log}
}

// Run executes name with args and blocks until it exits. There is no
// timeout: a hung program hangs the caller until ctx is cancelled.
func (e *Exec) Run(ctx context.Context, name string, args ...string) Result {
	e.log.Debug("exec %s", CommandLine(name, args...))

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Result{Code: 0, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		e.log.Debug("%s exited with code %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		return Result{Code: exitErr.ExitCode(), Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	}

	// The process never started (missing binary, permission denied) or was
	// killed by a signal. Both are reported as "not found".
	e.log.Debug("%s could not be run: %v", name, err)
	return Result{Code: ExitNotFound, Stderr: []byte(err.Error())}
}

// CommandLine renders an invocation for logs with inline MySQL passwords
// ("-psecret") masked.
func CommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if len(a) > 2 && strings.HasPrefix(a, "-p") {
			a = "-p****"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
