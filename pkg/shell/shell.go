// Package shell runs the external programs a recipe lifecycle drives (git,
// cmake) behind a small interface so tests can substitute a recorder.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Output   []byte // combined stdout and stderr, verbatim
}

// ExitError is returned when a process exits non-zero.
type ExitError struct {
	Command  Command
	ExitCode int
	Output   []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

// Executor runs commands. Implementations must honor ctx cancellation by
// terminating the process.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Exec runs commands with os/exec.
type Exec struct {
	// Stream, when set, receives output as it is produced in addition to
	// being captured in Result.Output.
	Stream io.Writer
	Logger *log.Logger
}

// NewExec returns an Exec that logs each invocation at debug level.
func NewExec(logger *log.Logger) *Exec {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Exec{Logger: logger}
}

// Run starts cmd and waits for it. A non-zero exit yields an *ExitError that
// carries the captured output. Cancellation of ctx kills the process and the
// returned error wraps ctx.Err().
func (e *Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	if e.Logger != nil {
		e.Logger.Debug("exec", "cmd", cmd.String(), "dir", cmd.Dir)
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	if e.Stream != nil {
		w = io.MultiWriter(&buf, e.Stream)
	}
	sw := &syncWriter{w: w}
	c.Stdout = sw
	c.Stderr = sw

	err := c.Run()
	res := Result{Output: buf.Bytes()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", cmd, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Command: cmd, ExitCode: res.ExitCode, Output: res.Output}
	}
	res.ExitCode = -1
	return res, fmt.Errorf("%s: %w", cmd, err)
}

// LookPath reports whether the named program is on PATH.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// syncWriter serializes writes from the stdout and stderr copiers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
