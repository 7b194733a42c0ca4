// Package runner invokes external dependency audit tools and returns their raw output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Common errors
var (
	// ErrToolNotFound indicates the tool binary is not on PATH
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyOutput indicates the tool exited without writing a report
	ErrEmptyOutput = errors.New("tool produced no output")

	// ErrInvalidOutput indicates the tool wrote something other than a JSON report
	ErrInvalidOutput = errors.New("tool output is not JSON")
)

// lookupTool resolves the path to an external tool binary.
var lookupTool = exec.LookPath

// ToolRunner runs one ecosystem's audit tool against a project root.
type ToolRunner interface {
	// Name returns the display name of the tool
	Name() string

	// Run executes the tool in root and returns its raw JSON report
	Run(ctx context.Context, root string) ([]byte, error)

	// Remediation describes how to make the tool available or run it by hand
	Remediation(root string) string
}

// commandFunc executes name with args in dir and returns stdout.
type commandFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Attempt records one invocation form tried by a runner.
type Attempt struct {
	Command string
	Err     error
}

// RunError is returned when every invocation form of a tool failed.
type RunError struct {
	Tool     string
	Attempts []Attempt
}

// Error implements the error interface.
func (e *RunError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Command, a.Err))
	}
	return fmt.Sprintf("%s failed: %s", e.Tool, strings.Join(parts, "; "))
}

// Commands lists the attempted command lines
func (e *RunError) Commands() []string {
	commands := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		commands = append(commands, a.Command)
	}
	return commands
}

// Unwrap exposes the last attempt's error
func (e *RunError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// runCommand executes a command in dir. Audit tools exit non-zero when they
// find vulnerabilities, so a failed exit that still wrote to stdout counts as
// success and the caller decides whether the output is usable.
func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("command timed out or was cancelled: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(bytes.TrimSpace(output)) > 0 {
			return output, nil
		}
		return nil, fmt.Errorf("command failed: %w\nStderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	if len(bytes.TrimSpace(output)) == 0 {
		return nil, ErrEmptyOutput
	}
	return output, nil
}

// outputPreview returns the start of output for error messages
func outputPreview(output []byte) string {
	const limit = 120
	text := strings.TrimSpace(string(output))
	if len(text) > limit {
		text = text[:limit] + "..."
	}
	return text
}

func commandLine(name string, args ...string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func defaultLogger(logger *logrus.Logger) *logrus.Logger {
	if logger == nil {
		return logrus.New()
	}
	return logger
}
