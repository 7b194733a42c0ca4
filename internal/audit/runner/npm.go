package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// NpmAuditRunner runs 'npm audit --json'
type NpmAuditRunner struct {
	binary string
	exec   commandFunc
	logger *logrus.Logger
}

// NewNpmAuditRunner creates a runner for the given npm binary ("npm" when empty)
func NewNpmAuditRunner(binary string, logger *logrus.Logger) *NpmAuditRunner {
	if binary == "" {
		binary = "npm"
	}
	return &NpmAuditRunner{
		binary: binary,
		exec:   runCommand,
		logger: defaultLogger(logger),
	}
}

// Name returns the display name for this runner.
func (r *NpmAuditRunner) Name() string { return "npm audit" }

// Run executes 'npm audit --json' in root.
func (r *NpmAuditRunner) Run(ctx context.Context, root string) ([]byte, error) {
	args := []string{"audit", "--json"}
	line := commandLine(r.binary, args...)

	path, err := lookupTool(r.binary)
	if err != nil {
		return nil, &RunError{Tool: r.Name(), Attempts: []Attempt{{Command: line, Err: fmt.Errorf("%w: %s", ErrToolNotFound, r.binary)}}}
	}

	r.logger.WithFields(logrus.Fields{
		"tool": r.Name(),
		"root": root,
	}).Debug("Running npm audit")

	output, err := r.exec(ctx, root, path, args...)
	if err != nil {
		return nil, &RunError{Tool: r.Name(), Attempts: []Attempt{{Command: line, Err: err}}}
	}
	return output, nil
}

// Remediation explains how to run the audit manually
func (r *NpmAuditRunner) Remediation(root string) string {
	return fmt.Sprintf("Install Node.js and npm, make sure %s contains package-lock.json "+
		"(run 'npm install --package-lock-only'), then run 'npm audit --json' in %s to check manually", root, root)
}

// NpmLockfileGenerator creates package-lock.json without installing packages.
type NpmLockfileGenerator struct {
	binary string
	exec   commandFunc
	logger *logrus.Logger
}

// NewNpmLockfileGenerator creates a lockfile generator for the given npm binary
func NewNpmLockfileGenerator(binary string, logger *logrus.Logger) *NpmLockfileGenerator {
	if binary == "" {
		binary = "npm"
	}
	return &NpmLockfileGenerator{
		binary: binary,
		exec:   runCommand,
		logger: defaultLogger(logger),
	}
}

// Generate runs 'npm install --package-lock-only' in dir.
func (g *NpmLockfileGenerator) Generate(ctx context.Context, dir string) error {
	args := []string{"install", "--package-lock-only", "--ignore-scripts", "--no-audit", "--no-fund"}

	path, err := lookupTool(g.binary)
	if err != nil {
		return fmt.Errorf("%w: %s is required to generate package-lock.json", ErrToolNotFound, g.binary)
	}

	g.logger.WithField("dir", dir).Debug("Generating package-lock.json")

	if _, err := g.exec(ctx, dir, path, args...); err != nil && !errors.Is(err, ErrEmptyOutput) {
		return fmt.Errorf("failed to generate package-lock.json: %w", err)
	}
	return nil
}
