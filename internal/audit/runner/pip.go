package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// PipAuditRunner runs pip-audit, first as a standalone binary and then as a
// Python module when the binary is missing, fails, or prints something that
// is not a JSON report.
type PipAuditRunner struct {
	binary string
	python string
	exec   commandFunc
	logger *logrus.Logger
}

// NewPipAuditRunner creates a runner. Empty names default to "pip-audit" and "python3".
func NewPipAuditRunner(binary, python string, logger *logrus.Logger) *PipAuditRunner {
	if binary == "" {
		binary = "pip-audit"
	}
	if python == "" {
		python = "python3"
	}
	return &PipAuditRunner{
		binary: binary,
		python: python,
		exec:   runCommand,
		logger: defaultLogger(logger),
	}
}

// Name returns the display name for this runner.
func (r *PipAuditRunner) Name() string { return "pip-audit" }

// Run tries each invocation form in turn and returns the first JSON report.
func (r *PipAuditRunner) Run(ctx context.Context, root string) ([]byte, error) {
	target := auditTargetArgs(root)
	forms := [][]string{
		append([]string{r.binary, "-f", "json", "--progress-spinner", "off"}, target...),
		append([]string{r.python, "-m", "pip_audit", "-f", "json", "--progress-spinner", "off"}, target...),
	}

	runErr := &RunError{Tool: r.Name()}
	for _, form := range forms {
		line := commandLine(form[0], form[1:]...)

		path, err := lookupTool(form[0])
		if err != nil {
			runErr.Attempts = append(runErr.Attempts, Attempt{Command: line, Err: fmt.Errorf("%w: %s", ErrToolNotFound, form[0])})
			continue
		}

		r.logger.WithFields(logrus.Fields{
			"tool":    r.Name(),
			"root":    root,
			"command": line,
		}).Debug("Running pip-audit")

		output, err := r.exec(ctx, root, path, form[1:]...)
		if err != nil {
			runErr.Attempts = append(runErr.Attempts, Attempt{Command: line, Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !json.Valid(output) {
			r.logger.WithFields(logrus.Fields{
				"tool":    r.Name(),
				"command": line,
			}).Debug("pip-audit output is not JSON")
			runErr.Attempts = append(runErr.Attempts, Attempt{Command: line, Err: fmt.Errorf("%w: %s", ErrInvalidOutput, outputPreview(output))})
			continue
		}
		return output, nil
	}

	return nil, runErr
}

// Remediation explains how to install pip-audit and run it manually
func (r *PipAuditRunner) Remediation(root string) string {
	return fmt.Sprintf("Install pip-audit ('pip install pip-audit') and run '%s' in %s to check manually",
		commandLine("pip-audit", append([]string{"-f", "json"}, auditTargetArgs(root)...)...), root)
}

// auditTargetArgs prefers requirements.txt and falls back to auditing the project directory.
func auditTargetArgs(root string) []string {
	if info, err := os.Stat(filepath.Join(root, "requirements.txt")); err == nil && info.Mode().IsRegular() {
		return []string{"-r", "requirements.txt"}
	}
	return []string{"."}
}
