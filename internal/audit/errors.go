package audit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// Common errors
var (
	// ErrEcosystemUnsupported indicates no registered adapter recognized the project
	ErrEcosystemUnsupported = errors.New("no supported dependency manifest found")

	// ErrMalformedReport indicates the scanner output could not be parsed
	ErrMalformedReport = errors.New("malformed scanner report")

	// ErrScannerReported indicates the scanner produced an error document instead of a report
	ErrScannerReported = errors.New("scanner reported an error")

	// ErrNoRunner indicates no tool runner is configured for a detected ecosystem
	ErrNoRunner = errors.New("no scanner configured for ecosystem")
)

// ScannerExecutionError is returned when a project was recognized but its
// audit tool could not produce a usable report.
type ScannerExecutionError struct {
	Ecosystem   models.Ecosystem
	Root        string
	Attempts    []string
	Remediation string
	Err         error
}

// Error implements the error interface.
func (e *ScannerExecutionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s audit failed for %s", e.Ecosystem, e.Root)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if len(e.Attempts) > 0 {
		fmt.Fprintf(&sb, " (tried: %s)", strings.Join(e.Attempts, "; "))
	}
	if e.Remediation != "" {
		fmt.Fprintf(&sb, ". %s", e.Remediation)
	}
	return sb.String()
}

// Unwrap returns the underlying cause
func (e *ScannerExecutionError) Unwrap() error {
	return e.Err
}
