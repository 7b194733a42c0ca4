package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/threatflux/depAuditGoMCP/internal/audit/runner"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// Scan outcomes reported to the ScanRecorder
const (
	OutcomeSuccess     = "success"
	OutcomeUnsupported = "unsupported"
	OutcomeFailed      = "failed"
)

// ScanRecorder receives one observation per audit
type ScanRecorder interface {
	ObserveScan(ecosystem, outcome string, duration time.Duration)
}

// Auditor detects a project's ecosystem, runs its audit tool and normalizes the result.
type Auditor struct {
	// registry selects the adapter for a project root
	registry *Registry

	// runners maps each ecosystem to its tool
	runners map[models.Ecosystem]runner.ToolRunner

	// scanLimiter limits the number of concurrent tool processes
	scanLimiter chan struct{}

	// scanTimeout bounds one tool run
	scanTimeout time.Duration

	recorder ScanRecorder
	logger   *logrus.Logger
}

// NewAuditor creates an auditor with the default adapters and no runners.
func NewAuditor(options ...func(*Auditor)) *Auditor {
	a := &Auditor{
		registry:    DefaultRegistry(),
		runners:     make(map[models.Ecosystem]runner.ToolRunner),
		scanLimiter: make(chan struct{}, 4),
		scanTimeout: 2 * time.Minute,
		logger:      logrus.New(),
	}

	for _, option := range options {
		option(a)
	}

	return a
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) func(*Auditor) {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// WithRegistry replaces the adapter registry
func WithRegistry(registry *Registry) func(*Auditor) {
	return func(a *Auditor) {
		a.registry = registry
	}
}

// WithRunner sets the tool runner for an ecosystem
func WithRunner(ecosystem models.Ecosystem, r runner.ToolRunner) func(*Auditor) {
	return func(a *Auditor) {
		a.runners[ecosystem] = r
	}
}

// WithMaxConcurrentScans sets the maximum number of concurrent tool runs
func WithMaxConcurrentScans(max int) func(*Auditor) {
	return func(a *Auditor) {
		if max > 0 {
			a.scanLimiter = make(chan struct{}, max)
		}
	}
}

// WithScanTimeout sets the per-run timeout
func WithScanTimeout(timeout time.Duration) func(*Auditor) {
	return func(a *Auditor) {
		if timeout > 0 {
			a.scanTimeout = timeout
		}
	}
}

// WithScanRecorder sets the metrics sink
func WithScanRecorder(recorder ScanRecorder) func(*Auditor) {
	return func(a *Auditor) {
		a.recorder = recorder
	}
}

// Ecosystems lists the ecosystems the auditor can detect
func (a *Auditor) Ecosystems() []models.Ecosystem {
	return a.registry.Ecosystems()
}

// Audit scans the project at root. A root with no recognizable manifest
// yields an empty summary; a recognized project whose tool fails yields a
// *ScannerExecutionError. A failed scan never returns a partial summary.
func (a *Auditor) Audit(ctx context.Context, root string) (*models.AuditSummary, error) {
	start := time.Now()

	adapter, err := a.registry.Detect(root)
	if err != nil {
		if errors.Is(err, ErrEcosystemUnsupported) {
			a.logger.WithField("root", root).Info("No supported dependency manifest found, returning empty audit")
			a.observe(models.EcosystemNone, OutcomeUnsupported, start)
			return models.EmptyAuditSummary(), nil
		}
		return nil, err
	}
	ecosystem := adapter.Ecosystem()

	tool, ok := a.runners[ecosystem]
	if !ok {
		a.observe(ecosystem, OutcomeFailed, start)
		return nil, &ScannerExecutionError{
			Ecosystem: ecosystem,
			Root:      root,
			Err:       fmt.Errorf("%w: %s", ErrNoRunner, ecosystem),
		}
	}

	// Limit concurrent scans
	select {
	case a.scanLimiter <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() {
		<-a.scanLimiter
	}()

	logger := a.logger.WithFields(logrus.Fields{
		"root":      root,
		"ecosystem": ecosystem,
		"tool":      tool.Name(),
	})
	logger.Info("Starting dependency audit")

	runCtx, cancel := context.WithTimeout(ctx, a.scanTimeout)
	defer cancel()

	raw, err := tool.Run(runCtx, root)
	if err != nil {
		logger.WithError(err).Warn("Audit tool failed")
		a.observe(ecosystem, OutcomeFailed, start)

		var attempts []string
		var runErr *runner.RunError
		if errors.As(err, &runErr) {
			attempts = runErr.Commands()
		}
		return nil, &ScannerExecutionError{
			Ecosystem:   ecosystem,
			Root:        root,
			Attempts:    attempts,
			Remediation: tool.Remediation(root),
			Err:         err,
		}
	}

	summary, err := adapter.Normalize(raw)
	if err != nil {
		logger.WithError(err).Warn("Audit output could not be normalized")
		a.observe(ecosystem, OutcomeFailed, start)
		return nil, &ScannerExecutionError{
			Ecosystem:   ecosystem,
			Root:        root,
			Attempts:    []string{tool.Name()},
			Remediation: tool.Remediation(root),
			Err:         err,
		}
	}

	logger.WithFields(logrus.Fields{
		"vulnerability_count": summary.TotalVulnerabilities,
		"critical_count":      summary.Counts.Critical,
		"high_count":          summary.Counts.High,
	}).Info("Completed dependency audit")
	a.observe(ecosystem, OutcomeSuccess, start)

	return summary, nil
}

func (a *Auditor) observe(ecosystem models.Ecosystem, outcome string, start time.Time) {
	if a.recorder == nil {
		return
	}
	label := string(ecosystem)
	if label == "" {
		label = "none"
	}
	a.recorder.ObserveScan(label, outcome, time.Since(start))
}
