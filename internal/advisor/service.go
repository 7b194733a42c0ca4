// Package advisor answers dependency vulnerability questions about a target:
// it resolves the target, audits it, and derives the requested view.
package advisor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/threatflux/depAuditGoMCP/internal/decision"
	"github.com/threatflux/depAuditGoMCP/internal/models"
	"github.com/threatflux/depAuditGoMCP/internal/target"
	"github.com/threatflux/depAuditGoMCP/internal/utils"
)

// Auditor scans a resolved project directory
type Auditor interface {
	Audit(ctx context.Context, root string) (*models.AuditSummary, error)
}

// HistoryStore records scans and compares them with their predecessor
type HistoryStore interface {
	Compare(key string, current *models.AuditSummary, meta models.ScanMeta) (*models.CompareScansResult, error)
}

// Service implements every advisor operation
type Service struct {
	resolver target.Resolver
	auditor  Auditor
	history  HistoryStore
	logger   *logrus.Logger
}

// NewService creates a service from its collaborators
func NewService(resolver target.Resolver, auditor Auditor, history HistoryStore, options ...func(*Service)) *Service {
	s := &Service{
		resolver: resolver,
		auditor:  auditor,
		history:  history,
		logger:   logrus.New(),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) func(*Service) {
	return func(s *Service) {
		s.logger = logger
	}
}

// scan is one audited target
type scan struct {
	key     string
	meta    models.ScanMeta
	summary *models.AuditSummary
}

// run validates req, materializes the target and audits it. The target is
// released before run returns.
func (s *Service) run(ctx context.Context, req models.ProjectRequest) (*scan, error) {
	req.Normalize()
	if err := utils.ValidateStruct(req).Err(); err != nil {
		return nil, err
	}

	project, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := project.Release(); err != nil {
			s.logger.WithError(err).WithField("target", project.Key).Warn("Failed to release target")
		}
	}()

	summary, err := s.auditor.Audit(ctx, project.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "auditing %s", project.Key)
	}

	s.logger.WithFields(logrus.Fields{
		"target":              project.Key,
		"ecosystem":           summary.Ecosystem,
		"vulnerability_count": summary.TotalVulnerabilities,
	}).Debug("Audited target")

	return &scan{
		key:     project.Key,
		meta:    project.Meta(summary.Ecosystem),
		summary: summary,
	}, nil
}

// Audit returns the normalized audit summary of the target
func (s *Service) Audit(ctx context.Context, req models.ProjectRequest) (*models.AuditSummary, error) {
	sc, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return sc.summary, nil
}

// ShipReadiness decides whether the target is safe to ship
func (s *Service) ShipReadiness(ctx context.Context, req models.ProjectRequest) (*models.ShipReadiness, error) {
	sc, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}
	readiness := decision.ShipReadiness(sc.summary)
	return &readiness, nil
}

// HighestRisk ranks the target's findings by severity
func (s *Service) HighestRisk(ctx context.Context, req models.ProjectRequest) (*models.HighestRisk, error) {
	sc, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}
	risk := decision.HighestRisk(sc.summary)
	return &risk, nil
}

// Summary renders a human-readable vulnerability report
func (s *Service) Summary(ctx context.Context, req models.ProjectRequest) (*models.VulnerabilityReport, error) {
	sc, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}
	report := decision.Summarize(sc.summary)
	return &report, nil
}

// UpgradeSuggestions lists one ready-to-run fix per vulnerable package
func (s *Service) UpgradeSuggestions(ctx context.Context, req models.ProjectRequest) ([]models.UpgradeSuggestion, error) {
	sc, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return decision.UpgradeSuggestions(sc.summary), nil
}

// Compare audits the target, records the scan and diffs it against the
// previous scan of the same target.
func (s *Service) Compare(ctx context.Context, req models.ProjectRequest) (*models.CompareScansResult, error) {
	sc, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.history.Compare(sc.key, sc.summary, sc.meta)
	if err != nil {
		return nil, errors.Wrapf(err, "recording scan of %s", sc.key)
	}
	return result, nil
}
