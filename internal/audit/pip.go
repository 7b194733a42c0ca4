package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// titleFallbackLength bounds the description prefix used when a finding has no id.
const titleFallbackLength = 80

// pipSeverityNames translates pip-audit severity names. Anything missing from
// this table is treated as high.
var pipSeverityNames = map[string]models.SeverityLevel{
	"critical":      models.SeverityCritical,
	"high":          models.SeverityHigh,
	"medium":        models.SeverityModerate,
	"moderate":      models.SeverityModerate,
	"low":           models.SeverityLow,
	"info":          models.SeverityInfo,
	"informational": models.SeverityInfo,
}

// pipListKeys are the object keys under which pip-audit may place the dependency list.
var pipListKeys = []string{"dependencies", "results"}

type pipDependency struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Vulns   []pipVuln `json:"vulns"`
}

type pipVuln struct {
	ID          string   `json:"id"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	FixVersions []string `json:"fix_versions"`
	Aliases     []string `json:"aliases"`
}

// PipAdapter normalizes pip-audit JSON reports.
//
// pip-audit provides no aggregate counts, so they are computed from the
// findings. Missing or unrecognized severities count as high, and every
// finding is marked direct because the tool reports no dependency paths.
type PipAdapter struct{}

// NewPipAdapter creates a new pip adapter
func NewPipAdapter() *PipAdapter {
	return &PipAdapter{}
}

// Ecosystem returns the pip ecosystem tag
func (a *PipAdapter) Ecosystem() models.Ecosystem {
	return models.EcosystemPip
}

// Detect looks for requirements.txt or pyproject.toml
func (a *PipAdapter) Detect(root string) bool {
	return hasAnyFile(root, "requirements.txt", "pyproject.toml")
}

// Normalize parses the raw pip-audit JSON
func (a *PipAdapter) Normalize(raw []byte) (*models.AuditSummary, error) {
	deps, err := decodePipDependencies(raw)
	if err != nil {
		return nil, err
	}

	var counts models.SeverityCounts
	vulns := []models.Vulnerability{}
	for _, dep := range deps {
		for _, finding := range dep.Vulns {
			severity := translatePipSeverity(finding.Severity)
			counts.Add(severity, 1)

			fix := models.FlagFix(false)
			if len(finding.FixVersions) > 0 {
				fix = models.VersionFix(finding.FixVersions[0])
			}

			vulns = append(vulns, models.Vulnerability{
				Name:        dep.Name,
				Severity:    severity,
				Title:       pipTitle(finding),
				AdvisoryID:  finding.ID,
				Range:       dep.Version,
				Fix:         fix,
				Via:         finding.Aliases,
				IsDirect:    models.BoolPtr(true),
				Description: firstLine(finding.Description),
			})
		}
	}

	return models.NewAuditSummary(models.EcosystemPip, counts, vulns), nil
}

// decodePipDependencies accepts a bare list or an object wrapping the list.
func decodePipDependencies(raw []byte) ([]pipDependency, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty pip-audit output", ErrMalformedReport)
	}

	if trimmed[0] == '[' {
		var deps []pipDependency
		if err := json.Unmarshal(trimmed, &deps); err != nil {
			return nil, fmt.Errorf("%w: pip-audit output: %v", ErrMalformedReport, err)
		}
		return deps, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: pip-audit output: %v", ErrMalformedReport, err)
	}

	for _, key := range pipListKeys {
		list, ok := wrapper[key]
		if !ok {
			continue
		}
		var deps []pipDependency
		if err := json.Unmarshal(list, &deps); err != nil {
			return nil, fmt.Errorf("%w: pip-audit %s: %v", ErrMalformedReport, key, err)
		}
		return deps, nil
	}

	return nil, fmt.Errorf("%w: pip-audit output has no dependency list", ErrMalformedReport)
}

func translatePipSeverity(raw string) models.SeverityLevel {
	if level, ok := pipSeverityNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return level
	}
	return models.SeverityHigh
}

func pipTitle(finding pipVuln) string {
	if finding.ID != "" {
		return finding.ID
	}
	return truncate(firstLine(finding.Description), titleFallbackLength)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
