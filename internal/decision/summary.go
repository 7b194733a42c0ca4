package decision

import (
	"fmt"
	"strings"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// maxLinesPerSeverity caps the findings rendered for one severity group
const maxLinesPerSeverity = 10

// Summarize renders the findings grouped by severity, most severe first.
func Summarize(summary *models.AuditSummary) models.VulnerabilityReport {
	report := models.VulnerabilityReport{
		Counts:               summary.Counts,
		TotalVulnerabilities: summary.TotalVulnerabilities,
	}

	if len(summary.Vulnerabilities) == 0 {
		report.Summary = "No known vulnerabilities found."
		return report
	}

	groups := make(map[models.SeverityLevel][]models.Vulnerability)
	for _, v := range summary.Vulnerabilities {
		groups[v.Severity] = append(groups[v.Severity], v)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d vulnerable %s.", summary.TotalVulnerabilities, plural(summary.TotalVulnerabilities, "dependency", "dependencies")))

	for _, level := range models.SeverityOrder {
		group := groups[level]
		if len(group) == 0 {
			continue
		}

		lines = append(lines, "", fmt.Sprintf("%s (%d):", strings.ToUpper(string(level)), len(group)))
		for i, v := range group {
			if i == maxLinesPerSeverity {
				lines = append(lines, fmt.Sprintf("  +%d more", len(group)-maxLinesPerSeverity))
				break
			}
			lines = append(lines, "  - "+describeFinding(v))
		}
	}

	lines = append(lines, "", "Run the upgrade suggestions to get ready-to-run fix commands.")
	report.Summary = strings.Join(lines, "\n")
	return report
}

func describeFinding(v models.Vulnerability) string {
	var sb strings.Builder
	if v.Direct() {
		fmt.Fprintf(&sb, "%s (direct dependency)", v.Name)
	} else {
		fmt.Fprintf(&sb, "%s (pulled in transitively)", v.Name)
	}

	if detail := titleOrDescription(v); detail != "" {
		fmt.Fprintf(&sb, ": %s", detail)
	}

	switch v.Fix.Kind {
	case models.FixVersion:
		fmt.Fprintf(&sb, " [fix: upgrade to %s]", v.Fix.Version)
	case models.FixFlag:
		if v.Fix.Available {
			sb.WriteString(" [fix available]")
		}
	case models.FixNone:
	}
	return sb.String()
}

func plural(n int, singular, many string) string {
	if n == 1 {
		return singular
	}
	return many
}
