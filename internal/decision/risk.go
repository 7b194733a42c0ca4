package decision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// RankBySeverity returns a copy of vulns ordered by descending severity
// score. Findings with equal scores keep their original relative order.
func RankBySeverity(vulns []models.Vulnerability) []models.Vulnerability {
	sorted := make([]models.Vulnerability, len(vulns))
	copy(sorted, vulns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Score() > sorted[j].Severity.Score()
	})
	return sorted
}

// HighestRisk picks the most severe finding. Highest is nil when there are no findings.
func HighestRisk(summary *models.AuditSummary) models.HighestRisk {
	sorted := RankBySeverity(summary.Vulnerabilities)
	if len(sorted) == 0 {
		return models.HighestRisk{
			Summary: "No known vulnerabilities found.",
			Sorted:  sorted,
		}
	}

	highest := sorted[0]
	return models.HighestRisk{
		Highest: &highest,
		Summary: describeHighest(highest),
		Sorted:  sorted,
	}
}

func describeHighest(v models.Vulnerability) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Highest risk: %s (%s)", v.Name, v.Severity)

	if detail := titleOrDescription(v); detail != "" {
		fmt.Fprintf(&sb, ": %s", detail)
	}
	sb.WriteString(".")

	if target, ok := v.Fix.UpgradeTarget(); ok {
		fmt.Fprintf(&sb, " Fix available: upgrade to %s.", target)
	}
	return sb.String()
}

func titleOrDescription(v models.Vulnerability) string {
	if v.Title != "" {
		return v.Title
	}
	return v.Description
}
