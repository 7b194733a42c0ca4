// Package decision derives release verdicts, rankings, summaries and upgrade
// plans from a normalized audit. Every function is pure.
package decision

import (
	"fmt"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// ShipReadiness decides whether the audited project can be released. The
// verdict depends only on critical and high counts.
func ShipReadiness(summary *models.AuditSummary) models.ShipReadiness {
	counts := summary.Counts
	result := models.ShipReadiness{
		SafeToShip: !summary.HasCriticalOrHigh,
		Critical:   counts.Critical,
		High:       counts.High,
		Moderate:   counts.Moderate,
		Low:        counts.Low,
	}

	switch {
	case summary.HasCriticalOrHigh:
		result.Reason = fmt.Sprintf("Not safe to ship: found %d critical and %d high severity vulnerabilities.",
			counts.Critical, counts.High)
		result.Recommendation = "Apply the suggested upgrades, then re-run the ship readiness check."
	case summary.TotalVulnerabilities == 0:
		result.Reason = "Safe to ship: no known vulnerabilities found."
		result.Recommendation = "Keep scanning regularly; new advisories are published all the time."
	default:
		result.Reason = fmt.Sprintf("Safe to ship: no critical or high severity vulnerabilities, but found %d moderate and %d low severity issues.",
			counts.Moderate, counts.Low)
		result.Recommendation = "Run the upgrade suggestions to clear the remaining issues."
	}

	return result
}
