package decision

import (
	"fmt"
	"sort"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// UpgradeSuggestions returns one upgrade per package, taken from the first
// finding that has a fix, ordered by descending severity.
func UpgradeSuggestions(summary *models.AuditSummary) []models.UpgradeSuggestion {
	suggestions := []models.UpgradeSuggestion{}
	emitted := make(map[string]struct{})

	for _, v := range summary.Vulnerabilities {
		if _, seen := emitted[v.Name]; seen {
			continue
		}
		target, ok := v.Fix.UpgradeTarget()
		if !ok {
			continue
		}

		emitted[v.Name] = struct{}{}
		suggestions = append(suggestions, models.UpgradeSuggestion{
			Name:          v.Name,
			CurrentRange:  v.Range,
			TargetVersion: target,
			Severity:      v.Severity,
			Command:       installCommand(summary.Ecosystem, v.Name, target),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Severity.Score() > suggestions[j].Severity.Score()
	})
	return suggestions
}

// installCommand renders the package manager command for one upgrade.
func installCommand(ecosystem models.Ecosystem, name, target string) string {
	switch ecosystem {
	case models.EcosystemPip:
		// pip has no "latest" version specifier; --upgrade resolves the newest release
		if target == "latest" {
			return fmt.Sprintf("pip install --upgrade %s", name)
		}
		return fmt.Sprintf("pip install %s==%s", name, target)
	default:
		return fmt.Sprintf("npm install %s@%s", name, target)
	}
}
