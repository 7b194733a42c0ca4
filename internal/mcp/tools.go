package mcp

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// Tool names
const (
	ToolAuditDependencies        = "audit_dependencies"
	ToolCheckShipReadiness       = "check_ship_readiness"
	ToolGetHighestRisk           = "get_highest_risk"
	ToolSummarizeVulnerabilities = "summarize_vulnerabilities"
	ToolSuggestUpgrades          = "suggest_upgrades"
	ToolCompareScans             = "compare_scans"
)

// Tool describes one callable tool as listed by tools/list
type Tool = sdk.Tool

// Advisor is the set of operations exposed as tools
type Advisor interface {
	Audit(ctx context.Context, req models.ProjectRequest) (*models.AuditSummary, error)
	ShipReadiness(ctx context.Context, req models.ProjectRequest) (*models.ShipReadiness, error)
	HighestRisk(ctx context.Context, req models.ProjectRequest) (*models.HighestRisk, error)
	Summary(ctx context.Context, req models.ProjectRequest) (*models.VulnerabilityReport, error)
	UpgradeSuggestions(ctx context.Context, req models.ProjectRequest) ([]models.UpgradeSuggestion, error)
	Compare(ctx context.Context, req models.ProjectRequest) (*models.CompareScansResult, error)
}

// toolFunc runs one tool and returns its text line and structured value
type toolFunc func(ctx context.Context, advisor Advisor, req models.ProjectRequest) (string, interface{}, error)

type toolEntry struct {
	tool Tool
	run  toolFunc
}

// UpgradeList wraps upgrade suggestions so structured content is an object
type UpgradeList struct {
	Suggestions []models.UpgradeSuggestion `json:"suggestions"`
}

func projectSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Local project directory. Relative paths resolve against the server's working directory. Defaults to the working directory.",
			},
			"repo": map[string]interface{}{
				"type":        "string",
				"description": "GitHub repository as owner/repo or a github.com URL. Takes precedence over path.",
			},
			"ref": map[string]interface{}{
				"type":        "string",
				"description": "Branch, tag or commit of the repository. Defaults to the default branch.",
			},
			"subpath": map[string]interface{}{
				"type":        "string",
				"description": "Directory inside the project that holds the dependency manifests.",
			},
		},
		"additionalProperties": false,
	}
}

func defaultTools() []toolEntry {
	return []toolEntry{
		{
			tool: Tool{
				Name:        ToolAuditDependencies,
				Title:       "Audit dependencies",
				Description: "Run npm audit or pip-audit on a project and return every known vulnerability with severity counts.",
			},
			run: func(ctx context.Context, a Advisor, req models.ProjectRequest) (string, interface{}, error) {
				summary, err := a.Audit(ctx, req)
				if err != nil {
					return "", nil, err
				}
				return describeAudit(summary), summary, nil
			},
		},
		{
			tool: Tool{
				Name:        ToolCheckShipReadiness,
				Title:       "Check ship readiness",
				Description: "Decide whether a project is safe to ship. Any critical or high severity vulnerability blocks a release.",
			},
			run: func(ctx context.Context, a Advisor, req models.ProjectRequest) (string, interface{}, error) {
				readiness, err := a.ShipReadiness(ctx, req)
				if err != nil {
					return "", nil, err
				}
				text := readiness.Reason
				if readiness.Recommendation != "" {
					text += " " + readiness.Recommendation
				}
				return text, readiness, nil
			},
		},
		{
			tool: Tool{
				Name:        ToolGetHighestRisk,
				Title:       "Get highest risk",
				Description: "Return the most severe vulnerable dependency and every finding ranked by severity.",
			},
			run: func(ctx context.Context, a Advisor, req models.ProjectRequest) (string, interface{}, error) {
				risk, err := a.HighestRisk(ctx, req)
				if err != nil {
					return "", nil, err
				}
				return risk.Summary, risk, nil
			},
		},
		{
			tool: Tool{
				Name:        ToolSummarizeVulnerabilities,
				Title:       "Summarize vulnerabilities",
				Description: "Explain a project's vulnerabilities in plain language, grouped by severity.",
			},
			run: func(ctx context.Context, a Advisor, req models.ProjectRequest) (string, interface{}, error) {
				report, err := a.Summary(ctx, req)
				if err != nil {
					return "", nil, err
				}
				return report.Summary, report, nil
			},
		},
		{
			tool: Tool{
				Name:        ToolSuggestUpgrades,
				Title:       "Suggest upgrades",
				Description: "List one ready-to-run upgrade command per vulnerable package, most severe first.",
			},
			run: func(ctx context.Context, a Advisor, req models.ProjectRequest) (string, interface{}, error) {
				suggestions, err := a.UpgradeSuggestions(ctx, req)
				if err != nil {
					return "", nil, err
				}
				return describeUpgrades(suggestions), UpgradeList{Suggestions: suggestions}, nil
			},
		},
		{
			tool: Tool{
				Name:        ToolCompareScans,
				Title:       "Compare scans",
				Description: "Scan a project, store the result, and report which vulnerabilities were fixed or introduced since the previous scan of the same target.",
			},
			run: func(ctx context.Context, a Advisor, req models.ProjectRequest) (string, interface{}, error) {
				result, err := a.Compare(ctx, req)
				if err != nil {
					return "", nil, err
				}
				return result.Summary, result, nil
			},
		},
	}
}

func describeAudit(summary *models.AuditSummary) string {
	if summary.Ecosystem == models.EcosystemNone {
		return "No package.json, requirements.txt or pyproject.toml found; nothing to audit."
	}
	if summary.TotalVulnerabilities == 0 {
		return fmt.Sprintf("No known vulnerabilities in %s dependencies.", summary.Ecosystem)
	}
	c := summary.Counts
	return fmt.Sprintf("Found %d vulnerabilities in %s dependencies (%d critical, %d high, %d moderate, %d low, %d info).",
		summary.TotalVulnerabilities, summary.Ecosystem, c.Critical, c.High, c.Moderate, c.Low, c.Info)
}

func describeUpgrades(suggestions []models.UpgradeSuggestion) string {
	if len(suggestions) == 0 {
		return "No upgrades available: no vulnerable package has a known fix."
	}
	lines := make([]string, 0, len(suggestions)+1)
	lines = append(lines, fmt.Sprintf("%d upgrade(s) available:", len(suggestions)))
	for _, s := range suggestions {
		lines = append(lines, fmt.Sprintf("  %s  # %s", s.Command, s.Severity))
	}
	return strings.Join(lines, "\n")
}
