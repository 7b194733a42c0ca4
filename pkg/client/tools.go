package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/threatflux/depAuditGoMCP/internal/mcp"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// Health describes a running server
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Tools   int    `json:"tools"`
}

// ToolResponse is the result of one tool call. Result holds the tool's
// structured value undecoded.
type ToolResponse struct {
	Tool   string          `json:"tool"`
	Text   string          `json:"text"`
	Result json.RawMessage `json:"result"`
}

// Health checks the API health
func (c *APIClient) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.doRequest(ctx, http.MethodGet, APIPathHealth, nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ListTools returns the tools the server offers
func (c *APIClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var body struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := c.doRequest(ctx, http.MethodGet, APIPathTools, nil, &body); err != nil {
		return nil, err
	}
	return body.Tools, nil
}

// CallTool runs a tool by name
func (c *APIClient) CallTool(ctx context.Context, name string, req models.ProjectRequest) (*ToolResponse, error) {
	var resp ToolResponse
	if err := c.doRequest(ctx, http.MethodPost, APIPathTools+"/"+url.PathEscape(name), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Invoke runs a tool and returns its text line and raw structured result
func (c *APIClient) Invoke(ctx context.Context, name string, req models.ProjectRequest) (string, interface{}, error) {
	resp, err := c.CallTool(ctx, name, req)
	if err != nil {
		return "", nil, err
	}
	return resp.Text, resp.Result, nil
}

func callTyped(ctx context.Context, c *APIClient, name string, req models.ProjectRequest, out interface{}) error {
	resp, err := c.CallTool(ctx, name, req)
	if err != nil {
		return err
	}
	return json.Unmarshal(resp.Result, out)
}

// Audit returns the normalized audit summary of a project
func (c *APIClient) Audit(ctx context.Context, req models.ProjectRequest) (*models.AuditSummary, error) {
	var summary models.AuditSummary
	if err := callTyped(ctx, c, mcp.ToolAuditDependencies, req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ShipReadiness reports whether a project is free of blocking vulnerabilities
func (c *APIClient) ShipReadiness(ctx context.Context, req models.ProjectRequest) (*models.ShipReadiness, error) {
	var readiness models.ShipReadiness
	if err := callTyped(ctx, c, mcp.ToolCheckShipReadiness, req, &readiness); err != nil {
		return nil, err
	}
	return &readiness, nil
}

// HighestRisk returns the most severe finding of a project
func (c *APIClient) HighestRisk(ctx context.Context, req models.ProjectRequest) (*models.HighestRisk, error) {
	var risk models.HighestRisk
	if err := callTyped(ctx, c, mcp.ToolGetHighestRisk, req, &risk); err != nil {
		return nil, err
	}
	return &risk, nil
}

// Summary returns the plain-language vulnerability report
func (c *APIClient) Summary(ctx context.Context, req models.ProjectRequest) (*models.VulnerabilityReport, error) {
	var report models.VulnerabilityReport
	if err := callTyped(ctx, c, mcp.ToolSummarizeVulnerabilities, req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// UpgradeSuggestions returns one upgrade per vulnerable package
func (c *APIClient) UpgradeSuggestions(ctx context.Context, req models.ProjectRequest) ([]models.UpgradeSuggestion, error) {
	var list mcp.UpgradeList
	if err := callTyped(ctx, c, mcp.ToolSuggestUpgrades, req, &list); err != nil {
		return nil, err
	}
	return list.Suggestions, nil
}

// CompareScans records a scan and returns the change since the previous one
func (c *APIClient) CompareScans(ctx context.Context, req models.ProjectRequest) (*models.CompareScansResult, error) {
	var result models.CompareScansResult
	if err := callTyped(ctx, c, mcp.ToolCompareScans, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
