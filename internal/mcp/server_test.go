package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/threatflux/depAuditGoMCP/internal/audit"
	"github.com/threatflux/depAuditGoMCP/internal/models"
	"github.com/threatflux/depAuditGoMCP/internal/target"
)

// MockAdvisor is a mock Advisor
type MockAdvisor struct {
	mock.Mock
}

// Audit mocks Advisor.Audit
func (m *MockAdvisor) Audit(ctx context.Context, req models.ProjectRequest) (*models.AuditSummary, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditSummary), args.Error(1)
}

// ShipReadiness mocks Advisor.ShipReadiness
func (m *MockAdvisor) ShipReadiness(ctx context.Context, req models.ProjectRequest) (*models.ShipReadiness, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShipReadiness), args.Error(1)
}

// HighestRisk mocks Advisor.HighestRisk
func (m *MockAdvisor) HighestRisk(ctx context.Context, req models.ProjectRequest) (*models.HighestRisk, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HighestRisk), args.Error(1)
}

// Summary mocks Advisor.Summary
func (m *MockAdvisor) Summary(ctx context.Context, req models.ProjectRequest) (*models.VulnerabilityReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VulnerabilityReport), args.Error(1)
}

// UpgradeSuggestions mocks Advisor.UpgradeSuggestions
func (m *MockAdvisor) UpgradeSuggestions(ctx context.Context, req models.ProjectRequest) ([]models.UpgradeSuggestion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UpgradeSuggestion), args.Error(1)
}

// Compare mocks Advisor.Compare
func (m *MockAdvisor) Compare(ctx context.Context, req models.ProjectRequest) (*models.CompareScansResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CompareScansResult), args.Error(1)
}

// MockToolRecorder is a mock ToolRecorder
type MockToolRecorder struct {
	mock.Mock
}

// ObserveToolCall records a tool call
func (m *MockToolRecorder) ObserveToolCall(tool, outcome string) {
	m.Called(tool, outcome)
}

func newTestServer(a Advisor, options ...func(*Server)) *Server {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewServer(a, append([]func(*Server){WithLogger(logger), WithVersion("1.2.3")}, options...)...)
}

// connectClient opens an in-memory MCP session against s
func connectClient(t *testing.T, s *Server) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	serverSession, err := s.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func resultText(t *testing.T, result *sdk.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*sdk.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestSession_Initialize(t *testing.T) {
	session := connectClient(t, newTestServer(new(MockAdvisor)))

	initResult := session.InitializeResult()
	require.NotNil(t, initResult)
	require.NotNil(t, initResult.ServerInfo)
	assert.Equal(t, "dep-audit-mcp", initResult.ServerInfo.Name)
	assert.Equal(t, "1.2.3", initResult.ServerInfo.Version)
	assert.Contains(t, initResult.Instructions, "owner/repo")
	require.NotNil(t, initResult.Capabilities)
	assert.NotNil(t, initResult.Capabilities.Tools)
}

func TestSession_ListTools(t *testing.T) {
	session := connectClient(t, newTestServer(new(MockAdvisor)))

	result, err := session.ListTools(context.Background(), &sdk.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		schema, ok := tool.InputSchema.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "object", schema["type"])
		assert.Contains(t, schema["properties"], "repo")
	}
	assert.ElementsMatch(t, []string{
		ToolAuditDependencies,
		ToolCheckShipReadiness,
		ToolGetHighestRisk,
		ToolSummarizeVulnerabilities,
		ToolSuggestUpgrades,
		ToolCompareScans,
	}, names)
}

func TestTools_RegistrationOrder(t *testing.T) {
	s := newTestServer(new(MockAdvisor))

	var names []string
	for _, tool := range s.Tools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{
		ToolAuditDependencies,
		ToolCheckShipReadiness,
		ToolGetHighestRisk,
		ToolSummarizeVulnerabilities,
		ToolSuggestUpgrades,
		ToolCompareScans,
	}, names)
}

func TestSession_CallTool(t *testing.T) {
	a := new(MockAdvisor)
	recorder := new(MockToolRecorder)
	recorder.On("ObserveToolCall", mock.Anything, mock.Anything).Return()

	req := models.ProjectRequest{Repo: "acme/widgets", Ref: "main"}
	a.On("ShipReadiness", mock.Anything, req).Return(&models.ShipReadiness{
		SafeToShip:     false,
		Reason:         "Not safe to ship: 1 critical vulnerability.",
		Critical:       1,
		Recommendation: "Upgrade lodash.",
	}, nil)

	session := connectClient(t, newTestServer(a, WithToolRecorder(recorder)))
	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      ToolCheckShipReadiness,
		Arguments: map[string]interface{}{"repo": "acme/widgets", "ref": "main"},
	})
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, "Not safe to ship: 1 critical vulnerability. Upgrade lodash.", resultText(t, result))

	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var readiness models.ShipReadiness
	require.NoError(t, json.Unmarshal(raw, &readiness))
	assert.Equal(t, 1, readiness.Critical)
	assert.False(t, readiness.SafeToShip)

	recorder.AssertCalled(t, "ObserveToolCall", ToolCheckShipReadiness, "success")
}

func TestSession_UnknownTool(t *testing.T) {
	session := connectClient(t, newTestServer(new(MockAdvisor)))

	_, err := session.CallTool(context.Background(), &sdk.CallToolParams{Name: "delete_everything"})
	assert.Error(t, err)
}

func TestCallTool_ErrorsAreResults(t *testing.T) {
	a := new(MockAdvisor)
	recorder := new(MockToolRecorder)
	recorder.On("ObserveToolCall", mock.Anything, mock.Anything).Return()

	scanErr := &audit.ScannerExecutionError{
		Ecosystem:   models.EcosystemPip,
		Root:        "/srv/app",
		Remediation: "Install pip-audit with 'pip install pip-audit'",
		Err:         errors.New("executable file not found"),
	}
	a.On("Audit", mock.Anything, mock.Anything).Return(nil, errors.Wrap(scanErr, "auditing local:/srv/app"))

	s := newTestServer(a, WithToolRecorder(recorder))
	result, err := s.CallTool(context.Background(), ToolAuditDependencies, json.RawMessage(`{"path":"/srv/app"}`))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "auditing local:/srv/app")
	assert.Contains(t, resultText(t, result), "pip install pip-audit")
	recorder.AssertCalled(t, "ObserveToolCall", ToolAuditDependencies, "scanner")

	validation := &target.ValidationError{Field: "repo", Value: "x", Message: "expected owner/repo"}
	a.On("Compare", mock.Anything, mock.Anything).Return(nil, validation)

	session := connectClient(t, s)
	result, err = session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      ToolCompareScans,
		Arguments: map[string]interface{}{"repo": "x"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "expected owner/repo")
	recorder.AssertCalled(t, "ObserveToolCall", ToolCompareScans, "validation")
}

func TestCallTool_BadArguments(t *testing.T) {
	a := new(MockAdvisor)
	s := newTestServer(a)

	result, err := s.CallTool(context.Background(), ToolGetHighestRisk, json.RawMessage(`{"repository":"acme/widgets"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid tool arguments")
	a.AssertNotCalled(t, "HighestRisk", mock.Anything, mock.Anything)

	_, err = s.CallTool(context.Background(), "delete_everything", nil)
	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestDecodeArguments(t *testing.T) {
	req, err := DecodeArguments(nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectRequest{}, req)

	req, err = DecodeArguments(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, models.ProjectRequest{}, req)

	req, err = DecodeArguments(json.RawMessage(`{"repo":"acme/widgets","subpath":"api"}`))
	require.NoError(t, err)
	assert.Equal(t, "api", req.Subpath)
}

func TestServeStdio(t *testing.T) {
	a := new(MockAdvisor)
	a.On("Summary", mock.Anything, mock.Anything).Return(&models.VulnerabilityReport{Summary: "No known vulnerabilities found."}, nil)
	s := newTestServer(a)

	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()
	defer outReader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.ServeStdio(ctx, inReader, outWriter) }()

	responses := bufio.NewReader(outReader)
	send := func(message string) {
		_, err := io.WriteString(inWriter, message+"\n")
		require.NoError(t, err)
	}
	receive := func() map[string]interface{} {
		line, err := responses.ReadBytes('\n')
		require.NoError(t, err)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &resp))
		return resp
	}

	send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`)
	resp := receive()
	assert.Equal(t, float64(1), resp["id"])
	serverInfo := resp["result"].(map[string]interface{})["serverInfo"].(map[string]interface{})
	assert.Equal(t, "1.2.3", serverInfo["version"])

	send(`{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}`)
	send(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"summarize_vulnerabilities","arguments":{}}}`)
	resp = receive()
	assert.Equal(t, float64(2), resp["id"])
	content := resp["result"].(map[string]interface{})["content"].([]interface{})
	assert.Equal(t, "No known vulnerabilities found.", content[0].(map[string]interface{})["text"])

	cancel()
	require.NoError(t, inWriter.Close())
	assert.ErrorIs(t, <-done, context.Canceled)
}
