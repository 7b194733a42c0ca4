// Package mcp serves the advisor operations as Model Context Protocol tools.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/threatflux/depAuditGoMCP/internal/advisor"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

const (
	serverName = "dep-audit-mcp"

	instructions = "Audit npm and Python dependencies for known vulnerabilities. Every tool takes either a local " +
		"path or a GitHub repo (owner/repo) with optional ref and subpath."
)

// Common errors
var (
	// ErrUnknownTool indicates a call to a tool that is not registered
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates tool arguments that do not decode
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// ToolRecorder receives one observation per tool call
type ToolRecorder interface {
	ObserveToolCall(tool, outcome string)
}

// Server registers the advisor tools on an MCP server and exposes its
// stdio and streamable HTTP transports
type Server struct {
	advisor  Advisor
	tools    []toolEntry
	index    map[string]toolEntry
	version  string
	recorder ToolRecorder
	logger   *logrus.Logger
	mcp      *sdk.Server

	httpOnce    sync.Once
	httpHandler http.Handler
}

// NewServer creates a server exposing the advisor operations
func NewServer(a Advisor, options ...func(*Server)) *Server {
	s := &Server{
		advisor: a,
		tools:   defaultTools(),
		version: "dev",
		logger:  logrus.New(),
	}

	for _, option := range options {
		option(s)
	}

	s.mcp = sdk.NewServer(
		&sdk.Implementation{Name: serverName, Version: s.version},
		&sdk.ServerOptions{Instructions: instructions},
	)

	s.index = make(map[string]toolEntry, len(s.tools))
	for i := range s.tools {
		s.tools[i].tool.InputSchema = projectSchema()
		entry := s.tools[i]
		s.index[entry.tool.Name] = entry
		s.mcp.AddTool(&entry.tool, s.toolHandler(entry.tool.Name))
	}

	return s
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported in serverInfo
func WithVersion(version string) func(*Server) {
	return func(s *Server) {
		if version != "" {
			s.version = version
		}
	}
}

// WithToolRecorder sets the metrics sink for tool calls
func WithToolRecorder(recorder ToolRecorder) func(*Server) {
	return func(s *Server) {
		s.recorder = recorder
	}
}

// Tools lists the registered tools in registration order
func (s *Server) Tools() []Tool {
	out := make([]Tool, len(s.tools))
	for i, entry := range s.tools {
		out[i] = entry.tool
	}
	return out
}

// Invoke runs a tool and returns its text line and structured value.
// Errors are returned unchanged so transports can classify them.
func (s *Server) Invoke(ctx context.Context, name string, req models.ProjectRequest) (string, interface{}, error) {
	entry, ok := s.index[name]
	if !ok {
		return "", nil, errors.Wrap(ErrUnknownTool, name)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"tool": name,
		"repo": req.Repo,
		"path": req.Path,
	})
	logger.Debug("Calling tool")

	text, data, err := entry.run(ctx, s.advisor, req)
	outcome := "success"
	if err != nil {
		outcome = string(advisor.Classify(err))
		logger.WithError(err).WithField("kind", outcome).Warn("Tool call failed")
	}
	if s.recorder != nil {
		s.recorder.ObserveToolCall(name, outcome)
	}
	return text, data, err
}

// CallTool runs a tool with raw JSON arguments. Tool failures become an
// error result; only an unknown tool is returned as an error.
func (s *Server) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*sdk.CallToolResult, error) {
	if _, ok := s.index[name]; !ok {
		return nil, errors.Wrap(ErrUnknownTool, name)
	}

	req, err := DecodeArguments(arguments)
	if err != nil {
		return errorResult(err), nil
	}

	text, data, err := s.Invoke(ctx, name, req)
	if err != nil {
		return errorResult(err), nil
	}

	return &sdk.CallToolResult{
		Content:           []sdk.Content{&sdk.TextContent{Text: text}},
		StructuredContent: data,
	}, nil
}

func (s *Server) toolHandler(name string) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var arguments json.RawMessage
		if req != nil && req.Params != nil {
			arguments = req.Params.Arguments
		}
		return s.CallTool(ctx, name, arguments)
	}
}

// DecodeArguments decodes tool arguments, rejecting unknown fields
func DecodeArguments(arguments json.RawMessage) (models.ProjectRequest, error) {
	var req models.ProjectRequest
	trimmed := bytes.TrimSpace(arguments)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return req, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, errors.Wrap(ErrInvalidArguments, err.Error())
	}
	return req, nil
}

func errorResult(err error) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}
}

// Connect starts one MCP session over the given transport
func (s *Server) Connect(ctx context.Context, transport sdk.Transport) (*sdk.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

// ServeStdio serves one MCP session of newline-delimited JSON-RPC over in
// and out until in is exhausted or ctx is cancelled
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &sdk.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	err := s.mcp.Run(ctx, transport)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "serving stdio session")
	}
	return nil
}

// HTTPHandler returns the streamable HTTP transport. Each POST is answered
// on its own; the server keeps no session state between requests.
func (s *Server) HTTPHandler() http.Handler {
	s.httpOnce.Do(func() {
		s.httpHandler = sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server {
			return s.mcp
		}, &sdk.StreamableHTTPOptions{Stateless: true})
	})
	return s.httpHandler
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
