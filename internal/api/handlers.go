package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/threatflux/depAuditGoMCP/internal/advisor"
	"github.com/threatflux/depAuditGoMCP/internal/mcp"
	"github.com/threatflux/depAuditGoMCP/internal/models"
	"github.com/threatflux/depAuditGoMCP/internal/utils"
)

// ToolResponse is the data payload of a REST tool call
type ToolResponse struct {
	Tool   string      `json:"tool"`
	Text   string      `json:"text"`
	Result interface{} `json:"result"`
}

// handleMCP hands the request to the MCP streamable HTTP transport
func (s *Server) handleMCP(c *gin.Context) {
	s.tools.HTTPHandler().ServeHTTP(c.Writer, c.Request)
}

// handleMCPStreamUnsupported rejects the server-initiated stream; every
// response is returned on the POST that asked for it
func (s *Server) handleMCPStreamUnsupported(c *gin.Context) {
	c.Header("Allow", http.MethodPost)
	utils.ErrorResponse(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Server-initiated streams are not offered; POST JSON-RPC messages instead", "")
}

// listTools returns the registered tool descriptors
func (s *Server) listTools(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{"tools": s.tools.Tools()})
}

// callTool runs one tool with a JSON body of project arguments
func (s *Server) callTool(c *gin.Context) {
	name := c.Param("name")

	var req models.ProjectRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	text, result, err := s.tools.Invoke(c.Request.Context(), name, req)
	if err != nil {
		s.writeToolError(c, name, err)
		return
	}

	utils.SuccessResponse(c, ToolResponse{Tool: name, Text: text, Result: result})
}

// writeToolError maps a classified failure onto an HTTP status
func (s *Server) writeToolError(c *gin.Context, name string, err error) {
	if errors.Is(err, mcp.ErrUnknownTool) {
		utils.NotFound(c, "Unknown tool: "+name)
		return
	}

	kind := advisor.Classify(err)
	s.logger.WithFields(logrus.Fields{
		"tool":       name,
		"kind":       kind,
		"request_id": utils.GetRequestID(c),
	}).WithError(err).Debug("Tool call failed")

	message := err.Error()
	switch kind {
	case advisor.KindValidation:
		utils.BadRequest(c, message)
	case advisor.KindNotFound:
		utils.NotFound(c, message)
	case advisor.KindAccessDenied:
		utils.Forbidden(c, message)
	case advisor.KindRateLimited:
		utils.TooManyRequests(c, message)
	case advisor.KindScanner:
		utils.BadGateway(c, "The dependency scanner failed", message)
	case advisor.KindTimeout:
		utils.GatewayTimeout(c, message)
	default:
		utils.InternalServerError(c, message)
	}
}
