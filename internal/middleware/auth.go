package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/threatflux/depAuditGoMCP/internal/auth"
	"github.com/threatflux/depAuditGoMCP/internal/utils"
)

const (
	subjectKey      = "subject"
	tokenDetailsKey = "tokenDetails"
)

// Authentication errors
var (
	ErrAuthHeaderMissing = errors.New("authorization header is required")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
	ErrTokenVerification = errors.New("failed to verify token")
	ErrMissingScope      = errors.New("token lacks the required scope")
)

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.TokenDetails, error)
}

// AuthMiddleware provides JWT authentication for routes
type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// RequireAuthentication ensures that the request carries a valid bearer token
func (m *AuthMiddleware) RequireAuthentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		details, err := m.extractAndValidateToken(c)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="dep-audit-mcp"`)
			utils.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		c.Set(subjectKey, details.Subject)
		c.Set(tokenDetailsKey, details)

		c.Next()
	}
}

// RequireScope ensures that the authenticated token grants scope.
// Tokens without any scopes are treated as unrestricted.
func (m *AuthMiddleware) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		details, ok := GetTokenDetails(c)
		if !ok {
			utils.Unauthorized(c, "")
			c.Abort()
			return
		}

		if len(details.Scopes) > 0 && !hasScope(details.Scopes, scope) {
			utils.Forbidden(c, ErrMissingScope.Error()+": "+scope)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (m *AuthMiddleware) extractAndValidateToken(c *gin.Context) (*auth.TokenDetails, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, ErrAuthHeaderMissing
	}

	headerParts := strings.SplitN(authHeader, " ", 2)
	if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "Bearer") || headerParts[1] == "" {
		return nil, ErrInvalidAuthHeader
	}

	details, err := m.verifier.Verify(strings.TrimSpace(headerParts[1]))
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, err
		}
		return nil, ErrTokenVerification
	}

	return details, nil
}

// GetSubject returns the authenticated subject, if any
func GetSubject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

// GetTokenDetails extracts the token details from the request context
func GetTokenDetails(c *gin.Context) (*auth.TokenDetails, bool) {
	value, exists := c.Get(tokenDetailsKey)
	if !exists {
		return nil, false
	}
	details, ok := value.(*auth.TokenDetails)
	return details, ok
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
