// Package auth issues and verifies the bearer tokens accepted by the HTTP
// transport.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MinSecretLength is the shortest accepted signing secret
const MinSecretLength = 32

// JWT error definitions
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrTokenNotYetValid     = errors.New("token not yet valid")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
	ErrInvalidClaims        = errors.New("invalid token claims")
	ErrMissingKey           = errors.New("signing key is missing")
	ErrInvalidIssuer        = errors.New("invalid token issuer")
	ErrInvalidAudience      = errors.New("invalid token audience")
)

// JWTConfig contains configuration for token generation and validation
type JWTConfig struct {
	// Secret signs and verifies HS256 tokens
	Secret string

	// Issuer identifies the principal that issued the JWT
	Issuer string

	// Audience identifies the recipients that the JWT is intended for
	Audience string

	// Expiry is the lifetime of generated tokens
	Expiry time.Duration
}

// Claims are the claims carried by an access token
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// TokenDetails describes a verified token
type TokenDetails struct {
	TokenID   string
	Subject   string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWTService issues and verifies access tokens
type JWTService struct {
	config JWTConfig
	now    func() time.Time
	log    *logrus.Logger
}

// NewJWTService creates a JWT service
func NewJWTService(config JWTConfig, log *logrus.Logger) *JWTService {
	if config.Expiry <= 0 {
		config.Expiry = 24 * time.Hour
	}
	if config.Secret == "" {
		log.Warn("JWT secret is empty, every token will be rejected")
	}
	return &JWTService{
		config: config,
		now:    time.Now,
		log:    log,
	}
}

// GenerateToken signs a token for subject with the configured expiry
func (s *JWTService) GenerateToken(subject string, scopes ...string) (string, time.Time, error) {
	if s.config.Secret == "" {
		return "", time.Time{}, ErrMissingKey
	}

	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.Expiry)

	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
		},
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Verify validates a token and extracts its details
func (s *JWTService) Verify(tokenString string) (*TokenDetails, error) {
	if s.config.Secret == "" {
		return nil, ErrMissingKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		s.log.WithError(err).Debug("Token parsing failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if s.config.Issuer != "" && claims.Issuer != s.config.Issuer {
		return nil, ErrInvalidIssuer
	}
	if s.config.Audience != "" && !containsAudience(claims.Audience, s.config.Audience) {
		return nil, ErrInvalidAudience
	}
	if claims.ExpiresAt == nil || claims.Subject == "" {
		return nil, ErrInvalidClaims
	}

	details := &TokenDetails{
		TokenID:   claims.ID,
		Subject:   claims.Subject,
		Scopes:    claims.Scopes,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		details.IssuedAt = claims.IssuedAt.Time
	}
	return details, nil
}

func containsAudience(audience jwt.ClaimStrings, expected string) bool {
	for _, aud := range audience {
		if aud == expected {
			return true
		}
	}
	return false
}
