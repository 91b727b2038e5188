package auth

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/abduss/filemeta/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopeRead allows metadata, version and conflict lookups.
	ScopeRead = "metadata:read"
	// ScopeWrite allows metadata writes and conflict resolution.
	ScopeWrite = "metadata:write"
)

// Claims describes the validated identity extracted from a service token.
type Claims struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasScope reports whether the token grants scope. Write implies read.
func (c Claims) HasScope(scope string) bool {
	if slices.Contains(c.Scopes, scope) {
		return true
	}
	return scope == ScopeRead && slices.Contains(c.Scopes, ScopeWrite)
}

type tokenClaims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and validates HS256 service tokens for the sync agents and
// other internal callers of the API.
type Service struct {
	cfg     config.AuthConfig
	nowFunc func() time.Time
}

// NewService creates a Service. An empty secret disables authentication.
func NewService(cfg config.AuthConfig) *Service {
	if cfg.Issuer == "" {
		cfg.Issuer = "filemeta"
	}
	return &Service{
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// Enabled reports whether a token secret is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.TokenSecret != ""
}

// IssueToken signs a token for subject carrying scopes.
func (s *Service) IssueToken(subject string, scopes []string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrDisabled
	}
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject must not be blank")
	}

	now := s.nowFunc()
	expiresAt := now.Add(s.cfg.TokenTTL)
	claims := tokenClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.TokenSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the claims.
func (s *Service) ValidateToken(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrUnauthorized
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)

	var claims tokenClaims
	parsed, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.TokenSecret), nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrUnauthorized
	}

	out := Claims{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
