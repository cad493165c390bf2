package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const tokenCookieName = "ekaya_jwt"

var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingWorkspaceID   = errors.New("missing workspace ID in token")
	ErrWorkspaceIDMismatch  = errors.New("workspace ID mismatch between token and URL")
)

// AuthService authenticates requests. Handlers never see tokens directly.
type AuthService interface {
	// ValidateRequest reads the token from the ekaya_jwt cookie or a Bearer header.
	ValidateRequest(r *http.Request) (*Claims, string, error)
	RequireWorkspaceID(claims *Claims) error
	// ValidateWorkspaceIDMatch is a no-op when urlWorkspaceID is empty.
	ValidateWorkspaceIDMatch(claims *Claims, urlWorkspaceID string) error
}

type authService struct {
	jwksClient JWKSClientInterface
	logger     *zap.Logger
}

func NewAuthService(jwksClient JWKSClientInterface, logger *zap.Logger) AuthService {
	return &authService{
		jwksClient: jwksClient,
		logger:     logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	tokenString, source, err := s.extractToken(r)
	if err != nil {
		return nil, "", err
	}

	claims, err := s.jwksClient.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", source))
		return nil, "", err
	}

	return claims, tokenString, nil
}

func (s *authService) extractToken(r *http.Request) (token, source string, err error) {
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		return cookie.Value, "cookie", nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		s.logger.Debug("No JWT found in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		return "", "", ErrMissingAuthorization
	}

	scheme, value, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || value == "" || strings.Contains(value, " ") {
		s.logger.Debug("Invalid Authorization header format", zap.String("path", r.URL.Path))
		return "", "", ErrInvalidAuthFormat
	}
	return value, "header", nil
}

func (s *authService) RequireWorkspaceID(claims *Claims) error {
	if claims.WorkspaceID == "" {
		return ErrMissingWorkspaceID
	}
	return nil
}

func (s *authService) ValidateWorkspaceIDMatch(claims *Claims, urlWorkspaceID string) error {
	if urlWorkspaceID != "" && claims.WorkspaceID != urlWorkspaceID {
		s.logger.Warn("Workspace ID mismatch",
			zap.String("url_workspace_id", urlWorkspaceID),
			zap.String("token_workspace_id", claims.WorkspaceID))
		return ErrWorkspaceIDMismatch
	}
	return nil
}

var _ AuthService = (*authService)(nil)
