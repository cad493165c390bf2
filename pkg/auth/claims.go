// Package auth validates workspace-scoped JWTs and exposes the caller's
// identity and datasource permissions to handlers.
package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims is the token payload issued for a workspace member.
type Claims struct {
	jwt.RegisteredClaims
	WorkspaceID string   `json:"wid,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Permissions returns the datasource permissions granted by the token's roles.
func (c *Claims) Permissions() []string {
	if c == nil {
		return nil
	}
	return models.PermissionsForRoles(c.Roles)
}

// HasPermission reports whether the token grants permission.
func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions(), permission)
}

// WithClaims stores claims and the raw token in ctx.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}

// GetClaims retrieves JWT claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// GetUserIDFromContext returns the token subject, or "" when unauthenticated.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return ""
	}
	return claims.Subject
}

// PermissionsFromContext returns the caller's datasource permissions.
func PermissionsFromContext(ctx context.Context) []string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return nil
	}
	return claims.Permissions()
}

// RequireWorkspaceIDFromContext extracts the workspace ID from the claims in ctx.
func RequireWorkspaceIDFromContext(ctx context.Context) (uuid.UUID, error) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("authentication required: no claims in context")
	}
	if claims.WorkspaceID == "" {
		return uuid.Nil, ErrMissingWorkspaceID
	}
	workspaceID, err := uuid.Parse(claims.WorkspaceID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid workspace ID format: %w", err)
	}
	return workspaceID, nil
}
