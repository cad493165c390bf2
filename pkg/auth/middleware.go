package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware wraps handlers with authentication and permission checks.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuthWithPathValidation validates the JWT and requires the workspace in
// the URL (read with r.PathValue(pathParamName)) to match the token.
func (m *Middleware) RequireAuthWithPathValidation(pathParamName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, token, err := m.authService.ValidateRequest(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			if err := m.authService.RequireWorkspaceID(claims); err != nil {
				writeAuthError(w, http.StatusBadRequest, "bad_request", "Missing workspace ID in token")
				return
			}

			if err := m.authService.ValidateWorkspaceIDMatch(claims, r.PathValue(pathParamName)); err != nil {
				writeAuthError(w, http.StatusForbidden, "forbidden", "Workspace ID mismatch between token and URL")
				return
			}

			next(w, r.WithContext(WithClaims(r.Context(), claims, token)))
		}
	}
}

// RequirePermission rejects callers whose roles do not grant permission.
// Must run after RequireAuthWithPathValidation.
func (m *Middleware) RequirePermission(permission string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if !claims.HasPermission(permission) {
				m.logger.Warn("Permission denied",
					zap.String("subject", claims.Subject),
					zap.String("permission", permission),
					zap.Strings("roles", claims.Roles))
				writeAuthError(w, http.StatusForbidden, "forbidden", "Missing permission: "+permission)
				return
			}
			next(w, r)
		}
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
