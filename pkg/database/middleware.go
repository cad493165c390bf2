package database

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/auth"
)

// WithWorkspaceContext binds a workspace-scoped connection to the request for
// the duration of the handler. It runs after the auth middleware.
func WithWorkspaceContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			workspaceID, err := auth.RequireWorkspaceIDFromContext(r.Context())
			if err != nil {
				logger.Error("Missing workspace context in claims", zap.Error(err))
				writeError(w, http.StatusBadRequest, "invalid_workspace_id", "Invalid workspace context")
				return
			}

			scope, err := db.WithWorkspace(r.Context(), workspaceID)
			if err != nil {
				logger.Error("Failed to acquire workspace connection",
					zap.String("workspace_id", workspaceID.String()),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetWorkspaceScope(r.Context(), scope)))
		}
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
