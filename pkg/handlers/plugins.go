package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
)

// PluginsHandler lists the plugins datasources can be bound to.
type PluginsHandler struct {
	registry *plugins.Registry
	logger   *zap.Logger
}

func NewPluginsHandler(registry *plugins.Registry, logger *zap.Logger) *PluginsHandler {
	return &PluginsHandler{registry: registry, logger: logger}
}

func (h *PluginsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/plugins", h.List)
}

// List handles GET /api/plugins
func (h *PluginsHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: h.registry.List()}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
