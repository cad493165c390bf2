package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/audit"
	"github.com/ekaya-inc/ekaya-datasources/pkg/auth"
	"github.com/ekaya-inc/ekaya-datasources/pkg/config"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/services"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

// ExportHandler serves datasource bundles for moving datasources between
// workspaces or checking them into git.
type ExportHandler struct {
	exportService  services.ExportService
	auditor        *audit.DatasourceAuditor
	defaultFormat  string
	maxImportBytes int64
	logger         *zap.Logger
}

func NewExportHandler(exportService services.ExportService, auditor *audit.DatasourceAuditor, cfg config.ExportConfig, logger *zap.Logger) *ExportHandler {
	h := &ExportHandler{
		exportService:  exportService,
		auditor:        auditor,
		defaultFormat:  cfg.DefaultFormat,
		maxImportBytes: cfg.MaxImportBytes,
		logger:         logger,
	}
	if h.defaultFormat == "" {
		h.defaultFormat = formatYAML
	}
	if h.maxImportBytes <= 0 {
		h.maxImportBytes = maxBodyBytes
	}
	return h
}

// RegisterRoutes registers the export handler's routes on the given mux.
func (h *ExportHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, workspaceMiddleware WorkspaceMiddleware) {
	requireAuth := authMiddleware.RequireAuthWithPathValidation("wid")

	mux.HandleFunc("GET /api/workspaces/{wid}/datasources/export",
		requireAuth(authMiddleware.RequirePermission(models.PermissionReadDatasources)(workspaceMiddleware(h.Export))))
	mux.HandleFunc("POST /api/workspaces/{wid}/datasources/import",
		requireAuth(authMiddleware.RequirePermission(models.PermissionManageDatasources)(workspaceMiddleware(h.Import))))
}

// Export handles GET /api/workspaces/{wid}/datasources/export?format=yaml|json
// The bundle is returned as a file download, not wrapped in ApiResponse.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := ParseWorkspaceID(w, r, h.logger)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = h.defaultFormat
	}
	if format != formatYAML && format != formatJSON {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_format", "format must be yaml or json"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	bundle, err := h.exportService.Export(r.Context(), workspaceID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to export datasources",
			zap.String("workspace_id", workspaceID.String()))
		return
	}

	var (
		body        []byte
		contentType string
	)
	if format == formatYAML {
		body, err = services.EncodeYAML(bundle)
		contentType = "application/yaml"
	} else {
		body, err = services.EncodeJSON(bundle)
		contentType = "application/json"
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to encode export bundle")
		return
	}

	h.auditor.LogTransfer(r.Context(), audit.EventDatasourcesExport, workspaceID,
		audit.TransferDetails{Exported: len(bundle.Datasources)}, r.RemoteAddr)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="datasources.%s"`, format))
	if _, err := w.Write(body); err != nil {
		h.logger.Error("Failed to write export bundle", zap.Error(err))
	}
}

// Import handles POST /api/workspaces/{wid}/datasources/import
// The body is YAML when ?format=yaml or the Content-Type mentions yaml, JSON otherwise.
func (h *ExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := ParseWorkspaceID(w, r, h.logger)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxImportBytes))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var bundle *services.Bundle
	if requestFormat(r) == formatYAML {
		bundle, err = services.DecodeYAML(data)
	} else {
		bundle, err = services.DecodeJSON(data)
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to decode import bundle")
		return
	}

	result, err := h.exportService.Import(r.Context(), workspaceID, bundle)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to import datasources",
			zap.String("workspace_id", workspaceID.String()))
		return
	}

	h.auditor.LogTransfer(r.Context(), audit.EventDatasourcesImport, workspaceID, audit.TransferDetails{
		Created:        len(result.Created),
		Reused:         len(result.Reused),
		MissingPlugins: len(result.MissingPlugins),
	}, r.RemoteAddr)

	perms := auth.PermissionsFromContext(r.Context())
	for i, ds := range result.Created {
		result.Created[i] = toResponse(ds, perms)
	}
	for i, ds := range result.Reused {
		result.Reused[i] = toResponse(ds, perms)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func requestFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return formatYAML
	}
	return formatJSON
}
