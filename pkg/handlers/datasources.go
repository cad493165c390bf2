package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/audit"
	"github.com/ekaya-inc/ekaya-datasources/pkg/auth"
	"github.com/ekaya-inc/ekaya-datasources/pkg/logging"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/services"
)

// maxBodyBytes bounds request bodies, including import bundles.
const maxBodyBytes = 10 << 20

// WorkspaceMiddleware binds a workspace-scoped database connection to the request.
type WorkspaceMiddleware func(http.HandlerFunc) http.HandlerFunc

// ListDatasourcesResponse wraps array for frontend compatibility.
type ListDatasourcesResponse struct {
	Datasources []*models.Datasource `json:"datasources"`
}

// DatasourcesHandler handles datasource-related HTTP requests.
type DatasourcesHandler struct {
	datasourceService services.DatasourceService
	auditor           *audit.DatasourceAuditor
	logger            *zap.Logger
}

func NewDatasourcesHandler(datasourceService services.DatasourceService, auditor *audit.DatasourceAuditor, logger *zap.Logger) *DatasourcesHandler {
	return &DatasourcesHandler{
		datasourceService: datasourceService,
		auditor:           auditor,
		logger:            logger,
	}
}

// RegisterRoutes registers the datasources handler's routes on the given mux.
func (h *DatasourcesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, workspaceMiddleware WorkspaceMiddleware) {
	requireAuth := authMiddleware.RequireAuthWithPathValidation("wid")
	read := authMiddleware.RequirePermission(models.PermissionReadDatasources)
	manage := authMiddleware.RequirePermission(models.PermissionManageDatasources)
	remove := authMiddleware.RequirePermission(models.PermissionDeleteDatasources)

	mux.HandleFunc("GET /api/workspaces/{wid}/datasources",
		requireAuth(read(workspaceMiddleware(h.List))))
	mux.HandleFunc("POST /api/workspaces/{wid}/datasources",
		requireAuth(manage(workspaceMiddleware(h.Create))))
	mux.HandleFunc("GET /api/workspaces/{wid}/datasources/{id}",
		requireAuth(read(workspaceMiddleware(h.Get))))
	mux.HandleFunc("PUT /api/workspaces/{wid}/datasources/{id}",
		requireAuth(manage(workspaceMiddleware(h.Update))))
	mux.HandleFunc("DELETE /api/workspaces/{wid}/datasources/{id}",
		requireAuth(remove(workspaceMiddleware(h.Delete))))
	mux.HandleFunc("GET /api/workspaces/{wid}/datasources/{id}/structure",
		requireAuth(read(workspaceMiddleware(h.GetStructure))))
	mux.HandleFunc("PUT /api/workspaces/{wid}/datasources/{id}/structure",
		requireAuth(manage(workspaceMiddleware(h.SaveStructure))))
}

// List handles GET /api/workspaces/{wid}/datasources
func (h *DatasourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := ParseWorkspaceID(w, r, h.logger)
	if !ok {
		return
	}

	datasources, err := h.datasourceService.List(r.Context(), workspaceID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list datasources",
			zap.String("workspace_id", workspaceID.String()))
		return
	}

	perms := auth.PermissionsFromContext(r.Context())
	data := ListDatasourcesResponse{Datasources: make([]*models.Datasource, len(datasources))}
	for i, ds := range datasources {
		data.Datasources[i] = toResponse(ds, perms)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/workspaces/{wid}/datasources
// The name may be omitted; the service picks a default.
func (h *DatasourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := ParseWorkspaceID(w, r, h.logger)
	if !ok {
		return
	}

	req, ok := h.decodeDatasource(w, r)
	if !ok {
		return
	}
	if req.PluginID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_plugin_id", "Datasource pluginId is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ds, err := h.datasourceService.Create(r.Context(), workspaceID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create datasource",
			zap.String("workspace_id", workspaceID.String()))
		return
	}
	h.auditor.LogChange(r.Context(), audit.EventDatasourceCreated, ds, false, r.RemoteAddr)

	response := ApiResponse{Success: true, Data: toResponse(ds, auth.PermissionsFromContext(r.Context()))}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/workspaces/{wid}/datasources/{id}
func (h *DatasourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID, datasourceID, ok := ParseWorkspaceAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	ds, err := h.datasourceService.Get(r.Context(), workspaceID, datasourceID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get datasource",
			zap.String("workspace_id", workspaceID.String()),
			zap.String("datasource_id", datasourceID.String()))
		return
	}

	response := ApiResponse{Success: true, Data: toResponse(ds, auth.PermissionsFromContext(r.Context()))}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/workspaces/{wid}/datasources/{id}
// Omitted fields keep their stored values. A masked password keeps the stored one.
func (h *DatasourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	workspaceID, datasourceID, ok := ParseWorkspaceAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	req, ok := h.decodeDatasource(w, r)
	if !ok {
		return
	}

	ds, err := h.datasourceService.Update(r.Context(), workspaceID, datasourceID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update datasource",
			zap.String("workspace_id", workspaceID.String()),
			zap.String("datasource_id", datasourceID.String()))
		return
	}
	h.auditor.LogChange(r.Context(), audit.EventDatasourceUpdated, ds, changesPassword(req), r.RemoteAddr)

	response := ApiResponse{Success: true, Data: toResponse(ds, auth.PermissionsFromContext(r.Context()))}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/workspaces/{wid}/datasources/{id}
func (h *DatasourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID, datasourceID, ok := ParseWorkspaceAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.datasourceService.Delete(r.Context(), workspaceID, datasourceID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete datasource",
			zap.String("workspace_id", workspaceID.String()),
			zap.String("datasource_id", datasourceID.String()))
		return
	}
	h.auditor.LogDeletion(r.Context(), workspaceID, datasourceID, r.RemoteAddr)

	response := ApiResponse{Success: true, Message: "Datasource deleted successfully"}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetStructure handles GET /api/workspaces/{wid}/datasources/{id}/structure
// Data is null when no structure has been cached.
func (h *DatasourcesHandler) GetStructure(w http.ResponseWriter, r *http.Request) {
	workspaceID, datasourceID, ok := ParseWorkspaceAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	structure, err := h.datasourceService.GetStructure(r.Context(), workspaceID, datasourceID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get datasource structure",
			zap.String("datasource_id", datasourceID.String()))
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: structure}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SaveStructure handles PUT /api/workspaces/{wid}/datasources/{id}/structure
func (h *DatasourcesHandler) SaveStructure(w http.ResponseWriter, r *http.Request) {
	workspaceID, datasourceID, ok := ParseWorkspaceAndDatasourceIDs(w, r, h.logger)
	if !ok {
		return
	}

	var structure models.DatasourceStructure
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&structure); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.datasourceService.SaveStructure(r.Context(), workspaceID, datasourceID, &structure); err != nil {
		writeServiceError(w, h.logger, err, "Failed to save datasource structure",
			zap.String("datasource_id", datasourceID.String()))
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DatasourcesHandler) decodeDatasource(w http.ResponseWriter, r *http.Request) (*models.Datasource, bool) {
	var ds models.Datasource
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ds); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}
	return &ds, true
}

// toResponse prepares ds for a client: secrets masked, permissions of the caller attached.
func toResponse(ds *models.Datasource, perms []string) *models.Datasource {
	out := ds.Clone()
	out.Configuration = logging.MaskSecrets(ds.Configuration)
	out.UserPermissions = perms
	out.Structure = nil
	return out
}

// changesPassword reports whether an update carries a new password.
// The masked placeholder round-tripped by clients does not count.
func changesPassword(req *models.Datasource) bool {
	if req.Configuration == nil || req.Configuration.Authentication == nil {
		return false
	}
	password := req.Configuration.Authentication.Password
	return password != "" && password != logging.MaskedPassword
}
