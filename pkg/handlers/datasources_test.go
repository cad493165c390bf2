package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-datasources/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datasources/pkg/audit"
	"github.com/ekaya-inc/ekaya-datasources/pkg/logging"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

func storedDatasource(workspaceID uuid.UUID) *models.Datasource {
	return &models.Datasource{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        "Orders DB",
		PluginID:    "postgres",
		Configuration: &models.DatasourceConfiguration{
			Endpoints:      []models.Endpoint{{Host: "db.internal", Port: 5432}},
			Authentication: &models.Authentication{Username: "app", Password: "s3cret", DatabaseName: "orders"},
		},
		Structure: &models.DatasourceStructure{Tables: []models.Table{{Name: "orders"}}},
	}
}

// decodeData unwraps ApiResponse.data into a generic map so server-only
// fields (userPermissions, isValid) are visible.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success, rec.Body.String())
	return resp.Data
}

func TestDatasourcesHandler_List(t *testing.T) {
	workspaceID := uuid.New()
	service := &mockDatasourceService{datasources: []*models.Datasource{storedDatasource(workspaceID)}}
	handler := NewDatasourcesHandler(service, nopAuditor(), zap.NewNop())

	req := newWorkspaceRequest(http.MethodGet, "/api/workspaces/"+workspaceID.String()+"/datasources", "", workspaceID, models.RoleViewer)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3cret")
	assert.NotContains(t, rec.Body.String(), "structure")

	data := decodeData(t, rec)
	list := data["datasources"].([]any)
	require.Len(t, list, 1)

	ds := list[0].(map[string]any)
	assert.Equal(t, "Orders DB", ds["name"])
	assert.Equal(t, true, ds["isValid"])
	assert.Equal(t, []any{models.PermissionExecuteDatasources, models.PermissionReadDatasources}, ds["userPermissions"])

	auth := ds["datasourceConfiguration"].(map[string]any)["authentication"].(map[string]any)
	assert.Equal(t, logging.MaskedPassword, auth["password"])

	assert.Equal(t, "s3cret", service.datasources[0].Configuration.Authentication.Password, "service data untouched")
	assert.Equal(t, workspaceID, service.lastWorkspace)
}

func TestDatasourcesHandler_List_InvalidWorkspaceID(t *testing.T) {
	handler := NewDatasourcesHandler(&mockDatasourceService{}, nopAuditor(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/not-a-uuid/datasources", nil)
	req.SetPathValue("wid", "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_workspace_id")
}

func TestDatasourcesHandler_Create(t *testing.T) {
	workspaceID := uuid.New()
	service := &mockDatasourceService{}
	handler := NewDatasourcesHandler(service, nopAuditor(), zap.NewNop())

	body := `{
		"name": "Orders DB",
		"pluginId": "postgres",
		"invalids": ["forged"],
		"userPermissions": ["manage:datasources"],
		"datasourceConfiguration": {"authentication": {"username": "app", "password": "s3cret"}}
	}`
	req := newWorkspaceRequest(http.MethodPost, "/api/workspaces/"+workspaceID.String()+"/datasources", body, workspaceID, models.RoleAdmin)
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, service.created)
	assert.Empty(t, service.created.Invalids, "client cannot set invalids")
	assert.Empty(t, service.created.UserPermissions)
	assert.Equal(t, "s3cret", service.created.Configuration.Authentication.Password)

	data := decodeData(t, rec)
	assert.Equal(t, true, data["isRecentlyCreated"])
	assert.Len(t, data["userPermissions"], 4)
	assert.NotContains(t, rec.Body.String(), "s3cret")
}

func TestDatasourcesHandler_Create_BadRequests(t *testing.T) {
	workspaceID := uuid.New()
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"name":`, "invalid_request"},
		{"missing plugin", `{"name": "x"}`, "missing_plugin_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewDatasourcesHandler(&mockDatasourceService{}, nopAuditor(), zap.NewNop())
			req := newWorkspaceRequest(http.MethodPost, "/", tt.body, workspaceID)
			rec := httptest.NewRecorder()
			handler.Create(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
		})
	}
}

func TestDatasourcesHandler_ServiceErrors(t *testing.T) {
	workspaceID := uuid.New()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("datasource x: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "duplicate_name"},
		{"missing plugin", fmt.Errorf("plugin %q: %w", "oracle", apperrors.ErrMissingPlugin), http.StatusUnprocessableEntity, "missing_plugin"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewDatasourcesHandler(&mockDatasourceService{err: tt.err}, nopAuditor(), zap.NewNop())
			req := newWorkspaceRequest(http.MethodPost, "/", `{"name":"x","pluginId":"oracle"}`, workspaceID)
			rec := httptest.NewRecorder()
			handler.Create(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
		})
	}
}

func TestDatasourcesHandler_Get(t *testing.T) {
	workspaceID := uuid.New()
	ds := storedDatasource(workspaceID)
	handler := NewDatasourcesHandler(&mockDatasourceService{datasources: []*models.Datasource{ds}}, nopAuditor(), zap.NewNop())

	req := newWorkspaceRequest(http.MethodGet, "/", "", workspaceID, models.RoleAdmin)
	req.SetPathValue("id", ds.ID.String())
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, ds.ID.String(), data["id"])
	assert.NotContains(t, rec.Body.String(), "s3cret")

	missing := newWorkspaceRequest(http.MethodGet, "/", "", workspaceID)
	missing.SetPathValue("id", uuid.New().String())
	rec = httptest.NewRecorder()
	handler.Get(rec, missing)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := newWorkspaceRequest(http.MethodGet, "/", "", workspaceID)
	bad.SetPathValue("id", "nope")
	rec = httptest.NewRecorder()
	handler.Get(rec, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_datasource_id")
}

func TestDatasourcesHandler_Update_PassesMaskedPassword(t *testing.T) {
	workspaceID := uuid.New()
	id := uuid.New()
	service := &mockDatasourceService{}
	handler := NewDatasourcesHandler(service, nopAuditor(), zap.NewNop())

	body := `{"name": "Renamed", "datasourceConfiguration": {"authentication": {"username": "app", "password": "********"}}}`
	req := newWorkspaceRequest(http.MethodPut, "/", body, workspaceID, models.RoleDeveloper)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, service.patched)
	assert.Equal(t, "Renamed", service.patched.Name)
	assert.Equal(t, logging.MaskedPassword, service.patched.Configuration.Authentication.Password)
	assert.Equal(t, id.String(), decodeData(t, rec)["id"])
}

func TestDatasourcesHandler_Update_AuditsCredentialChanges(t *testing.T) {
	tests := []struct {
		name     string
		password string
		events   []string
	}{
		{name: "masked password", password: logging.MaskedPassword, events: []string{"datasource_updated"}},
		{name: "new password", password: "rotated", events: []string{"datasource_updated", "datasource_credentials_changed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.InfoLevel)
			handler := NewDatasourcesHandler(&mockDatasourceService{}, audit.NewDatasourceAuditor(zap.New(core)), zap.NewNop())

			body := fmt.Sprintf(`{"datasourceConfiguration": {"authentication": {"password": %q}}}`, tt.password)
			req := newWorkspaceRequest(http.MethodPut, "/", body, uuid.New(), models.RoleDeveloper)
			req.SetPathValue("id", uuid.NewString())
			rec := httptest.NewRecorder()
			handler.Update(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var events []string
			for _, entry := range recorded.All() {
				events = append(events, entry.ContextMap()["event_type"].(string))
			}
			assert.Equal(t, tt.events, events)
			assert.NotContains(t, fmt.Sprint(recorded.All()), "rotated")
		})
	}
}

func TestDatasourcesHandler_Delete(t *testing.T) {
	workspaceID := uuid.New()
	id := uuid.New()
	service := &mockDatasourceService{}
	handler := NewDatasourcesHandler(service, nopAuditor(), zap.NewNop())

	req := newWorkspaceRequest(http.MethodDelete, "/", "", workspaceID, models.RoleAdmin)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	handler.Delete(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, service.deletedID)
}

func TestDatasourcesHandler_Structure(t *testing.T) {
	workspaceID := uuid.New()
	id := uuid.New()
	service := &mockDatasourceService{}
	handler := NewDatasourcesHandler(service, nopAuditor(), zap.NewNop())

	req := newWorkspaceRequest(http.MethodGet, "/", "", workspaceID)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	handler.GetStructure(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true, "data": null}`, rec.Body.String(), "no cached structure")

	put := newWorkspaceRequest(http.MethodPut, "/", `{"tables": [{"type": "TABLE", "name": "orders"}, {"type": "VIEW", "name": "v"}]}`, workspaceID)
	put.SetPathValue("id", id.String())
	rec = httptest.NewRecorder()
	handler.SaveStructure(rec, put)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, service.savedID)
	assert.Equal(t, 2, service.savedTables)

	service.structure = &models.DatasourceStructure{Tables: []models.Table{{Type: "TABLE", Name: "orders"}}}
	rec = httptest.NewRecorder()
	handler.GetStructure(rec, req)
	assert.Contains(t, rec.Body.String(), `"name":"orders"`)
}
