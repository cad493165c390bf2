package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datasources/pkg/audit"
	"github.com/ekaya-inc/ekaya-datasources/pkg/auth"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/services"
)

// mockDatasourceService is a configurable mock for handler tests.
type mockDatasourceService struct {
	datasources []*models.Datasource
	structure   *models.DatasourceStructure
	err         error

	created       *models.Datasource
	patched       *models.Datasource
	deletedID     uuid.UUID
	savedID       uuid.UUID
	savedTables   int
	lastWorkspace uuid.UUID
}

func (m *mockDatasourceService) Create(ctx context.Context, workspaceID uuid.UUID, ds *models.Datasource) (*models.Datasource, error) {
	m.lastWorkspace = workspaceID
	if m.err != nil {
		return nil, m.err
	}
	m.created = ds
	out := ds.Clone()
	out.ID = uuid.New()
	out.WorkspaceID = workspaceID
	out.IsRecentlyCreated = models.BoolPtr(true)
	return out, nil
}

func (m *mockDatasourceService) Get(ctx context.Context, workspaceID, id uuid.UUID) (*models.Datasource, error) {
	m.lastWorkspace = workspaceID
	if m.err != nil {
		return nil, m.err
	}
	for _, ds := range m.datasources {
		if ds.ID == id {
			return ds.Clone(), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDatasourceService) List(ctx context.Context, workspaceID uuid.UUID) ([]*models.Datasource, error) {
	m.lastWorkspace = workspaceID
	if m.err != nil {
		return nil, m.err
	}
	return m.datasources, nil
}

func (m *mockDatasourceService) Update(ctx context.Context, workspaceID, id uuid.UUID, patch *models.Datasource) (*models.Datasource, error) {
	m.lastWorkspace = workspaceID
	if m.err != nil {
		return nil, m.err
	}
	m.patched = patch
	out := patch.Clone()
	out.ID = id
	out.WorkspaceID = workspaceID
	return out, nil
}

func (m *mockDatasourceService) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	m.lastWorkspace = workspaceID
	if m.err != nil {
		return m.err
	}
	m.deletedID = id
	return nil
}

func (m *mockDatasourceService) GetStructure(ctx context.Context, workspaceID, id uuid.UUID) (*models.DatasourceStructure, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.structure, nil
}

func (m *mockDatasourceService) SaveStructure(ctx context.Context, workspaceID, id uuid.UUID, structure *models.DatasourceStructure) error {
	if m.err != nil {
		return m.err
	}
	m.savedID = id
	m.savedTables = len(structure.Tables)
	return nil
}

func (m *mockDatasourceService) FindEquivalent(ctx context.Context, workspaceID uuid.UUID, candidate *models.Datasource) (*models.Datasource, error) {
	return nil, m.err
}

var _ services.DatasourceService = (*mockDatasourceService)(nil)

type mockExportService struct {
	bundle   *services.Bundle
	result   *services.ImportResult
	err      error
	imported *services.Bundle
}

func (m *mockExportService) Export(ctx context.Context, workspaceID uuid.UUID) (*services.Bundle, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.bundle, nil
}

func (m *mockExportService) Import(ctx context.Context, workspaceID uuid.UUID, bundle *services.Bundle) (*services.ImportResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.imported = bundle
	return m.result, nil
}

var _ services.ExportService = (*mockExportService)(nil)

// newWorkspaceRequest builds a request as it looks after the auth middleware ran.
func newWorkspaceRequest(method, path, body string, workspaceID uuid.UUID, roles ...string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.SetPathValue("wid", workspaceID.String())
	claims := &auth.Claims{WorkspaceID: workspaceID.String(), Roles: roles}
	claims.Subject = "user-1"
	return req.WithContext(auth.WithClaims(req.Context(), claims, "token"))
}

func nopAuditor() *audit.DatasourceAuditor {
	return audit.NewDatasourceAuditor(zap.NewNop())
}
