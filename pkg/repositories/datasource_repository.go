package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-datasources/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datasources/pkg/database"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

const uniqueViolation = "23505"

// DatasourceRepository persists datasources. The configuration is stored as
// JSONB; passwords inside it are already encrypted by the service layer.
type DatasourceRepository interface {
	// Create inserts ds and fills in its ID and timestamps.
	// Returns apperrors.ErrConflict if the name is taken in the workspace.
	Create(ctx context.Context, ds *models.Datasource) error
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Datasource, error)
	GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Datasource, error)
	// List returns the workspace's datasources ordered by name.
	List(ctx context.Context, workspaceID uuid.UUID) ([]*models.Datasource, error)
	// Update overwrites the editable columns of ds.
	Update(ctx context.Context, ds *models.Datasource) error
	Delete(ctx context.Context, workspaceID, id uuid.UUID) error
	// UpdateValidity stores the result of a validation pass.
	UpdateValidity(ctx context.Context, id uuid.UUID, invalids []string) error
}

type datasourceRepository struct{}

func NewDatasourceRepository() DatasourceRepository {
	return &datasourceRepository{}
}

const datasourceColumns = `id, workspace_id, name, plugin_id, template_name, datasource_configuration,
	invalids, is_configured, is_template_or_mock, is_auto_generated, policies, created_at, updated_at`

func (r *datasourceRepository) Create(ctx context.Context, ds *models.Datasource) error {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	cfg, policies, err := encodeJSONColumns(ds)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO engine_datasources (workspace_id, name, plugin_id, template_name, datasource_configuration,
			invalids, is_configured, is_template_or_mock, is_auto_generated, policies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id`

	err = scope.Conn.QueryRow(ctx, query,
		ds.WorkspaceID,
		ds.Name,
		nullIfEmpty(ds.PluginID),
		nullIfEmpty(ds.TemplateName),
		cfg,
		nonNil(ds.Invalids),
		ds.IsConfigured,
		ds.IsTemplateOrMock,
		ds.IsAutoGenerated,
		policies,
		now,
	).Scan(&ds.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("datasource %q: %w", ds.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create datasource: %w", err)
	}

	ds.CreatedAt = now
	ds.UpdatedAt = now
	return nil
}

func (r *datasourceRepository) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Datasource, error) {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	query := `SELECT ` + datasourceColumns + ` FROM engine_datasources WHERE workspace_id = $1 AND id = $2`
	ds, err := scanDatasource(scope.Conn.QueryRow(ctx, query, workspaceID, id))
	if err != nil {
		return nil, notFoundOr(err, "datasource "+id.String())
	}
	return ds, nil
}

func (r *datasourceRepository) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Datasource, error) {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	query := `SELECT ` + datasourceColumns + ` FROM engine_datasources WHERE workspace_id = $1 AND name = $2`
	ds, err := scanDatasource(scope.Conn.QueryRow(ctx, query, workspaceID, name))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("datasource %q", name))
	}
	return ds, nil
}

func (r *datasourceRepository) List(ctx context.Context, workspaceID uuid.UUID) ([]*models.Datasource, error) {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no workspace scope in context")
	}

	query := `SELECT ` + datasourceColumns + ` FROM engine_datasources WHERE workspace_id = $1 ORDER BY name`
	rows, err := scope.Conn.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasources: %w", err)
	}
	defer rows.Close()

	var datasources []*models.Datasource
	for rows.Next() {
		ds, err := scanDatasource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan datasource: %w", err)
		}
		datasources = append(datasources, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasources: %w", err)
	}

	return datasources, nil
}

func (r *datasourceRepository) Update(ctx context.Context, ds *models.Datasource) error {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	cfg, policies, err := encodeJSONColumns(ds)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE engine_datasources
		SET name = $3, plugin_id = $4, template_name = $5, datasource_configuration = $6,
			invalids = $7, is_configured = $8, is_template_or_mock = $9, policies = $10, updated_at = $11
		WHERE workspace_id = $1 AND id = $2`

	result, err := scope.Conn.Exec(ctx, query,
		ds.WorkspaceID,
		ds.ID,
		ds.Name,
		nullIfEmpty(ds.PluginID),
		nullIfEmpty(ds.TemplateName),
		cfg,
		nonNil(ds.Invalids),
		ds.IsConfigured,
		ds.IsTemplateOrMock,
		policies,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("datasource %q: %w", ds.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update datasource: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("datasource %s: %w", ds.ID, apperrors.ErrNotFound)
	}

	ds.UpdatedAt = now
	return nil
}

func (r *datasourceRepository) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM engine_datasources WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete datasource: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("datasource %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *datasourceRepository) UpdateValidity(ctx context.Context, id uuid.UUID, invalids []string) error {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return fmt.Errorf("no workspace scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `UPDATE engine_datasources SET invalids = $2 WHERE id = $1`, id, nonNil(invalids))
	if err != nil {
		return fmt.Errorf("failed to update datasource validity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("datasource %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func scanDatasource(row pgx.Row) (*models.Datasource, error) {
	var (
		ds           models.Datasource
		workspaceID  *uuid.UUID
		pluginID     *string
		templateName *string
		cfgJSON      []byte
		policiesJSON []byte
	)
	err := row.Scan(
		&ds.ID,
		&workspaceID,
		&ds.Name,
		&pluginID,
		&templateName,
		&cfgJSON,
		&ds.Invalids,
		&ds.IsConfigured,
		&ds.IsTemplateOrMock,
		&ds.IsAutoGenerated,
		&policiesJSON,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if workspaceID != nil {
		ds.WorkspaceID = *workspaceID
	}
	if pluginID != nil {
		ds.PluginID = *pluginID
	}
	if templateName != nil {
		ds.TemplateName = *templateName
	}
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &ds.Configuration); err != nil {
			return nil, fmt.Errorf("failed to decode datasource configuration: %w", err)
		}
	}
	if len(policiesJSON) > 0 {
		if err := json.Unmarshal(policiesJSON, &ds.Policies); err != nil {
			return nil, fmt.Errorf("failed to decode datasource policies: %w", err)
		}
	}
	if len(ds.Invalids) == 0 {
		ds.Invalids = nil
	}
	if len(ds.Policies) == 0 {
		ds.Policies = nil
	}

	return &ds, nil
}

// encodeJSONColumns marshals the JSONB columns. A nil configuration is stored as SQL NULL.
func encodeJSONColumns(ds *models.Datasource) (cfg []byte, policies []byte, err error) {
	if ds.Configuration != nil {
		cfg, err = json.Marshal(ds.Configuration)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode datasource configuration: %w", err)
		}
	}

	policies, err = json.Marshal(nonNil(ds.Policies))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode datasource policies: %w", err)
	}
	return cfg, policies, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

var _ DatasourceRepository = (*datasourceRepository)(nil)
