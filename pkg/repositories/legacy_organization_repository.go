package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-datasources/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datasources/pkg/database"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

// LegacyOrganizationRepository reads the organization links of datasources
// created before workspaces existed. All methods need an unscoped connection.
type LegacyOrganizationRepository interface {
	// ListPending returns links whose datasource has no workspace yet.
	ListPending(ctx context.Context) ([]models.LegacyOrganizationLink, error)
	// DeleteResolved removes links whose datasource already has a workspace.
	DeleteResolved(ctx context.Context) (int64, error)
	// ResolveWorkspace maps an organization to the workspace that replaced it.
	ResolveWorkspace(ctx context.Context, organizationID string) (uuid.UUID, error)
	// AssignWorkspace moves the datasource into workspaceID and drops its link.
	AssignWorkspace(ctx context.Context, datasourceID, workspaceID uuid.UUID) error
}

type legacyOrganizationRepository struct{}

func NewLegacyOrganizationRepository() LegacyOrganizationRepository {
	return &legacyOrganizationRepository{}
}

func (r *legacyOrganizationRepository) ListPending(ctx context.Context) ([]models.LegacyOrganizationLink, error) {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT l.datasource_id, l.organization_id
		FROM engine_datasource_legacy_organizations l
		JOIN engine_datasources d ON d.id = l.datasource_id
		WHERE d.workspace_id IS NULL
		ORDER BY l.created_at, l.datasource_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy organization links: %w", err)
	}

	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LegacyOrganizationLink, error) {
		var link models.LegacyOrganizationLink
		err := row.Scan(&link.DatasourceID, &link.OrganizationID)
		return link, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan legacy organization link: %w", err)
	}
	return links, nil
}

func (r *legacyOrganizationRepository) DeleteResolved(ctx context.Context) (int64, error) {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		DELETE FROM engine_datasource_legacy_organizations l
		USING engine_datasources d
		WHERE d.id = l.datasource_id AND d.workspace_id IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete resolved legacy organization links: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *legacyOrganizationRepository) ResolveWorkspace(ctx context.Context, organizationID string) (uuid.UUID, error) {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("no database scope in context")
	}

	var workspaceID uuid.UUID
	err := scope.Conn.QueryRow(ctx,
		`SELECT id FROM engine_workspaces WHERE legacy_organization_id = $1`, organizationID).Scan(&workspaceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("workspace for organization %q: %w", organizationID, apperrors.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	return workspaceID, nil
}

func (r *legacyOrganizationRepository) AssignWorkspace(ctx context.Context, datasourceID, workspaceID uuid.UUID) error {
	scope, ok := database.GetWorkspaceScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.Exec(ctx,
		`UPDATE engine_datasources SET workspace_id = $2, updated_at = now() WHERE id = $1 AND workspace_id IS NULL`,
		datasourceID, workspaceID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("datasource %s: %w", datasourceID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to assign workspace: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("unassigned datasource %s: %w", datasourceID, apperrors.ErrNotFound)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM engine_datasource_legacy_organizations WHERE datasource_id = $1`, datasourceID); err != nil {
		return fmt.Errorf("failed to delete legacy organization link: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ LegacyOrganizationRepository = (*legacyOrganizationRepository)(nil)
