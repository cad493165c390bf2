package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datasources/pkg/repositories"
)

// LegacyMigrationResult summarizes one migration run.
type LegacyMigrationResult struct {
	Migrated          int   `json:"migrated"`
	Unresolved        int   `json:"unresolved"`
	Conflicts         int   `json:"conflicts"`
	StaleLinksRemoved int64 `json:"staleLinksRemoved"`
}

// LegacyMigrationService moves datasources created under the old
// organization model into the workspace that replaced the organization.
// Runs are idempotent; links that cannot be resolved yet are left for the
// next run.
type LegacyMigrationService interface {
	Run(ctx context.Context) (*LegacyMigrationResult, error)
}

type legacyMigrationService struct {
	repo     repositories.LegacyOrganizationRepository
	unscoped UnscopedContextFunc
	logger   *zap.Logger
}

func NewLegacyMigrationService(
	repo repositories.LegacyOrganizationRepository,
	unscoped UnscopedContextFunc,
	logger *zap.Logger,
) LegacyMigrationService {
	return &legacyMigrationService{
		repo:     repo,
		unscoped: unscoped,
		logger:   logger.Named("legacy-migration"),
	}
}

func (s *legacyMigrationService) Run(ctx context.Context) (*LegacyMigrationResult, error) {
	ctx, cleanup, err := s.unscoped(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer cleanup()

	result := &LegacyMigrationResult{}

	result.StaleLinksRemoved, err = s.repo.DeleteResolved(ctx)
	if err != nil {
		return nil, err
	}

	links, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]uuid.UUID)
	for _, link := range links {
		workspaceID, ok := resolved[link.OrganizationID]
		if !ok {
			workspaceID, err = s.repo.ResolveWorkspace(ctx, link.OrganizationID)
			if errors.Is(err, apperrors.ErrNotFound) {
				result.Unresolved++
				s.logger.Warn("No workspace for legacy organization",
					zap.String("datasource_id", link.DatasourceID.String()),
					zap.String("organization_id", link.OrganizationID))
				continue
			}
			if err != nil {
				return nil, err
			}
			resolved[link.OrganizationID] = workspaceID
		}

		err := s.repo.AssignWorkspace(ctx, link.DatasourceID, workspaceID)
		switch {
		case err == nil:
			result.Migrated++
		case errors.Is(err, apperrors.ErrConflict):
			result.Conflicts++
			s.logger.Warn("Legacy datasource name already taken in workspace",
				zap.String("datasource_id", link.DatasourceID.String()),
				zap.String("workspace_id", workspaceID.String()))
		case errors.Is(err, apperrors.ErrNotFound):
			// Assigned by a concurrent run.
		default:
			return nil, err
		}
	}

	if len(links) > 0 || result.StaleLinksRemoved > 0 {
		s.logger.Info("Legacy organization migration finished",
			zap.Int("migrated", result.Migrated),
			zap.Int("unresolved", result.Unresolved),
			zap.Int("conflicts", result.Conflicts),
			zap.Int64("stale_links_removed", result.StaleLinksRemoved))
	}

	return result, nil
}

var _ LegacyMigrationService = (*legacyMigrationService)(nil)
