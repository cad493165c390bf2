package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datasources/pkg/crypto"
	"github.com/ekaya-inc/ekaya-datasources/pkg/logging"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
	"github.com/ekaya-inc/ekaya-datasources/pkg/repositories"
)

// DatasourceService manages the datasources of a workspace. Configurations
// are returned decrypted; callers mask secrets before sending them anywhere.
type DatasourceService interface {
	// Create persists ds in the workspace. An empty name is replaced with the
	// next free "Untitled Datasource" name.
	Create(ctx context.Context, workspaceID uuid.UUID, ds *models.Datasource) (*models.Datasource, error)
	Get(ctx context.Context, workspaceID, id uuid.UUID) (*models.Datasource, error)
	List(ctx context.Context, workspaceID uuid.UUID) ([]*models.Datasource, error)
	// Update applies the non-empty fields of patch. A configuration change
	// drops the cached structure.
	Update(ctx context.Context, workspaceID, id uuid.UUID, patch *models.Datasource) (*models.Datasource, error)
	Delete(ctx context.Context, workspaceID, id uuid.UUID) error
	// GetStructure returns nil when nothing is cached.
	GetStructure(ctx context.Context, workspaceID, id uuid.UUID) (*models.DatasourceStructure, error)
	SaveStructure(ctx context.Context, workspaceID, id uuid.UUID, structure *models.DatasourceStructure) error
	// FindEquivalent returns the first datasource that soft-equals candidate, or nil.
	FindEquivalent(ctx context.Context, workspaceID uuid.UUID, candidate *models.Datasource) (*models.Datasource, error)
}

type datasourceService struct {
	repo      repositories.DatasourceRepository
	cache     repositories.StructureCache
	encryptor *crypto.CredentialEncryptor
	registry  *plugins.Registry
	validator ValidationService
	logger    *zap.Logger
}

func NewDatasourceService(
	repo repositories.DatasourceRepository,
	cache repositories.StructureCache,
	encryptor *crypto.CredentialEncryptor,
	registry *plugins.Registry,
	validator ValidationService,
	logger *zap.Logger,
) DatasourceService {
	return &datasourceService{
		repo:      repo,
		cache:     cache,
		encryptor: encryptor,
		registry:  registry,
		validator: validator,
		logger:    logger.Named("datasources"),
	}
}

func (s *datasourceService) Create(ctx context.Context, workspaceID uuid.UUID, input *models.Datasource) (*models.Datasource, error) {
	if input == nil {
		return nil, fmt.Errorf("datasource is required")
	}
	ds := input.Clone()
	ds.ID = uuid.Nil
	ds.WorkspaceID = workspaceID
	ds.Structure = nil
	ds.UserPermissions = nil

	if err := s.requirePlugin(ds.PluginID); err != nil {
		return nil, err
	}

	if ds.Name == "" {
		names, err := s.names(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		ds.Name = models.UntitledName(names)
	}

	s.validator.Validate(ds)

	if err := s.save(ctx, ds, s.repo.Create); err != nil {
		return nil, err
	}
	ds.IsRecentlyCreated = models.BoolPtr(true)

	s.logger.Info("Created datasource",
		zap.String("id", ds.ID.String()),
		zap.String("workspace_id", workspaceID.String()),
		zap.String("name", ds.Name),
		zap.String("plugin", ds.PluginName),
		zap.Bool("valid", ds.IsValid()),
	)

	return ds, nil
}

func (s *datasourceService) Get(ctx context.Context, workspaceID, id uuid.UUID) (*models.Datasource, error) {
	ds, err := s.repo.GetByID(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	s.open(ctx, ds)
	return ds, nil
}

func (s *datasourceService) List(ctx context.Context, workspaceID uuid.UUID) ([]*models.Datasource, error) {
	datasources, err := s.repo.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, ds := range datasources {
		s.open(ctx, ds)
	}
	return datasources, nil
}

func (s *datasourceService) Update(ctx context.Context, workspaceID, id uuid.UUID, patch *models.Datasource) (*models.Datasource, error) {
	if patch == nil {
		return nil, fmt.Errorf("datasource is required")
	}

	existing, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	updated := existing.Clone()
	if patch.Name != "" {
		updated.Name = patch.Name
	}
	if patch.PluginID != "" {
		if err := s.requirePlugin(patch.PluginID); err != nil {
			return nil, err
		}
		updated.PluginID = patch.PluginID
	}
	if patch.TemplateName != "" {
		updated.TemplateName = patch.TemplateName
	}
	if patch.Configuration != nil {
		updated.Configuration = keepMaskedPassword(patch.Configuration, existing.Configuration)
	}
	if patch.Policies != nil {
		updated.Policies = patch.Policies
	}
	if patch.IsTemplateOrMock != nil {
		updated.IsTemplateOrMock = patch.IsTemplateOrMock
	}

	s.validator.Validate(updated)

	if err := s.save(ctx, updated, s.repo.Update); err != nil {
		return nil, err
	}

	if updated.PluginID != existing.PluginID || !models.ConfigurationEquals(updated.Configuration, existing.Configuration) {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.Warn("Failed to invalidate datasource structure",
				zap.String("id", id.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("Updated datasource",
		zap.String("id", id.String()),
		zap.String("workspace_id", workspaceID.String()),
		zap.Bool("valid", updated.IsValid()),
	)

	return updated, nil
}

func (s *datasourceService) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, workspaceID, id); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("Failed to drop structure of deleted datasource",
			zap.String("id", id.String()),
			zap.Error(err))
	}

	s.logger.Info("Deleted datasource",
		zap.String("id", id.String()),
		zap.String("workspace_id", workspaceID.String()),
	)
	return nil
}

func (s *datasourceService) GetStructure(ctx context.Context, workspaceID, id uuid.UUID) (*models.DatasourceStructure, error) {
	if _, err := s.repo.GetByID(ctx, workspaceID, id); err != nil {
		return nil, err
	}
	return s.cache.Get(ctx, id)
}

func (s *datasourceService) SaveStructure(ctx context.Context, workspaceID, id uuid.UUID, structure *models.DatasourceStructure) error {
	if _, err := s.repo.GetByID(ctx, workspaceID, id); err != nil {
		return err
	}
	return s.cache.Set(ctx, id, structure)
}

func (s *datasourceService) FindEquivalent(ctx context.Context, workspaceID uuid.UUID, candidate *models.Datasource) (*models.Datasource, error) {
	datasources, err := s.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, ds := range datasources {
		if ds.SoftEquals(candidate) {
			return ds, nil
		}
	}
	return nil, nil
}

func (s *datasourceService) requirePlugin(pluginID string) error {
	if pluginID == "" {
		return fmt.Errorf("plugin id is required: %w", apperrors.ErrMissingPlugin)
	}
	if _, ok := s.registry.Get(pluginID); !ok {
		return fmt.Errorf("plugin %q: %w", pluginID, apperrors.ErrMissingPlugin)
	}
	return nil
}

func (s *datasourceService) names(ctx context.Context, workspaceID uuid.UUID) ([]string, error) {
	existing, err := s.repo.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(existing))
	for i, ds := range existing {
		names[i] = ds.Name
	}
	return names, nil
}

// save seals the password, hands a copy to write and copies the generated
// columns back onto ds.
func (s *datasourceService) save(ctx context.Context, ds *models.Datasource, write func(context.Context, *models.Datasource) error) error {
	sealed, err := s.encryptor.EncryptConfiguration(ds.Configuration)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	stored := ds.Clone()
	stored.Configuration = sealed
	if err := write(ctx, stored); err != nil {
		return err
	}

	ds.ID = stored.ID
	ds.CreatedAt = stored.CreatedAt
	ds.UpdatedAt = stored.UpdatedAt
	return nil
}

// open decrypts a stored datasource and re-derives its validity. Records
// whose validity drifted (for example after a plugin was removed) are
// written back so list filters on the stored column stay accurate.
func (s *datasourceService) open(ctx context.Context, ds *models.Datasource) {
	stored := ds.Invalids

	cfg, err := s.encryptor.DecryptConfiguration(ds.Configuration)
	undecryptable := err != nil
	if undecryptable {
		s.logger.Warn("Failed to decrypt datasource credentials",
			zap.String("id", ds.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
		cfg = ds.Configuration.Clone()
		cfg.Authentication.Password = ""
	}
	ds.Configuration = cfg

	s.validator.Validate(ds)
	if undecryptable {
		ds.AddInvalid(InvalidUndecryptable)
	}

	if !slices.Equal(stored, ds.Invalids) {
		if err := s.repo.UpdateValidity(ctx, ds.ID, ds.Invalids); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("Failed to store recomputed validity",
				zap.String("id", ds.ID.String()),
				zap.Error(err))
		}
	}
}

// keepMaskedPassword lets clients send back the masked password they were
// shown without overwriting the stored one.
func keepMaskedPassword(incoming, existing *models.DatasourceConfiguration) *models.DatasourceConfiguration {
	out := incoming.Clone()
	if out.Authentication == nil || out.Authentication.Password != logging.MaskedPassword {
		return out
	}
	out.Authentication.Password = ""
	if existing != nil && existing.Authentication != nil {
		out.Authentication.Password = existing.Authentication.Password
	}
	return out
}

var _ DatasourceService = (*datasourceService)(nil)
