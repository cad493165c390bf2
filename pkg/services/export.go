package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-datasources/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
)

// BundleFormatVersion is bumped whenever the bundle layout changes incompatibly.
const BundleFormatVersion = 1

// Bundle is the portable form of a workspace's datasources. It carries no
// workspace identity, timestamps, policies or passwords.
type Bundle struct {
	FormatVersion int                  `json:"formatVersion"`
	ExportedAt    time.Time            `json:"exportedAt"`
	Datasources   []*models.Datasource `json:"datasources"`
	// UnmappedPlugins counts datasources whose plugin has no export key.
	UnmappedPlugins int `json:"unmappedPlugins,omitempty"`
}

// SkippedDatasource is a bundle entry that was not imported because its
// plugin is not installed here.
type SkippedDatasource struct {
	Name      string `json:"name"`
	PluginKey string `json:"pluginKey"`
}

type ImportResult struct {
	Created        []*models.Datasource `json:"created"`
	Reused         []*models.Datasource `json:"reused"`
	MissingPlugins []SkippedDatasource  `json:"missingPlugins"`
}

// ExportService moves datasources between workspaces and installations.
type ExportService interface {
	Export(ctx context.Context, workspaceID uuid.UUID) (*Bundle, error)
	// Import creates the datasources of bundle in the workspace, reusing
	// existing datasources that already match.
	Import(ctx context.Context, workspaceID uuid.UUID, bundle *Bundle) (*ImportResult, error)
}

type exportService struct {
	datasources DatasourceService
	registry    *plugins.Registry
	logger      *zap.Logger
}

func NewExportService(datasources DatasourceService, registry *plugins.Registry, logger *zap.Logger) ExportService {
	return &exportService{
		datasources: datasources,
		registry:    registry,
		logger:      logger.Named("export"),
	}
}

func (s *exportService) Export(ctx context.Context, workspaceID uuid.UUID) (*Bundle, error) {
	datasources, err := s.datasources.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	keys := s.registry.ExportKeys()
	bundle := &Bundle{
		FormatVersion: BundleFormatVersion,
		ExportedAt:    time.Now().UTC(),
		Datasources:   make([]*models.Datasource, 0, len(datasources)),
	}

	for _, ds := range datasources {
		exported := withoutPassword(ds).SanitizeForExport(keys)
		exported.Messages = nil
		exported.IsRecentlyCreated = nil

		if exported.PluginID == "" {
			bundle.UnmappedPlugins++
			s.logger.Warn("Exporting datasource without plugin reference",
				zap.String("id", ds.ID.String()),
				zap.String("name", ds.Name),
				zap.String("plugin_id", ds.PluginID))
		}
		bundle.Datasources = append(bundle.Datasources, exported)
	}

	s.logger.Info("Exported datasources",
		zap.String("workspace_id", workspaceID.String()),
		zap.Int("count", len(bundle.Datasources)),
		zap.Int("unmapped_plugins", bundle.UnmappedPlugins))

	return bundle, nil
}

func (s *exportService) Import(ctx context.Context, workspaceID uuid.UUID, bundle *Bundle) (*ImportResult, error) {
	if err := checkBundle(bundle); err != nil {
		return nil, err
	}

	existing, err := s.datasources.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(existing))
	for i, ds := range existing {
		names[i] = ds.Name
	}

	ids := s.registry.ImportIDs()
	result := &ImportResult{
		Created:        []*models.Datasource{},
		Reused:         []*models.Datasource{},
		MissingPlugins: []SkippedDatasource{},
	}

	for _, entry := range bundle.Datasources {
		if entry == nil {
			continue
		}

		pluginID, ok := ids[entry.PluginID]
		if !ok {
			result.MissingPlugins = append(result.MissingPlugins, SkippedDatasource{
				Name:      entry.Name,
				PluginKey: entry.PluginID,
			})
			s.logger.Warn("Skipping imported datasource with unknown plugin",
				zap.String("workspace_id", workspaceID.String()),
				zap.String("name", entry.Name),
				zap.String("plugin_key", entry.PluginID))
			continue
		}

		incoming := entry.Clone()
		incoming.PluginID = pluginID
		incoming.Policies = nil

		if match := findImported(existing, incoming); match != nil {
			result.Reused = append(result.Reused, match)
			continue
		}

		if incoming.Name != "" {
			incoming.Name = models.UniqueName(incoming.Name, names)
		}
		created, err := s.datasources.Create(ctx, workspaceID, incoming)
		if err != nil {
			return nil, fmt.Errorf("failed to import datasource %q: %w", entry.Name, err)
		}
		names = append(names, created.Name)
		existing = append(existing, created)
		result.Created = append(result.Created, created)
	}

	s.logger.Info("Imported datasources",
		zap.String("workspace_id", workspaceID.String()),
		zap.Int("created", len(result.Created)),
		zap.Int("reused", len(result.Reused)),
		zap.Int("missing_plugins", len(result.MissingPlugins)))

	return result, nil
}

// findImported returns the datasource incoming was exported from. Bundles
// carry no passwords, so a match ignoring the stored password counts too.
func findImported(existing []*models.Datasource, incoming *models.Datasource) *models.Datasource {
	for _, ds := range existing {
		if ds.SoftEquals(incoming) || withoutPassword(ds).SoftEquals(incoming) {
			return ds
		}
	}
	return nil
}

func withoutPassword(ds *models.Datasource) *models.Datasource {
	out := ds.Clone()
	if out.Configuration != nil && out.Configuration.Authentication != nil {
		out.Configuration.Authentication.Password = ""
	}
	return out
}

func checkBundle(bundle *Bundle) error {
	if bundle == nil {
		return fmt.Errorf("empty bundle: %w", apperrors.ErrInvalidBundle)
	}
	if bundle.FormatVersion != BundleFormatVersion {
		return fmt.Errorf("unsupported format version %d: %w", bundle.FormatVersion, apperrors.ErrInvalidBundle)
	}
	return nil
}

// EncodeJSON renders bundle as indented JSON.
func EncodeJSON(bundle *Bundle) ([]byte, error) {
	return json.MarshalIndent(bundle, "", "  ")
}

// DecodeJSON parses and version-checks a JSON bundle.
func DecodeJSON(data []byte) (*Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidBundle, err)
	}
	if err := checkBundle(&bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// EncodeYAML renders bundle as block-style YAML suitable for committing to
// git. Field names follow the JSON tags.
func EncodeYAML(bundle *Bundle) ([]byte, error) {
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}

	// JSON is a subset of YAML; reparsing keeps key order and string tags.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeYAML parses and version-checks a YAML bundle.
func DecodeYAML(data []byte) (*Bundle, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidBundle, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty bundle: %w", apperrors.ErrInvalidBundle)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidBundle, err)
	}
	return DecodeJSON(data)
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}

var _ ExportService = (*exportService)(nil)
