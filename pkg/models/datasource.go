package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
)

// DefaultNamePrefix is the name given to datasources created without one.
const DefaultNamePrefix = "Untitled Datasource"

// Datasource is a workspace-scoped connection definition bound to a plugin.
//
// Field visibility on the wire is decided here and nowhere else:
//   - json:"-" fields are transient or server-side caches and never leave the process.
//   - Invalids and Messages are written by the server only; UnmarshalJSON drops them.
//   - The deprecated organization id is not part of this struct at all, see LegacyOrganizationLink.
type Datasource struct {
	ID           uuid.UUID `json:"id,omitzero"`
	Name         string    `json:"name"`
	PluginID     string    `json:"pluginId,omitempty"`
	PluginName   string    `json:"-"` // denormalized for event logging
	WorkspaceID  uuid.UUID `json:"workspaceId,omitzero"`
	TemplateName string    `json:"templateName,omitempty"`

	Configuration *DatasourceConfiguration `json:"datasourceConfiguration,omitempty"`

	Invalids []string `json:"invalids,omitempty"`
	Messages []string `json:"messages,omitempty"`

	// IsAutoGenerated marks records synthesized by the system instead of a user.
	IsAutoGenerated bool `json:"-"`

	// Structure is the introspection cache. It is invalidated by the owning
	// service whenever Configuration changes.
	Structure *DatasourceStructure `json:"-"`

	IsConfigured      *bool `json:"isConfigured,omitempty"`
	IsRecentlyCreated *bool `json:"isRecentlyCreated,omitempty"`
	IsTemplateOrMock  *bool `json:"isTemplateOrMock,omitempty"`

	Policies        []Policy `json:"policies,omitempty"`
	UserPermissions []string `json:"userPermissions,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Policy grants a permission on a datasource to a set of permission groups.
type Policy struct {
	Permission       string   `json:"permission"`
	PermissionGroups []string `json:"permissionGroups,omitempty"`
}

// LegacyOrganizationLink records the organization a datasource belonged to
// before organizations became workspaces. It is read once by the legacy
// migration and never written by new code.
type LegacyOrganizationLink struct {
	DatasourceID   uuid.UUID
	OrganizationID string
}

// IsValid reports whether the datasource has no known configuration problems.
func (d *Datasource) IsValid() bool {
	return len(d.Invalids) == 0
}

// AddInvalid records a configuration problem, ignoring duplicates.
func (d *Datasource) AddInvalid(reason string) {
	if !slices.Contains(d.Invalids, reason) {
		d.Invalids = append(d.Invalids, reason)
	}
}

// AddMessage records a remediation hint, ignoring duplicates.
func (d *Datasource) AddMessage(message string) {
	if !slices.Contains(d.Messages, message) {
		d.Messages = append(d.Messages, message)
	}
}

// ResetValidity clears problems and hints before a validation pass.
func (d *Datasource) ResetValidity() {
	d.Invalids = nil
	d.Messages = nil
}

var configurationComparer = cmp.Options{
	cmpopts.EquateEmpty(),
}

// SoftEquals reports whether other would make actions behave exactly like d.
// Only the name, plugin, auto-generated flag and configuration take part;
// identity, workspace, timestamps, permissions, validity and the structure
// cache are ignored.
func (d *Datasource) SoftEquals(other *Datasource) bool {
	if other == nil {
		return false
	}
	return d.Name == other.Name &&
		d.PluginID == other.PluginID &&
		d.IsAutoGenerated == other.IsAutoGenerated &&
		ConfigurationEquals(d.Configuration, other.Configuration)
}

// ConfigurationEquals compares two configurations field by field.
// Two nil configurations are equal; nil and non-nil are not.
func ConfigurationEquals(a, b *DatasourceConfiguration) bool {
	if a == nil || b == nil {
		return a == b
	}
	return cmp.Equal(a, b, configurationComparer)
}

// SanitizeForExport returns a copy of d stripped of everything bound to the
// originating workspace or installation. The plugin reference is replaced by
// its export key; when pluginExportKeys has no entry the reference is left
// empty and the importer is expected to report the missing plugin.
func (d *Datasource) SanitizeForExport(pluginExportKeys map[string]string) *Datasource {
	out := d.Clone()

	out.Policies = nil
	out.Structure = nil
	out.CreatedAt = time.Time{}
	out.UpdatedAt = time.Time{}
	out.UserPermissions = nil
	out.IsConfigured = nil
	out.Invalids = nil
	out.ID = uuid.Nil
	out.WorkspaceID = uuid.Nil
	out.PluginID = pluginExportKeys[d.PluginID]

	return out
}

// Clone returns a deep copy of d.
func (d *Datasource) Clone() *Datasource {
	out := *d
	out.Configuration = d.Configuration.Clone()
	out.Structure = d.Structure.Clone()
	out.Invalids = slices.Clone(d.Invalids)
	out.Messages = slices.Clone(d.Messages)
	out.UserPermissions = slices.Clone(d.UserPermissions)
	out.IsConfigured = cloneBool(d.IsConfigured)
	out.IsRecentlyCreated = cloneBool(d.IsRecentlyCreated)
	out.IsTemplateOrMock = cloneBool(d.IsTemplateOrMock)
	if d.Policies != nil {
		out.Policies = make([]Policy, len(d.Policies))
		for i, p := range d.Policies {
			out.Policies[i] = Policy{
				Permission:       p.Permission,
				PermissionGroups: slices.Clone(p.PermissionGroups),
			}
		}
	}
	return &out
}

// datasourceJSON breaks the MarshalJSON/UnmarshalJSON recursion.
type datasourceJSON Datasource

// MarshalJSON adds the derived isValid flag that API clients rely on.
func (d Datasource) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		datasourceJSON
		IsValid bool `json:"isValid"`
	}{
		datasourceJSON: datasourceJSON(d),
		IsValid:        d.IsValid(),
	})
}

// UnmarshalJSON decodes a client representation. Server-computed fields
// (invalids, messages, isValid, userPermissions) are discarded.
func (d *Datasource) UnmarshalJSON(data []byte) error {
	var raw datasourceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw.Invalids = nil
	raw.Messages = nil
	raw.UserPermissions = nil
	*d = Datasource(raw)
	return nil
}

// UntitledName returns the first default name not present in existing:
// "Untitled Datasource", then "Untitled Datasource 1", "Untitled Datasource 2", ...
func UntitledName(existing []string) string {
	return UniqueName(DefaultNamePrefix, existing)
}

// UniqueName returns base if it is free, otherwise the first of "base 1",
// "base 2", ... not present in existing.
func UniqueName(base string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		taken[name] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s %d", base, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
