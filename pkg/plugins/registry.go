// Package plugins keeps track of the plugins a datasource can be bound to.
// Each plugin has an installation-specific ID and a portable package name
// that is used as its key in exported bundles.
package plugins

import (
	"slices"
	"sync"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

// Report collects the problems and remediation hints found by a validator.
type Report struct {
	Invalids []string
	Messages []string
}

// Invalid records a configuration problem.
func (r *Report) Invalid(reason string) {
	r.Invalids = append(r.Invalids, reason)
}

// Hint records a remediation hint.
func (r *Report) Hint(message string) {
	r.Messages = append(r.Messages, message)
}

// ConfigValidator inspects a configuration without connecting to anything.
// The configuration is never nil.
type ConfigValidator func(cfg *models.DatasourceConfiguration) Report

// Plugin describes an installed plugin.
type Plugin struct {
	ID          string `json:"id"`           // installation-specific identifier
	PackageName string `json:"package_name"` // export-stable key, e.g. "postgres-plugin"
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	// RequiresCredentials marks plugins that cannot be used until a username
	// or password is supplied, e.g. after importing a bundle.
	RequiresCredentials bool `json:"requires_credentials"`

	Validate ConfigValidator `json:"-"`
}

// Registry holds installed plugins. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that built-in plugins register with.
func Default() *Registry {
	return defaultRegistry
}

// Register is called by each built-in plugin's init() function.
func Register(p Plugin) {
	defaultRegistry.Register(p)
}

// Register adds or replaces a plugin keyed by its ID.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.ID] = p
}

// Get returns the plugin with the given ID.
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// GetByPackageName returns the plugin with the given export key.
func (r *Registry) GetByPackageName(packageName string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.PackageName == packageName {
			return p, true
		}
	}
	return Plugin{}, false
}

// List returns all plugins ordered by package name.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b Plugin) int {
		if a.PackageName < b.PackageName {
			return -1
		}
		if a.PackageName > b.PackageName {
			return 1
		}
		return 0
	})
	return result
}

// ExportKeys maps plugin IDs to their export-stable package names.
func (r *Registry) ExportKeys() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make(map[string]string, len(r.plugins))
	for id, p := range r.plugins {
		keys[id] = p.PackageName
	}
	return keys
}

// ImportIDs maps export-stable package names back to plugin IDs.
func (r *Registry) ImportIDs() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(map[string]string, len(r.plugins))
	for id, p := range r.plugins {
		ids[p.PackageName] = id
	}
	return ids
}
