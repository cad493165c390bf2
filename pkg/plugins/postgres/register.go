package postgres

import "github.com/ekaya-inc/ekaya-datasources/pkg/plugins"

// PluginID is the identifier this installation assigns to the PostgreSQL plugin.
const PluginID = "postgres"

// PackageName is the export-stable key of the PostgreSQL plugin.
const PackageName = "postgres-plugin"

// Plugin returns the PostgreSQL plugin description.
func Plugin() plugins.Plugin {
	return plugins.Plugin{
		ID:          PluginID,
		PackageName: PackageName,
		DisplayName: "PostgreSQL",
		Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		Validate:    Validate,

		RequiresCredentials: true,
	}
}

func init() {
	plugins.Register(Plugin())
}
