package mssql

import "github.com/ekaya-inc/ekaya-datasources/pkg/plugins"

// PluginID is the identifier this installation assigns to the SQL Server plugin.
const PluginID = "mssql"

// PackageName is the export-stable key of the SQL Server plugin.
const PackageName = "mssql-plugin"

// Plugin returns the SQL Server plugin description.
func Plugin() plugins.Plugin {
	return plugins.Plugin{
		ID:          PluginID,
		PackageName: PackageName,
		DisplayName: "Microsoft SQL Server",
		Description: "Connect to SQL Server 2016+, Azure SQL Database",
		Validate:    Validate,

		RequiresCredentials: true,
	}
}

func init() {
	plugins.Register(Plugin())
}
