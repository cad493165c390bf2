// Package restapi is the plugin for plain HTTP APIs.
package restapi

import (
	"net/url"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
)

const (
	PluginID    = "restapi"
	PackageName = "restapi-plugin"
)

// Validate checks a REST API configuration offline.
func Validate(cfg *models.DatasourceConfiguration) plugins.Report {
	var report plugins.Report

	if cfg.URL == "" {
		report.Invalid("Missing URL.")
	} else if u, err := url.Parse(cfg.URL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		report.Invalid("Invalid URL.")
		report.Hint("Use an absolute http:// or https:// URL.")
	}
	for _, h := range cfg.Headers {
		if h.Key == "" {
			report.Invalid("Header with empty name.")
			break
		}
	}
	return report
}

// Plugin returns the REST API plugin description.
func Plugin() plugins.Plugin {
	return plugins.Plugin{
		ID:          PluginID,
		PackageName: PackageName,
		DisplayName: "REST API",
		Description: "Call any HTTP JSON API",
		Validate:    Validate,
	}
}

func init() {
	plugins.Register(Plugin())
}
