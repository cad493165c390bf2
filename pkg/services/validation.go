package services

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
)

const (
	InvalidMissingPlugin        = "Missing plugin id."
	InvalidMissingConfiguration = "Missing datasource configuration."
	InvalidUndecryptable        = "Stored credentials could not be decrypted. Re-enter the password."
)

// ValidationService derives a datasource's invalids and messages. It never
// opens connections; plugin validators inspect the configuration only.
type ValidationService interface {
	// Validate replaces ds.Invalids and ds.Messages and updates ds.IsConfigured
	// when the plugin is known.
	Validate(ds *models.Datasource)
}

type validationService struct {
	registry *plugins.Registry
}

func NewValidationService(registry *plugins.Registry) ValidationService {
	return &validationService{registry: registry}
}

func (s *validationService) Validate(ds *models.Datasource) {
	ds.ResetValidity()

	if ds.PluginID == "" {
		ds.AddInvalid(InvalidMissingPlugin)
		return
	}

	plugin, ok := s.registry.Get(ds.PluginID)
	if !ok {
		ds.AddInvalid(fmt.Sprintf("Plugin %s not installed.", ds.PluginID))
		ds.AddMessage("Install the plugin or bind the datasource to another plugin.")
		return
	}
	ds.PluginName = plugin.DisplayName

	if ds.Configuration == nil {
		ds.AddInvalid(InvalidMissingConfiguration)
		ds.IsConfigured = models.BoolPtr(false)
		return
	}

	if plugin.Validate != nil {
		report := plugin.Validate(ds.Configuration)
		for _, reason := range report.Invalids {
			ds.AddInvalid(reason)
		}
		for _, message := range report.Messages {
			ds.AddMessage(message)
		}
	}

	configured := !plugin.RequiresCredentials || ds.Configuration.HasCredentials()
	ds.IsConfigured = models.BoolPtr(configured)
	if !configured {
		ds.AddMessage("Add the password to finish configuring this datasource.")
	}
}

var _ ValidationService = (*validationService)(nil)
