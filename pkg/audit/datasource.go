// Package audit writes an audit trail of datasource changes for SIEM consumption.
// Events are logged as structured JSON under the "datasource_audit" logger.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/auth"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

// EventType categorizes audit events for filtering and alerting.
type EventType string

const (
	EventDatasourceCreated  EventType = "datasource_created"
	EventDatasourceUpdated  EventType = "datasource_updated"
	EventDatasourceDeleted  EventType = "datasource_deleted"
	EventDatasourcesExport  EventType = "datasources_exported"
	EventDatasourcesImport  EventType = "datasources_imported"
	EventCredentialsChanged EventType = "datasource_credentials_changed"
)

// Event is one audit record. Secrets never appear in Details.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	EventType    EventType `json:"event_type"`
	WorkspaceID  uuid.UUID `json:"workspace_id"`
	DatasourceID uuid.UUID `json:"datasource_id,omitzero"`
	UserID       string    `json:"user_id,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	Details      any       `json:"details,omitempty"`
	Severity     string    `json:"severity"` // info, warning
}

// DatasourceDetails describes the datasource an event is about.
type DatasourceDetails struct {
	Name     string   `json:"name"`
	Plugin   string   `json:"plugin"`
	Valid    bool     `json:"valid"`
	Invalids []string `json:"invalids,omitempty"`
}

// TransferDetails summarizes an export or import.
type TransferDetails struct {
	Exported       int `json:"exported,omitempty"`
	Created        int `json:"created,omitempty"`
	Reused         int `json:"reused,omitempty"`
	MissingPlugins int `json:"missing_plugins,omitempty"`
}

// DatasourceAuditor logs datasource lifecycle events.
type DatasourceAuditor struct {
	logger *zap.Logger
}

func NewDatasourceAuditor(logger *zap.Logger) *DatasourceAuditor {
	return &DatasourceAuditor{logger: logger.Named("datasource_audit")}
}

// LogChange records a create or update. Credential changes are logged as a
// separate warning-level event so they can be alerted on.
func (a *DatasourceAuditor) LogChange(ctx context.Context, eventType EventType, ds *models.Datasource, credentialsChanged bool, clientIP string) {
	details := DatasourceDetails{
		Name:     ds.Name,
		Plugin:   ds.PluginName,
		Valid:    ds.IsValid(),
		Invalids: ds.Invalids,
	}
	a.log(ctx, eventType, ds.WorkspaceID, ds.ID, details, clientIP, "info")

	if credentialsChanged {
		a.log(ctx, EventCredentialsChanged, ds.WorkspaceID, ds.ID, details, clientIP, "warning")
	}
}

func (a *DatasourceAuditor) LogDeletion(ctx context.Context, workspaceID, datasourceID uuid.UUID, clientIP string) {
	a.log(ctx, EventDatasourceDeleted, workspaceID, datasourceID, nil, clientIP, "info")
}

func (a *DatasourceAuditor) LogTransfer(ctx context.Context, eventType EventType, workspaceID uuid.UUID, details TransferDetails, clientIP string) {
	a.log(ctx, eventType, workspaceID, uuid.Nil, details, clientIP, "info")
}

func (a *DatasourceAuditor) log(ctx context.Context, eventType EventType, workspaceID, datasourceID uuid.UUID, details any, clientIP, severity string) {
	userID := auth.GetUserIDFromContext(ctx)

	event := Event{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		WorkspaceID:  workspaceID,
		DatasourceID: datasourceID,
		UserID:       userID,
		ClientIP:     clientIP,
		Details:      details,
		Severity:     severity,
	}

	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(eventType)),
		zap.String("workspace_id", workspaceID.String()),
		zap.String("user_id", userID),
		zap.String("client_ip", clientIP),
		zap.String("severity", severity),
	}
	if datasourceID != uuid.Nil {
		fields = append(fields, zap.String("datasource_id", datasourceID.String()))
	}

	if severity == "warning" {
		a.logger.Warn("Datasource audit event", fields...)
		return
	}
	a.logger.Info("Datasource audit event", fields...)
}
