package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-datasources/pkg/auth"
	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func userContext(subject string) context.Context {
	claims := &auth.Claims{}
	claims.Subject = subject
	return auth.WithClaims(context.Background(), claims, "token")
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) Event {
	t.Helper()
	var event Event
	require.NoError(t, json.Unmarshal([]byte(entry.ContextMap()["event_json"].(string)), &event))
	return event
}

func TestDatasourceAuditor_LogChange(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewDatasourceAuditor(logger)

	ds := &models.Datasource{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		Name:        "Orders DB",
		PluginName:  "PostgreSQL",
		Configuration: &models.DatasourceConfiguration{
			Authentication: &models.Authentication{Password: "s3cret"},
		},
	}

	auditor.LogChange(userContext("user-123"), EventDatasourceCreated, ds, false, "10.0.0.1")

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "datasource_audit", entry.LoggerName)
	assert.NotContains(t, entry.ContextMap()["event_json"], "s3cret")

	event := decodeEvent(t, entry)
	assert.Equal(t, EventDatasourceCreated, event.EventType)
	assert.Equal(t, ds.ID, event.DatasourceID)
	assert.Equal(t, ds.WorkspaceID, event.WorkspaceID)
	assert.Equal(t, "user-123", event.UserID)
	assert.Equal(t, "10.0.0.1", event.ClientIP)

	details := event.Details.(map[string]any)
	assert.Equal(t, "PostgreSQL", details["plugin"])
	assert.Equal(t, true, details["valid"])
}

func TestDatasourceAuditor_LogChange_CredentialsChanged(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewDatasourceAuditor(logger)

	ds := &models.Datasource{ID: uuid.New(), WorkspaceID: uuid.New(), Name: "x"}
	auditor.LogChange(context.Background(), EventDatasourceUpdated, ds, true, "")

	require.Equal(t, 2, recorded.Len())
	warning := recorded.All()[1]
	assert.Equal(t, zapcore.WarnLevel, warning.Level)
	assert.Equal(t, EventCredentialsChanged, decodeEvent(t, warning).EventType)
	assert.Empty(t, decodeEvent(t, warning).UserID, "no claims in context")
}

func TestDatasourceAuditor_LogDeletionAndTransfer(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewDatasourceAuditor(logger)
	workspaceID, datasourceID := uuid.New(), uuid.New()

	auditor.LogDeletion(context.Background(), workspaceID, datasourceID, "")
	auditor.LogTransfer(context.Background(), EventDatasourcesImport, workspaceID,
		TransferDetails{Created: 2, MissingPlugins: 1}, "")

	require.Equal(t, 2, recorded.Len())
	assert.Equal(t, datasourceID.String(), recorded.All()[0].ContextMap()["datasource_id"])

	transfer := recorded.All()[1]
	_, hasDatasource := transfer.ContextMap()["datasource_id"]
	assert.False(t, hasDatasource)
	assert.NotContains(t, transfer.ContextMap()["event_json"], "datasource_id")
	details := decodeEvent(t, transfer).Details.(map[string]any)
	assert.Equal(t, float64(2), details["created"])
}
