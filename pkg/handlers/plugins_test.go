package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
)

func TestPluginsHandler_List(t *testing.T) {
	registry := plugins.NewRegistry()
	registry.Register(plugins.Plugin{ID: "b", PackageName: "b-plugin", DisplayName: "B"})
	registry.Register(plugins.Plugin{ID: "a", PackageName: "a-plugin", DisplayName: "A", RequiresCredentials: true})

	mux := http.NewServeMux()
	NewPluginsHandler(registry, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plugins", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []plugins.Plugin `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "a-plugin", resp.Data[0].PackageName)
	assert.True(t, resp.Data[0].RequiresCredentials)
}
