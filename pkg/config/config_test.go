package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
redis:
  host: "redis.example.com"
  port: 6379
structure_cache_ttl_minutes: 15
`)

	os.Unsetenv("PGHOST")
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATASOURCE_CREDENTIALS_KEY", "secret-key")

	cfg, err := LoadFile(path, "test-version")
	require.NoError(t, err)

	assert.Equal(t, "4443", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "redis.example.com", cfg.Redis.Host)
	assert.Equal(t, "secret-key", cfg.CredentialsKey)
	assert.Equal(t, 15*time.Minute, cfg.StructureCacheTTL())
	assert.Equal(t, "yaml", cfg.Export.DefaultFormat)
}

func TestLoadFile_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")
	t.Setenv("PGDATABASE", "from_env")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), "v")
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Database.Database)
	assert.Equal(t, 60, cfg.StructureCacheTTLMinutes)
}

func TestLoadFile_RejectsUnknownExportFormat(t *testing.T) {
	path := writeConfig(t, `
export:
  default_format: "xml"
`)
	os.Unsetenv("EXPORT_DEFAULT_FORMAT")
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")

	_, err := LoadFile(path, "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_format")
}

func TestLoadFile_VerificationRequiresJWKS(t *testing.T) {
	path := writeConfig(t, `
port: "3443"
`)
	os.Unsetenv("JWKS_ENDPOINTS")
	os.Unsetenv("AUTH_ENABLE_VERIFICATION")

	_, err := LoadFile(path, "v")
	require.Error(t, err)
}

func TestParseJWKSEndpoints(t *testing.T) {
	got := parseJWKSEndpoints("https://a.example=https://a.example/jwks.json, https://b.example=https://b.example/jwks?x=1")
	assert.Equal(t, map[string]string{
		"https://a.example": "https://a.example/jwks.json",
		"https://b.example": "https://b.example/jwks?x=1",
	}, got)
	assert.Empty(t, parseJWKSEndpoints(""))
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.URL())
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", c.ConnectionString())
}
