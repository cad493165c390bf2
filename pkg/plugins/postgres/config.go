package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
)

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

var validSSLModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

// ConnectionURL builds a postgres:// URL from the first endpoint of cfg.
func ConnectionURL(cfg *models.DatasourceConfiguration) string {
	host := ""
	port := DefaultPort()
	if len(cfg.Endpoints) > 0 {
		host = cfg.Endpoints[0].Host
		if cfg.Endpoints[0].Port != 0 {
			port = cfg.Endpoints[0].Port
		}
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	if a := cfg.Authentication; a != nil {
		if a.Username != "" {
			u.User = url.UserPassword(a.Username, a.Password)
		}
		u.Path = "/" + a.DatabaseName
	}

	sslMode := DefaultSSLMode()
	if cfg.Connection != nil && cfg.Connection.SSLMode != "" {
		sslMode = cfg.Connection.SSLMode
	}
	u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()

	return u.String()
}

// Validate checks a PostgreSQL configuration offline.
func Validate(cfg *models.DatasourceConfiguration) plugins.Report {
	var report plugins.Report

	if len(cfg.Endpoints) == 0 || cfg.Endpoints[0].Host == "" {
		report.Invalid("Missing endpoint.")
	}
	if cfg.Authentication == nil || cfg.Authentication.DatabaseName == "" {
		report.Invalid("Missing database name.")
	}
	if cfg.Authentication == nil || cfg.Authentication.Username == "" {
		report.Invalid("Missing username for authentication.")
		report.Hint("Provide the database user the plugin should connect as.")
	}
	if cfg.Connection != nil && cfg.Connection.SSLMode != "" && !validSSLModes[cfg.Connection.SSLMode] {
		report.Invalid(fmt.Sprintf("Invalid SSL mode %q.", cfg.Connection.SSLMode))
	}
	if len(report.Invalids) > 0 {
		return report
	}

	if _, err := pgconn.ParseConfig(ConnectionURL(cfg)); err != nil {
		report.Invalid("Invalid connection parameters.")
		report.Hint("Check the host, port and database name.")
	}
	return report
}
