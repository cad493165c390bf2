package mssql

import (
	"net"
	"net/url"
	"strconv"

	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
	"github.com/ekaya-inc/ekaya-datasources/pkg/plugins"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// Supported values of Authentication.AuthenticationType.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// ConnectionURL builds a sqlserver:// DSN from the first endpoint of cfg.
// The "encrypt" property is passed through as a query parameter.
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
		Scheme: "sqlserver",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	query := url.Values{}
	if a := cfg.Authentication; a != nil {
		if a.Username != "" {
			u.User = url.UserPassword(a.Username, a.Password)
		}
		if a.DatabaseName != "" {
			query.Set("database", a.DatabaseName)
		}
	}
	if v, ok := cfg.Property("encrypt"); ok {
		query.Set("encrypt", v)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// Validate checks a SQL Server configuration offline.
func Validate(cfg *models.DatasourceConfiguration) plugins.Report {
	var report plugins.Report

	if len(cfg.Endpoints) == 0 || cfg.Endpoints[0].Host == "" {
		report.Invalid("Missing endpoint.")
	}

	authType := AuthSQL
	if cfg.Authentication != nil && cfg.Authentication.AuthenticationType != "" {
		authType = cfg.Authentication.AuthenticationType
	}
	switch authType {
	case AuthSQL:
		if cfg.Authentication == nil || cfg.Authentication.Username == "" {
			report.Invalid("Missing username for authentication.")
		}
		if cfg.Authentication == nil || cfg.Authentication.Password == "" {
			report.Invalid("Missing password for authentication.")
			report.Hint("SQL authentication needs both a username and a password.")
		}
	case AuthServicePrincipal:
		if _, ok := cfg.Property("client_id"); !ok {
			report.Invalid("Missing client id for service principal authentication.")
		}
		if _, ok := cfg.Property("tenant_id"); !ok {
			report.Invalid("Missing tenant id for service principal authentication.")
		}
	default:
		report.Invalid("Unsupported authentication type: " + authType)
	}
	if len(report.Invalids) > 0 {
		return report
	}

	if _, err := msdsn.Parse(ConnectionURL(cfg)); err != nil {
		report.Invalid("Invalid connection parameters.")
		report.Hint("Check the host, port and the encrypt property (true, false or strict).")
	}
	return report
}
