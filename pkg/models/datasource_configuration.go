package models

import "slices"

// DatasourceConfiguration holds the plugin-specific connection settings.
// Its shape is shared by all plugins; each plugin reads the parts it needs.
type DatasourceConfiguration struct {
	URL            string          `json:"url,omitempty"`
	Connection     *Connection     `json:"connection,omitempty"`
	Endpoints      []Endpoint      `json:"endpoints,omitempty"`
	Authentication *Authentication `json:"authentication,omitempty"`
	Properties     []Property      `json:"properties,omitempty"`
	Headers        []Property      `json:"headers,omitempty"`
}

// Connection holds transport-level options.
type Connection struct {
	Mode    string `json:"mode,omitempty"` // READ_ONLY, READ_WRITE
	SSLMode string `json:"sslMode,omitempty"`
}

// Endpoint is a host/port pair.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// Authentication holds credentials. Password is encrypted at rest by the service layer.
type Authentication struct {
	AuthenticationType string `json:"authenticationType,omitempty"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"`
	DatabaseName       string `json:"databaseName,omitempty"`
}

// Property is a free-form key/value setting.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Clone returns a deep copy of c. A nil configuration clones to nil.
func (c *DatasourceConfiguration) Clone() *DatasourceConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	if c.Connection != nil {
		conn := *c.Connection
		out.Connection = &conn
	}
	if c.Authentication != nil {
		auth := *c.Authentication
		out.Authentication = &auth
	}
	out.Endpoints = slices.Clone(c.Endpoints)
	out.Properties = slices.Clone(c.Properties)
	out.Headers = slices.Clone(c.Headers)
	return &out
}

// Property returns the value for key and whether it was set.
func (c *DatasourceConfiguration) Property(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// HasCredentials reports whether a secret is carried. Exported bundles never carry one.
func (c *DatasourceConfiguration) HasCredentials() bool {
	return c != nil && c.Authentication != nil && c.Authentication.Password != ""
}
