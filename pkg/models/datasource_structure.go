package models

import "slices"

// DatasourceStructure is the cached introspection of a datasource's schema.
// It is served by its own endpoint and never embedded in datasource payloads.
type DatasourceStructure struct {
	Tables []Table `json:"tables,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Table describes one table, view or collection.
type Table struct {
	Type    string   `json:"type"` // TABLE, VIEW, COLLECTION
	Schema  string   `json:"schema,omitempty"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns,omitempty"`
	Keys    []Key    `json:"keys,omitempty"`
}

// Column describes a single column.
type Column struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	DefaultValue string `json:"defaultValue,omitempty"`
	IsAutogen    bool   `json:"isAutogenerated,omitempty"`
}

// Key is a primary or foreign key.
type Key struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"` // primary key, foreign key
	Columns []string `json:"columnNames,omitempty"`
	FromTo  []string `json:"fromColumns,omitempty"`
}

// Clone returns a deep copy of s.
func (s *DatasourceStructure) Clone() *DatasourceStructure {
	if s == nil {
		return nil
	}
	out := &DatasourceStructure{Error: s.Error}
	if s.Tables != nil {
		out.Tables = make([]Table, len(s.Tables))
		for i, t := range s.Tables {
			t.Columns = slices.Clone(t.Columns)
			keys := make([]Key, len(t.Keys))
			for j, k := range t.Keys {
				k.Columns = slices.Clone(k.Columns)
				k.FromTo = slices.Clone(k.FromTo)
				keys[j] = k
			}
			if t.Keys == nil {
				keys = nil
			}
			t.Keys = keys
			out.Tables[i] = t
		}
	}
	return out
}
