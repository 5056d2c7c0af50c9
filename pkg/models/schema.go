package models

import (
	"fmt"
	"strings"
	"time"
)

// Supported database dialects.
const (
	DialectPostgres = "postgres"
	DialectMSSQL    = "mssql"
	DialectSQLite   = "sqlite"
)

// ForeignKeyRef identifies the column a foreign key points at.
type ForeignKeyRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Column describes one column of a reflected table.
type Column struct {
	Name       string         `json:"name"`
	DataType   string         `json:"data_type"`
	Nullable   bool           `json:"nullable"`
	PrimaryKey bool           `json:"primary_key"`
	ForeignKey *ForeignKeyRef `json:"foreign_key,omitempty"`
}

// Table describes one reflected table.
type Table struct {
	Name        string   `json:"name"`
	RowCount    int64    `json:"row_count"`
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns"`
}

// Column returns the named column, or nil if the table has no such column.
// Lookup is case-insensitive to match how dialects fold identifiers.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// RelationshipType describes how a relationship edge was derived.
type RelationshipType string

const (
	RelForeignKey RelationshipType = "foreign_key"
	RelDeclared   RelationshipType = "declared"
)

// Relationship is a directed edge between two columns of the same snapshot.
type Relationship struct {
	SourceTable  string           `json:"source_table"`
	SourceColumn string           `json:"source_column"`
	TargetTable  string           `json:"target_table"`
	TargetColumn string           `json:"target_column"`
	Type         RelationshipType `json:"type"`
}

// SchemaSnapshot is an immutable, versioned view of one database's structure.
// Snapshots are replaced, never mutated; in-flight requests keep the reference
// they started with.
type SchemaSnapshot struct {
	DatabaseID    string         `json:"database_id"`
	Version       int64          `json:"version"`
	Dialect       string         `json:"dialect"`
	CreatedAt     time.Time      `json:"created_at"`
	Tables        []Table        `json:"tables"`
	Relationships []Relationship `json:"relationships"`
}

// Table returns the named table, or nil. Case-insensitive.
func (s *SchemaSnapshot) Table(name string) *Table {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i]
		}
	}
	return nil
}

// HasColumn reports whether table.column exists in the snapshot.
func (s *SchemaSnapshot) HasColumn(table, column string) bool {
	t := s.Table(table)
	return t != nil && t.Column(column) != nil
}

// Validate checks the referential closure invariant: every relationship's
// endpoints must resolve to columns present in this snapshot.
func (s *SchemaSnapshot) Validate() error {
	for _, r := range s.Relationships {
		if !s.HasColumn(r.SourceTable, r.SourceColumn) {
			return fmt.Errorf("relationship source %s.%s not in snapshot", r.SourceTable, r.SourceColumn)
		}
		if !s.HasColumn(r.TargetTable, r.TargetColumn) {
			return fmt.Errorf("relationship target %s.%s not in snapshot", r.TargetTable, r.TargetColumn)
		}
	}
	return nil
}
