package models

// SQLGeneration is the query constructor's output. SQL uses {{name}} parameter
// placeholders; Parameters carries the value bound to each placeholder. Values
// derived from user text must only ever appear here, never inline in SQL.
type SQLGeneration struct {
	SQL               string         `json:"sql"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Confidence        float64        `json:"confidence"`
	Alternatives      []string       `json:"alternatives,omitempty"`
	Warnings          []string       `json:"warnings,omitempty"`
	ReferencedTables  []string       `json:"referenced_tables,omitempty"`
	ReferencedColumns []string       `json:"referenced_columns,omitempty"`
}
