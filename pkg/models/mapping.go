package models

// MatchStrategy records how a mention was bound to a schema object.
type MatchStrategy string

const (
	MatchExact      MatchStrategy = "exact"
	MatchSynonym    MatchStrategy = "synonym"
	MatchFuzzy      MatchStrategy = "fuzzy"
	MatchUnresolved MatchStrategy = "unresolved"
)

// EntityMapping binds a natural-language mention to a table or column of the
// snapshot used for the turn. Column is empty for table-level bindings.
type EntityMapping struct {
	Mention    string        `json:"mention"`
	Table      string        `json:"table,omitempty"`
	Column     string        `json:"column,omitempty"`
	Strategy   MatchStrategy `json:"strategy"`
	Similarity float64       `json:"similarity"`
}

// Resolved reports whether the mention was bound to a schema object.
func (m EntityMapping) Resolved() bool {
	return m.Strategy != MatchUnresolved
}

// ResolvedTables returns the distinct tables referenced by resolved mappings,
// in first-seen order.
func ResolvedTables(mappings []EntityMapping) []string {
	seen := make(map[string]bool)
	var tables []string
	for _, m := range mappings {
		if !m.Resolved() || m.Table == "" {
			continue
		}
		if !seen[m.Table] {
			seen[m.Table] = true
			tables = append(tables, m.Table)
		}
	}
	return tables
}
